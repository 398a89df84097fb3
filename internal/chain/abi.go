package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs
var (
	vaultABI              abi.ABI
	erc20ABI              abi.ABI
	tokenMessengerABI     abi.ABI
	messageTransmitterABI abi.ABI
)

const marketComponents = `[
	{"name": "description", "type": "string"},
	{"name": "category", "type": "string"},
	{"name": "totalYes", "type": "uint256"},
	{"name": "totalNo", "type": "uint256"},
	{"name": "resolved", "type": "bool"},
	{"name": "result", "type": "bool"},
	{"name": "deadline", "type": "uint256"},
	{"name": "exists", "type": "bool"}
]`

func init() {
	var err error

	vaultABI, err = abi.JSON(strings.NewReader(`[
		{"name": "getPoints", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "user", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]},
		{"name": "stakedUSDC", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]},
		{"name": "stakeTimestamp", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]},
		{"name": "marketCount", "type": "function", "stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]},
		{"name": "getAllMarkets", "type": "function", "stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "tuple[]", "components": ` + marketComponents + `}]},
		{"name": "userBets", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "marketId", "type": "uint256"}, {"name": "user", "type": "address"}],
			"outputs": [
				{"name": "amount", "type": "uint256"},
				{"name": "prediction", "type": "bool"},
				{"name": "claimed", "type": "bool"}
			]},
		{"name": "effectiveBond", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "user", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]},
		{"name": "agentRecord", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "user", "type": "address"}],
			"outputs": [
				{"name": "principalBond", "type": "uint256"},
				{"name": "lastUpdateTimestamp", "type": "uint256"},
				{"name": "totalSlashed", "type": "uint256"},
				{"name": "tasksCompleted", "type": "uint256"}
			]},
		{"name": "owner", "type": "function", "stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address"}]},
		{"name": "stake", "type": "function", "stateMutability": "nonpayable",
			"inputs": [{"name": "amount", "type": "uint256"}], "outputs": []},
		{"name": "withdraw", "type": "function", "stateMutability": "nonpayable",
			"inputs": [{"name": "amount", "type": "uint256"}], "outputs": []},
		{"name": "claimYield", "type": "function", "stateMutability": "nonpayable",
			"inputs": [], "outputs": []},
		{"name": "placeBet", "type": "function", "stateMutability": "nonpayable",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "prediction", "type": "bool"},
				{"name": "amount", "type": "uint256"}
			], "outputs": []},
		{"name": "claimWinnings", "type": "function", "stateMutability": "nonpayable",
			"inputs": [{"name": "marketId", "type": "uint256"}], "outputs": []},
		{"name": "createMarket", "type": "function", "stateMutability": "nonpayable",
			"inputs": [
				{"name": "description", "type": "string"},
				{"name": "category", "type": "string"},
				{"name": "duration", "type": "uint256"}
			], "outputs": []},
		{"name": "resolveMarket", "type": "function", "stateMutability": "nonpayable",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "result", "type": "bool"}
			], "outputs": []},
		{"name": "redeemNFT", "type": "function", "stateMutability": "nonpayable",
			"inputs": [], "outputs": []}
	]`))
	if err != nil {
		panic("vault abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{"name": "approve", "type": "function",
			"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
			"outputs": [{"name": "", "type": "bool"}]},
		{"name": "allowance", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]},
		{"name": "balanceOf", "type": "function", "stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}

	tokenMessengerABI, err = abi.JSON(strings.NewReader(`[
		{"name": "depositForBurn", "type": "function",
			"inputs": [
				{"name": "amount", "type": "uint256"},
				{"name": "destinationDomain", "type": "uint32"},
				{"name": "mintRecipient", "type": "bytes32"},
				{"name": "burnToken", "type": "address"},
				{"name": "destinationCaller", "type": "bytes32"},
				{"name": "maxFee", "type": "uint256"},
				{"name": "minFinalityThreshold", "type": "uint32"}
			],
			"outputs": []}
	]`))
	if err != nil {
		panic("token messenger abi parse: " + err.Error())
	}

	messageTransmitterABI, err = abi.JSON(strings.NewReader(`[
		{"name": "receiveMessage", "type": "function",
			"inputs": [
				{"name": "message", "type": "bytes"},
				{"name": "attestation", "type": "bytes"}
			],
			"outputs": [{"name": "success", "type": "bool"}]}
	]`))
	if err != nil {
		panic("message transmitter abi parse: " + err.Error())
	}
}
