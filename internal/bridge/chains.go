package bridge

// Network names understood by the attestation service and the product UI.
const (
	EthereumSepolia = "Ethereum_Sepolia"
	BaseSepolia     = "Base_Sepolia"
	Ethereum        = "Ethereum"
	Base            = "Base"
	ArcTestnet      = "Arc_Testnet"
)

var sourceByChainID = map[int64]string{
	11155111: EthereumSepolia,
	84532:    BaseSepolia,
	1:        Ethereum,
	8453:     Base,
}

// SourceForChainID maps a connected wallet's chain to the bridge source
// network. Unknown chains fall back to Ethereum_Sepolia.
func SourceForChainID(chainID int64) string {
	if name, ok := sourceByChainID[chainID]; ok {
		return name
	}
	return EthereumSepolia
}
