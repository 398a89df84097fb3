package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/chain"
	"github.com/neonslash/neonvault/internal/crypto"
	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/state"
)

// revertingNode answers every gas estimate with an Error(string) revert.
type revertingNode struct {
	reason string
	sent   int
}

type nodeError struct{ data string }

func (e nodeError) Error() string          { return "execution reverted" }
func (e nodeError) ErrorCode() int         { return 3 }
func (e nodeError) ErrorData() interface{} { return e.data }

func (n *revertingNode) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("no reads expected")
}

func (n *revertingNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 1, nil
}

func (n *revertingNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (n *revertingNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	strType, err := abi.NewType("string", "", nil)
	if err != nil {
		return 0, err
	}
	packed, err := abi.Arguments{{Type: strType}}.Pack(n.reason)
	if err != nil {
		return 0, err
	}
	return 0, nodeError{data: hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))}
}

func (n *revertingNode) SendTransaction(context.Context, *types.Transaction) error {
	n.sent++
	return nil
}

func (n *revertingNode) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func TestClaimYield_SurfacesRevertReasonFromNode(t *testing.T) {
	node := &revertingNode{reason: "Already claimed today"}
	signer, err := crypto.NewSigner("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", 5042002)
	require.NoError(t, err)

	vaultAddr := common.HexToAddress("0x4cef015F86a4df13676b12616B00126Bd7b6Fab8")
	tx := chain.NewTransactor(node, signer, chain.TransactorConfig{Poll: time.Millisecond, WaitTimeout: time.Second}, discardLogger())
	vault := chain.NewVault(node, vaultAddr, tx)
	token := chain.NewToken(node, common.HexToAddress("0x3600000000000000000000000000000000000000"), tx)

	sessions := state.NewRegistry(vault, token, state.SessionConfig{Spender: vaultAddr.Hex()}, discardLogger())
	t.Cleanup(sessions.Close)
	s := sessions.Get(vault.Sender())
	s.Stake.Apply(s.Stake.Begin(), domain.StakeRecord{User: vault.Sender(), StakedAmount: big.NewInt(5_000_000)}, time.Now())

	inbox := notify.NewInbox(time.Minute, nil, discardLogger())
	actions := NewActions(vault, token, sessions, inbox, nil, nil, ActionsConfig{
		Spender:      vaultAddr.Hex(),
		RefetchDelay: time.Millisecond,
	}, discardLogger())

	_, err = actions.ClaimYield(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternal)
	assert.Zero(t, node.sent, "a reverting call is not broadcast")

	list := inbox.List(vault.Sender())
	require.NotEmpty(t, list)
	assert.Equal(t, domain.NotifyError, list[0].Kind)
	assert.Equal(t, "Already claimed today", list[0].Message)
}
