// Package chain binds the vault contract, its stable-asset token and the
// CCTP contracts to an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/neonslash/neonvault/internal/domain"
)

// Backend is the subset of an Ethereum client the bindings need.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc %s: %w", rpcURL, err)
	}
	return c, nil
}

// limitedBackend throttles every RPC round trip with a token bucket.
type limitedBackend struct {
	Backend
	lim *rate.Limiter
}

// Throttle wraps b so that it issues at most perSec calls per second.
// A non-positive rate disables throttling.
func Throttle(b Backend, perSec float64) Backend {
	if perSec <= 0 {
		return b
	}
	burst := max(1, int(perSec))
	return &limitedBackend{Backend: b, lim: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (l *limitedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Backend.CallContract(ctx, msg, block)
}

func (l *limitedBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return 0, err
	}
	return l.Backend.PendingNonceAt(ctx, account)
}

func (l *limitedBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Backend.SuggestGasPrice(ctx)
}

func (l *limitedBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return 0, err
	}
	return l.Backend.EstimateGas(ctx, msg)
}

func (l *limitedBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.Backend.SendTransaction(ctx, tx)
}

func (l *limitedBackend) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Backend.TransactionReceipt(ctx, h)
}

// ParseAddress validates and parses a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("chain: %q is not an address: %w", s, domain.ErrInvalidInput)
	}
	return common.HexToAddress(s), nil
}

// SameAddress compares two hex addresses ignoring checksum case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// toUint64 saturates v into a uint64.
func toUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

func external(op string, err error) error {
	return &callError{op: op, err: err}
}

// callError is a failed RPC round trip. Its short message is what a user
// sees: the decoded revert reason when the node returned revert data,
// otherwise the first line of the innermost error.
type callError struct {
	op  string
	err error
}

func (e *callError) Error() string {
	return fmt.Sprintf("chain: %s: %v: %v", e.op, domain.ErrExternal, e.err)
}

func (e *callError) Unwrap() []error { return []error{domain.ErrExternal, e.err} }

func (e *callError) ShortMessage() string {
	var de rpc.DataError
	if errors.As(e.err, &de) {
		if reason, ok := revertReason(de.ErrorData()); ok {
			return reason
		}
	}
	msg := domain.Cause(e.err).Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

// revertReason decodes Error(string) revert data as returned in a JSON-RPC
// error's data field.
func revertReason(data any) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}
