package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/neonslash/neonvault/internal/domain"
)

var _ domain.TokenClient = (*Token)(nil)

// Token binds an ERC-20 contract.
type Token struct {
	backend Backend
	address common.Address
	tx      *Transactor
}

// NewToken binds the token at address. tx may be nil for a read-only binding.
func NewToken(backend Backend, address common.Address, tx *Transactor) *Token {
	return &Token{backend: backend, address: address, tx: tx}
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.address }

func (t *Token) readBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	res, err := t.backend.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data}, nil)
	if err != nil {
		return nil, external(method, err)
	}
	out, err := erc20ABI.Unpack(method, res)
	if err != nil {
		return nil, external("unpack "+method, err)
	}
	n, ok := out[0].(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("chain: %s: unexpected output %T: %w", method, out[0], domain.ErrExternal)
	}
	return n, nil
}

func (t *Token) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	o, err := ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	s, err := ParseAddress(spender)
	if err != nil {
		return nil, err
	}
	return t.readBig(ctx, "allowance", o, s)
}

func (t *Token) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	o, err := ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	return t.readBig(ctx, "balanceOf", o)
}

func (t *Token) Approve(ctx context.Context, spender string, amount *big.Int) (domain.PendingTx, error) {
	if t.tx == nil {
		return nil, fmt.Errorf("chain: approve: %w", domain.ErrNoSigner)
	}
	s, err := ParseAddress(spender)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("approve", s, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return t.tx.Send(ctx, t.address, data, "approve")
}
