package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/neonslash/neonvault/internal/crypto"
	"github.com/neonslash/neonvault/internal/domain"
)

const (
	gasPriceTTL         = time.Minute
	defaultPoll         = 2 * time.Second
	defaultWaitTimeout  = 2 * time.Minute
	defaultFallbackGas  = uint64(1_000_000)
	fallbackGasPriceWei = 1_000_000_000 // 1 gwei
)

// TransactorConfig tunes gas and confirmation behaviour.
type TransactorConfig struct {
	FallbackGas uint64
	Poll        time.Duration
	WaitTimeout time.Duration
}

// Transactor signs and submits contract calls from one account. Submissions
// are serialised so pending nonces never collide.
type Transactor struct {
	backend Backend
	signer  *crypto.Signer
	cfg     TransactorConfig
	logger  *slog.Logger

	sendMu sync.Mutex

	gasMu        sync.Mutex
	cachedGas    *big.Int
	gasFetchedAt time.Time
}

// NewTransactor creates a Transactor for signer on backend.
func NewTransactor(backend Backend, signer *crypto.Signer, cfg TransactorConfig, logger *slog.Logger) *Transactor {
	if cfg.FallbackGas == 0 {
		cfg.FallbackGas = defaultFallbackGas
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	return &Transactor{
		backend: backend,
		signer:  signer,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "transactor")),
	}
}

// From returns the sending address.
func (t *Transactor) From() common.Address { return t.signer.Address() }

// Send signs and broadcasts a call of data to contract. The returned handle
// waits for the receipt.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte, label string) (domain.PendingTx, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	from := t.signer.Address()
	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, external(label+": nonce", err)
	}
	gasPrice := t.gasPrice(ctx)

	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		// A failing estimate usually means the call would revert; surface it
		// rather than paying for a doomed transaction.
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			return nil, external(label+": estimate gas", err)
		}
		t.logger.WarnContext(ctx, "gas estimate failed, using fallback",
			slog.String("call", label),
			slog.String("error", err.Error()),
		)
		gas = t.cfg.FallbackGas
	} else {
		gas = gas * 12 / 10
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := t.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, external(label+": send", err)
	}

	t.logger.InfoContext(ctx, "transaction sent",
		slog.String("call", label),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
	)
	return &pendingTx{
		hash:    signed.Hash(),
		label:   label,
		backend: t.backend,
		poll:    t.cfg.Poll,
		timeout: t.cfg.WaitTimeout,
	}, nil
}

// gasPrice returns the suggested price plus 10%, cached for a minute.
func (t *Transactor) gasPrice(ctx context.Context) *big.Int {
	t.gasMu.Lock()
	defer t.gasMu.Unlock()
	if t.cachedGas != nil && time.Since(t.gasFetchedAt) < gasPriceTTL {
		return t.cachedGas
	}
	price, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		if t.cachedGas != nil {
			return t.cachedGas
		}
		return big.NewInt(fallbackGasPriceWei)
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))
	t.cachedGas = buffered
	t.gasFetchedAt = time.Now()
	return buffered
}

// pendingTx polls for a receipt.
type pendingTx struct {
	hash    common.Hash
	label   string
	backend Backend
	poll    time.Duration
	timeout time.Duration
}

func (p *pendingTx) Hash() string { return p.hash.Hex() }

func (p *pendingTx) Wait(ctx context.Context) (domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	receipt, err := waitForReceipt(ctx, p.backend, p.hash, p.poll)
	if err != nil {
		return domain.Receipt{TxHash: p.Hash()}, external(p.label+": wait receipt", err)
	}
	r := domain.Receipt{
		TxHash:  p.Hash(),
		GasUsed: receipt.GasUsed,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		r.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !r.Success {
		return r, fmt.Errorf("chain: %s: tx %s: %w", p.label, p.Hash(), domain.ErrTxReverted)
	}
	return r, nil
}

func waitForReceipt(ctx context.Context, b Backend, h common.Hash, poll time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, h)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
