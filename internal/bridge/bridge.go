// Package bridge moves the stable asset onto the vault chain through
// Circle's CCTP: burn on the source chain, poll the attestation service,
// then mint on the destination.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonslash/neonvault/internal/domain"
)

// Burner submits depositForBurn on a source chain.
type Burner interface {
	DepositForBurn(ctx context.Context, amount *big.Int, destDomain uint32, recipient, burnToken common.Address) (domain.PendingTx, error)
}

// Minter submits receiveMessage on the destination chain.
type Minter interface {
	ReceiveMessage(ctx context.Context, message, attestation []byte) (domain.PendingTx, error)
}

// Attester looks up burn attestations.
type Attester interface {
	Lookup(ctx context.Context, sourceDomain uint32, txHash string) (Attestation, error)
}

// Source is one configured source network.
type Source struct {
	Name             string
	Domain           uint32
	Token            domain.TokenClient
	TokenAddress     common.Address
	Messenger        Burner
	MessengerAddress common.Address
}

// Options tunes a Client.
type Options struct {
	Destination       string
	DestinationDomain uint32
	PollInterval      time.Duration
	Timeout           time.Duration
}

var _ domain.Bridge = (*Client)(nil)

// Client implements domain.Bridge over CCTP.
type Client struct {
	sources  map[string]Source
	attester Attester
	minter   Minter
	sender   common.Address
	opts     Options
	logger   *slog.Logger
}

// New creates a bridge client. sender is the burning account and the default
// mint recipient.
func New(sources []Source, attester Attester, minter Minter, sender common.Address, opts Options, logger *slog.Logger) *Client {
	if opts.Destination == "" {
		opts.Destination = ArcTestnet
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Name] = s
	}
	return &Client{
		sources:  m,
		attester: attester,
		minter:   minter,
		sender:   sender,
		opts:     opts,
		logger:   logger.With(slog.String("component", "bridge")),
	}
}

// Sources returns the configured source network names.
func (c *Client) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}
	return names
}

// Transfer approves the messenger if needed and burns req.Amount on the
// source chain. It returns once the burn is confirmed.
func (c *Client) Transfer(ctx context.Context, req domain.BridgeRequest) (domain.BridgeTransfer, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return domain.BridgeTransfer{}, fmt.Errorf("bridge: amount must be positive: %w", domain.ErrInvalidInput)
	}
	if req.Destination != "" && req.Destination != c.opts.Destination {
		return domain.BridgeTransfer{}, fmt.Errorf("bridge: destination %q: %w", req.Destination, domain.ErrUnsupported)
	}
	src, ok := c.sources[req.Source]
	if !ok {
		return domain.BridgeTransfer{}, fmt.Errorf("bridge: source %q: %w", req.Source, domain.ErrUnsupported)
	}
	recipient := c.sender
	if req.Recipient != "" {
		if !common.IsHexAddress(req.Recipient) {
			return domain.BridgeTransfer{}, fmt.Errorf("bridge: recipient %q: %w", req.Recipient, domain.ErrInvalidInput)
		}
		recipient = common.HexToAddress(req.Recipient)
	}

	allowance, err := src.Token.Allowance(ctx, c.sender.Hex(), src.MessengerAddress.Hex())
	if err != nil {
		return domain.BridgeTransfer{}, fmt.Errorf("bridge: read allowance: %w", err)
	}
	if allowance.Cmp(req.Amount) < 0 {
		ptx, err := src.Token.Approve(ctx, src.MessengerAddress.Hex(), req.Amount)
		if err != nil {
			return domain.BridgeTransfer{}, fmt.Errorf("bridge: approve: %w", err)
		}
		if _, err := ptx.Wait(ctx); err != nil {
			return domain.BridgeTransfer{}, fmt.Errorf("bridge: approve: %w", err)
		}
	}

	ptx, err := src.Messenger.DepositForBurn(ctx, req.Amount, c.opts.DestinationDomain, recipient, src.TokenAddress)
	if err != nil {
		return domain.BridgeTransfer{}, fmt.Errorf("bridge: burn: %w", err)
	}
	if _, err := ptx.Wait(ctx); err != nil {
		return domain.BridgeTransfer{}, fmt.Errorf("bridge: burn: %w", err)
	}

	c.logger.InfoContext(ctx, "burn confirmed",
		slog.String("source", src.Name),
		slog.String("tx", ptx.Hash()),
		slog.String("amount", req.Amount.String()),
	)
	return domain.BridgeTransfer{
		Source:      src.Name,
		Destination: c.opts.Destination,
		Amount:      new(big.Int).Set(req.Amount),
		BurnTxHash:  ptx.Hash(),
		StartedAt:   time.Now().UTC(),
	}, nil
}

// Status asks the attestation service about t's burn.
func (c *Client) Status(ctx context.Context, t domain.BridgeTransfer) (domain.BridgeStatus, error) {
	src, ok := c.sources[t.Source]
	if !ok {
		return domain.BridgeStatus{}, fmt.Errorf("bridge: source %q: %w", t.Source, domain.ErrUnsupported)
	}
	a, err := c.attester.Lookup(ctx, src.Domain, t.BurnTxHash)
	if err != nil {
		return domain.BridgeStatus{}, fmt.Errorf("bridge: status: %w", err)
	}
	if !a.Complete {
		return domain.BridgeStatus{State: domain.BridgePending, Detail: a.Status}, nil
	}
	return domain.BridgeStatus{
		State:       domain.BridgeAttested,
		Message:     a.Message,
		Attestation: a.Attestation,
		Detail:      a.Status,
	}, nil
}

// Complete mints an attested transfer on the destination chain.
func (c *Client) Complete(ctx context.Context, st domain.BridgeStatus) (domain.BridgeStatus, error) {
	if st.State != domain.BridgeAttested {
		return st, fmt.Errorf("bridge: complete in state %s: %w", st.State, domain.ErrPrecondition)
	}
	ptx, err := c.minter.ReceiveMessage(ctx, st.Message, st.Attestation)
	if err != nil {
		return st, fmt.Errorf("bridge: mint: %w", err)
	}
	if _, err := ptx.Wait(ctx); err != nil {
		return st, fmt.Errorf("bridge: mint: %w", err)
	}
	st.State = domain.BridgeCompleted
	st.MintTxHash = ptx.Hash()
	return st, nil
}

// Track polls t until it is attested, mints it and returns the final
// status. onProgress sees every state change. Lookup errors are logged and
// polling continues until the configured timeout.
func (c *Client) Track(ctx context.Context, t domain.BridgeTransfer, onProgress func(domain.BridgeStatus)) (domain.BridgeStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	last := domain.BridgeState("")
	report := func(st domain.BridgeStatus) {
		if st.State != last && onProgress != nil {
			onProgress(st)
		}
		last = st.State
	}
	report(domain.BridgeStatus{State: domain.BridgePending})

	for {
		st, err := c.Status(ctx, t)
		switch {
		case err == nil && st.State == domain.BridgeAttested:
			report(st)
			done, err := c.Complete(ctx, st)
			if err != nil {
				failed := domain.BridgeStatus{State: domain.BridgeFailed, Detail: FailureMessage(err)}
				report(failed)
				return failed, err
			}
			report(done)
			return done, nil
		case err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled):
			c.logger.WarnContext(ctx, "attestation lookup failed",
				slog.String("tx", t.BurnTxHash),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			failed := domain.BridgeStatus{State: domain.BridgeFailed, Detail: "attestation timed out"}
			report(failed)
			return failed, fmt.Errorf("bridge: track %s: %w", t.BurnTxHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// FailureMessage is the user-facing text for a failed transfer.
func FailureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Bridge failed"
	}
	return err.Error()
}
