package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/neonslash/neonvault/internal/bridge"
	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/state"
)

// ActionBridge names bridge notifications and audit entries.
const ActionBridge = "bridge"

// BridgeTracker is a bridge that can also follow a transfer to completion.
type BridgeTracker interface {
	domain.Bridge
	Track(ctx context.Context, t domain.BridgeTransfer, onProgress func(domain.BridgeStatus)) (domain.BridgeStatus, error)
}

// BridgeRequest is a user's request to bring funds onto the vault chain.
// Source wins over SourceChainID when both are set.
type BridgeRequest struct {
	Source        string `json:"source"`
	SourceChainID int64  `json:"source_chain_id"`
	Amount        string `json:"amount"`
	Recipient     string `json:"recipient"`
}

// TransferJSON is the observed progress of one transfer.
type TransferJSON struct {
	User        string `json:"user"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	BurnTxHash  string `json:"burn_tx_hash"`
	MintTxHash  string `json:"mint_tx_hash,omitempty"`
	State       string `json:"state"`
	Detail      string `json:"detail,omitempty"`
	StartedAt   int64  `json:"started_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// BridgeService starts transfers and follows them in the background,
// reporting progress through the inbox.
type BridgeService struct {
	bridge      BridgeTracker
	sessions    *state.Registry
	inbox       *notify.Inbox
	notifier    *notify.Notifier
	decimals    int
	switchDelay time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	transfers map[string]*TransferJSON
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	ctx       context.Context
}

// NewBridgeService creates a BridgeService. notifier may be nil.
func NewBridgeService(
	b BridgeTracker,
	sessions *state.Registry,
	inbox *notify.Inbox,
	notifier *notify.Notifier,
	decimals int,
	switchDelay time.Duration,
	logger *slog.Logger,
) *BridgeService {
	if decimals <= 0 {
		decimals = engine.TokenDecimals
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BridgeService{
		bridge:      b,
		sessions:    sessions,
		inbox:       inbox,
		notifier:    notifier,
		decimals:    decimals,
		switchDelay: switchDelay,
		logger:      logger.With(slog.String("component", "bridge_service")),
		transfers:   make(map[string]*TransferJSON),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start burns on the source chain and follows the transfer in the
// background. It returns once the burn is confirmed.
func (b *BridgeService) Start(ctx context.Context, user string, req BridgeRequest) (TransferJSON, error) {
	amount, err := engine.ParseTokenAmount(req.Amount, b.decimals)
	if err != nil {
		err = reject("Enter a valid amount", err)
		b.inbox.Error(ctx, user, ActionBridge, err)
		return TransferJSON{}, err
	}
	source := req.Source
	if source == "" {
		source = bridge.SourceForChainID(req.SourceChainID)
	}

	t, err := b.bridge.Transfer(ctx, domain.BridgeRequest{
		Source:    source,
		Amount:    amount,
		Recipient: req.Recipient,
	})
	if err != nil {
		if !domain.IsLocalRejection(err) {
			err = reject(bridge.FailureMessage(err), err)
		}
		b.logger.ErrorContext(ctx, "bridge transfer failed",
			slog.String("user", user),
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		b.inbox.Error(ctx, user, ActionBridge, err)
		return TransferJSON{}, fmt.Errorf("service: bridge: %w", err)
	}

	rec := &TransferJSON{
		User:        user,
		Source:      t.Source,
		Destination: t.Destination,
		Amount:      engine.FormatTokenAmount(t.Amount, b.decimals),
		BurnTxHash:  t.BurnTxHash,
		State:       string(domain.BridgePending),
		StartedAt:   t.StartedAt.Unix(),
		UpdatedAt:   t.StartedAt.Unix(),
	}
	b.mu.Lock()
	b.transfers[t.BurnTxHash] = rec
	out := *rec
	b.mu.Unlock()

	b.inbox.Info(ctx, user, ActionBridge, fmt.Sprintf("Burn confirmed on %s, waiting for attestation", t.Source))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.follow(b.ctx, user, t)
	}()
	return out, nil
}

func (b *BridgeService) follow(ctx context.Context, user string, t domain.BridgeTransfer) {
	final, err := b.bridge.Track(ctx, t, func(st domain.BridgeStatus) {
		b.update(t.BurnTxHash, st)
	})
	b.update(t.BurnTxHash, final)
	if err != nil {
		b.inbox.Error(ctx, user, ActionBridge, reject(bridge.FailureMessage(err), err))
		if nerr := b.notifier.Notify(ctx, notify.EventError, "Bridge failed", fmt.Sprintf("%s: %v", t.BurnTxHash, err)); nerr != nil {
			b.logger.WarnContext(ctx, "operator notify failed", slog.String("error", nerr.Error()))
		}
		return
	}

	amount := engine.FormatTokenAmount(t.Amount, b.decimals)
	b.inbox.Success(ctx, user, ActionBridge, fmt.Sprintf("Bridged %s USDC to %s", amount, t.Destination), final.MintTxHash)
	if nerr := b.notifier.Notify(ctx, notify.EventBridgeCompleted, "Bridge completed",
		fmt.Sprintf("%s USDC from %s for %s", amount, t.Source, user)); nerr != nil {
		b.logger.WarnContext(ctx, "operator notify failed", slog.String("error", nerr.Error()))
	}

	// The destination balance is read once the wallet has switched over.
	s := b.sessions.Get(user)
	s.RefreshAfter(ctx, b.switchDelay, s.RefreshAllowance, s.RefreshStake)
}

func (b *BridgeService) update(hash string, st domain.BridgeStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.transfers[hash]
	if !ok || st.State == "" {
		return
	}
	rec.State = string(st.State)
	rec.Detail = st.Detail
	if st.MintTxHash != "" {
		rec.MintTxHash = st.MintTxHash
	}
	rec.UpdatedAt = time.Now().UTC().Unix()
}

// Transfers returns user's transfers, newest first.
func (b *BridgeService) Transfers(user string) []TransferJSON {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []TransferJSON
	for _, rec := range b.transfers {
		if strings.EqualFold(rec.User, user) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out
}

// Close abandons tracking and waits for the background followers.
func (b *BridgeService) Close() {
	b.cancel()
	b.wg.Wait()
}
