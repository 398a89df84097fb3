package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/state"
	"github.com/neonslash/neonvault/internal/vaulttest"
)

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  [][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *recordingBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

func (b *recordingBus) last(t *testing.T, channel string, v any) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.published[channel]
	require.NotEmpty(t, list, channel)
	require.NoError(t, json.Unmarshal(list[len(list)-1], v))
}

type memCache struct {
	markets []domain.Market
	sets    int
}

func (c *memCache) SetAll(_ context.Context, markets []domain.Market) error {
	c.markets = markets
	c.sets++
	return nil
}

func (c *memCache) GetAll(context.Context) ([]domain.Market, error) {
	if c.markets == nil {
		return nil, domain.ErrNotFound
	}
	return c.markets, nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.markets = nil
	return nil
}

type memStore struct {
	mu       sync.Mutex
	markets  []domain.Market
	bets     []domain.Bet
	accounts map[string]domain.AccountSnapshot
}

func (s *memStore) UpsertBatch(_ context.Context, markets []domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets = markets
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uint64) (domain.Market, error) {
	for _, m := range s.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memStore) List(context.Context) ([]domain.Market, error) { return s.markets, nil }

func (s *memStore) ListResolvedBefore(context.Context, time.Time) ([]domain.Market, error) {
	return nil, nil
}

func (s *memStore) Count(context.Context) (int64, error) { return int64(len(s.markets)), nil }

type memBets struct{ *memStore }

func (b memBets) UpsertBatch(_ context.Context, bets []domain.Bet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bets = append(b.bets, bets...)
	return nil
}

func (b memBets) ListByUser(context.Context, string) ([]domain.Bet, error) { return b.bets, nil }

func (s *memStore) Upsert(_ context.Context, snap domain.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts == nil {
		s.accounts = make(map[string]domain.AccountSnapshot)
	}
	s.accounts[snap.User] = snap
	return nil
}

func (s *memStore) Get(_ context.Context, user string) (domain.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.accounts[user]
	if !ok {
		return domain.AccountSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func seededVault() *vaulttest.Vault {
	v := vaulttest.New(owner, user)
	v.Now = func() time.Time { return t0 }
	v.AddMarket(domain.Market{Description: "Stocks up?", Category: "Stocks", Deadline: t0.Add(time.Hour), TotalYes: 30, TotalNo: 10})
	v.AddMarket(domain.Market{Description: "Gold up?", Category: "Gold", Deadline: t0.Add(2 * time.Hour)})
	v.AddMarket(domain.Market{Description: "Old", Category: "Stocks", Deadline: t0.Add(-time.Hour), Resolved: true, Result: true})
	v.SetBet(domain.Bet{MarketID: 3, User: user, Amount: 7, Prediction: true})
	v.PointsBal[key(user)] = 120
	return v
}

func newRegistry(t *testing.T, v *vaulttest.Vault, tick time.Duration) *state.Registry {
	t.Helper()
	r := state.NewRegistry(v, v, state.SessionConfig{
		Spender: v.Spender,
		Tick:    tick,
		Clock:   func() time.Time { return t0 },
	}, discardLogger())
	t.Cleanup(r.Close)
	return r
}

func TestCatalog_MemoizesAndFillsCache(t *testing.T) {
	v := seededVault()
	cache := &memCache{}
	c := NewCatalog(v, cache, nil, newRegistry(t, v, 0), 0, discardLogger())
	now := t0
	c.SetClock(func() time.Time { return now })

	markets, err := c.Markets(context.Background())
	require.NoError(t, err)
	assert.Len(t, markets, 3)
	assert.Equal(t, 1, cache.sets)

	_, err = c.Markets(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.Calls(), 1, "second read served from memo")

	now = now.Add(10 * time.Second)
	_, err = c.Markets(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.Calls(), 1, "expired memo refilled from the shared cache")
}

func TestCatalog_FallsBackToStore(t *testing.T) {
	v := seededVault()
	v.Errors["getAllMarkets"] = errors.New("rpc down")
	store := &memStore{markets: []domain.Market{{ID: 9, Description: "stored", Category: "Gold", Exists: true}}}
	c := NewCatalog(v, nil, store, newRegistry(t, v, 0), 0, discardLogger())

	markets, err := c.Markets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, uint64(9), markets[0].ID)

	c2 := NewCatalog(v, nil, nil, newRegistry(t, v, 0), 0, discardLogger())
	_, err = c2.Markets(context.Background())
	assert.Error(t, err)
}

func TestCatalog_BrowseAndLookups(t *testing.T) {
	v := seededVault()
	c := NewCatalog(v, nil, nil, newRegistry(t, v, 0), 0, discardLogger())
	c.SetClock(func() time.Time { return t0 })
	ctx := context.Background()

	page, err := c.Browse(ctx, "", "Stocks", 1)
	require.NoError(t, err)
	assert.Equal(t, "Stocks", page.Category)
	require.Len(t, page.Markets, 1)
	assert.Equal(t, uint64(1), page.Markets[0].ID)
	assert.Equal(t, 75, page.Markets[0].YesPercent)

	hist, err := c.Browse(ctx, user, "History", 1)
	require.NoError(t, err)
	require.Len(t, hist.Markets, 1)
	assert.Equal(t, uint64(3), hist.Markets[0].ID)
	require.Len(t, hist.Bets, 1)
	assert.Equal(t, "Claim winnings", hist.Bets[0].Label)

	m, err := c.Market(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Gold up?", m.Description)

	_, err = c.Market(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	bets, err := c.Bets(ctx, user)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, uint64(7), bets[0].Amount)

	acct, err := c.Account(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), acct.Points)
	assert.Equal(t, uint64(50), acct.DefaultBet)
	assert.Equal(t, "0", acct.Staked)
	assert.False(t, acct.IsOwner)
}

func TestIndexer_TickFansOut(t *testing.T) {
	v := seededVault()
	v.Staked[key(user)] = big.NewInt(4_000_000)
	sessions := newRegistry(t, v, 0)
	catalog := NewCatalog(v, nil, nil, sessions, 0, discardLogger())
	store := &memStore{}
	cache := &memCache{}
	bus := &recordingBus{}

	ix := NewIndexer(v, sessions, catalog, IndexerStores{
		Markets:  store,
		Bets:     memBets{store},
		Accounts: store,
	}, cache, bus, []string{user}, time.Minute, discardLogger())

	require.NoError(t, ix.Tick(context.Background()))

	assert.Len(t, store.markets, 3)
	assert.Len(t, cache.markets, 3)
	require.Len(t, store.bets, 1)
	assert.Equal(t, uint64(3), store.bets[0].MarketID)

	snap, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), snap.Points)

	var ms MarketSnapshotEvent
	bus.last(t, domain.ChannelMarketSnapshot, &ms)
	assert.Len(t, ms.Markets, 3)
	assert.Equal(t, 3, ms.Stats.Total)

	var as AccountSnapshotEvent
	bus.last(t, domain.ChannelAccountSnapshot, &as)
	assert.Equal(t, "4", as.Account.Staked)
	require.Len(t, as.Bets, 1)
	assert.Equal(t, "claim_ready", as.Bets[0].State)

	before := len(v.Calls())
	_, err = catalog.Markets(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.Calls(), before, "catalog serves the indexed list")
}

func TestIndexer_ReadFailure(t *testing.T) {
	v := seededVault()
	v.Errors["getAllMarkets"] = errors.New("rpc down")
	bus := &recordingBus{}
	ix := NewIndexer(v, newRegistry(t, v, 0), nil, IndexerStores{}, nil, bus, nil, 0, discardLogger())

	err := ix.Tick(context.Background())
	require.Error(t, err)
	assert.Zero(t, bus.count(domain.ChannelMarketSnapshot))
}

func TestBondPublisher_TicksOnlyFollowedSessions(t *testing.T) {
	v := seededVault()
	v.Bonds[key(user)] = big.NewInt(2_000_000)
	sessions := newRegistry(t, v, 10*time.Millisecond)
	catalog := NewCatalog(v, nil, nil, sessions, 0, discardLogger())
	for i := 0; i < 20; i++ {
		_, err := catalog.Account(context.Background(), fmt.Sprintf("0x%040x", i+1))
		require.NoError(t, err)
	}
	release := sessions.Follow(user)
	bus := &recordingBus{}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewBondPublisher(sessions, bus, 20*time.Millisecond, time.Hour, discardLogger())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return bus.count(domain.ChannelBondTick) >= 2 }, 2*time.Second, 5*time.Millisecond)
	var tick BondTickEvent
	bus.last(t, domain.ChannelBondTick, &tick)
	assert.Equal(t, key(user), key(tick.User))
	assert.Greater(t, tick.Value, 2.0)

	running := 0
	for _, s := range sessions.All() {
		if s.TickerRunning() {
			running++
		}
	}
	assert.Equal(t, 1, running, "one-off reads must not start tickers")

	release()
	s, ok := sessions.Lookup(user)
	require.True(t, ok)
	require.Eventually(t, func() bool { return !s.TickerRunning() }, time.Second, 5*time.Millisecond,
		"last follower stops the ticker")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestBondPublisher_ReadsBondOfFollowedSession(t *testing.T) {
	v := seededVault()
	v.Bonds[key(user)] = big.NewInt(2_000_000)
	sessions := newRegistry(t, v, 10*time.Millisecond)
	defer sessions.Follow(user)()
	bus := &recordingBus{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewBondPublisher(sessions, bus, time.Hour, time.Hour, discardLogger()).Run(ctx) }()

	require.Eventually(t, func() bool { return bus.count(domain.ChannelBondTick) >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestBondPublisher_EvictsIdleSessions(t *testing.T) {
	v := seededVault()
	var mu sync.Mutex
	now := t0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	sessions := state.NewRegistry(v, v, state.SessionConfig{Spender: v.Spender, Clock: clock}, discardLogger())
	t.Cleanup(sessions.Close)

	catalog := NewCatalog(v, nil, nil, sessions, 0, discardLogger())
	for i := 0; i < 5; i++ {
		_, err := catalog.Account(context.Background(), fmt.Sprintf("0x%040x", i+1))
		require.NoError(t, err)
	}
	defer sessions.Follow(user)()
	require.Equal(t, 6, sessions.Len())

	mu.Lock()
	now = now.Add(11 * time.Minute)
	mu.Unlock()

	p := NewBondPublisher(sessions, nil, time.Hour, 10*time.Minute, discardLogger())
	p.reconcile(context.Background())

	assert.Equal(t, 1, sessions.Len(), "only the followed session survives")
	_, ok := sessions.Lookup(user)
	assert.True(t, ok)
}

func TestIndexer_IndexesFollowedAccounts(t *testing.T) {
	v := seededVault()
	sessions := newRegistry(t, v, 0)
	store := &memStore{}
	ix := NewIndexer(v, sessions, nil, IndexerStores{Accounts: store}, nil, nil, nil, time.Minute, discardLogger())

	defer sessions.Follow(user)()
	require.NoError(t, ix.Tick(context.Background()))

	snap, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, key(user), key(snap.User))
}

type fakeTracker struct {
	transferErr error
	trackErr    error
}

func (f *fakeTracker) Transfer(_ context.Context, req domain.BridgeRequest) (domain.BridgeTransfer, error) {
	if f.transferErr != nil {
		return domain.BridgeTransfer{}, f.transferErr
	}
	return domain.BridgeTransfer{
		Source:      req.Source,
		Destination: "Arc Testnet",
		Amount:      req.Amount,
		BurnTxHash:  "0xburn",
		StartedAt:   t0,
	}, nil
}

func (f *fakeTracker) Status(context.Context, domain.BridgeTransfer) (domain.BridgeStatus, error) {
	return domain.BridgeStatus{State: domain.BridgePending}, nil
}

func (f *fakeTracker) Track(_ context.Context, _ domain.BridgeTransfer, onProgress func(domain.BridgeStatus)) (domain.BridgeStatus, error) {
	onProgress(domain.BridgeStatus{State: domain.BridgeAttested})
	if f.trackErr != nil {
		return domain.BridgeStatus{State: domain.BridgeFailed, Detail: f.trackErr.Error()}, f.trackErr
	}
	return domain.BridgeStatus{State: domain.BridgeCompleted, MintTxHash: "0xmint"}, nil
}

func newBridgeService(t *testing.T, tracker *fakeTracker) (*BridgeService, *notify.Inbox, *vaulttest.Vault) {
	t.Helper()
	v := seededVault()
	inbox := notify.NewInbox(time.Minute, nil, discardLogger())
	svc := NewBridgeService(tracker, newRegistry(t, v, 0), inbox, nil, 0, time.Millisecond, discardLogger())
	t.Cleanup(svc.Close)
	return svc, inbox, v
}

func TestBridgeService_Completes(t *testing.T) {
	svc, inbox, v := newBridgeService(t, &fakeTracker{})

	rec, err := svc.Start(context.Background(), user, BridgeRequest{SourceChainID: 84532, Amount: "5", Recipient: user})
	require.NoError(t, err)
	assert.Equal(t, "0xburn", rec.BurnTxHash)
	assert.Equal(t, "pending", rec.State)
	assert.Equal(t, "5", rec.Amount)

	require.Eventually(t, func() bool {
		list := svc.Transfers(user)
		return len(list) == 1 && list[0].State == "completed" && list[0].MintTxHash == "0xmint"
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, n := range inbox.List(user) {
			if n.Kind == domain.NotifySuccess && n.Message == "Bridged 5 USDC to Arc Testnet" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return v.Called("stakedUSDC") }, time.Second, 5*time.Millisecond)
}

func TestBridgeService_TrackFailure(t *testing.T) {
	svc, inbox, _ := newBridgeService(t, &fakeTracker{trackErr: errors.New("attestation timed out")})

	_, err := svc.Start(context.Background(), user, BridgeRequest{Source: "Ethereum Sepolia", Amount: "1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		list := svc.Transfers(user)
		return len(list) == 1 && list[0].State == "failed"
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		list := inbox.List(user)
		return len(list) > 0 && list[0].Message == "attestation timed out"
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeService_RejectsBeforeBurning(t *testing.T) {
	svc, inbox, _ := newBridgeService(t, &fakeTracker{})

	_, err := svc.Start(context.Background(), user, BridgeRequest{Amount: "zero"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, "Enter a valid amount", inbox.List(user)[0].Message)

	svc2, inbox2, _ := newBridgeService(t, &fakeTracker{transferErr: errors.New("insufficient funds for gas")})
	_, err = svc2.Start(context.Background(), user, BridgeRequest{Amount: "1"})
	require.Error(t, err)
	assert.Equal(t, "insufficient funds for gas", inbox2.List(user)[0].Message)
	assert.Empty(t, svc2.Transfers(user))
}
