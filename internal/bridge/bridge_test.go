package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/vaulttest"
)

var (
	sender        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	messengerAddr = common.HexToAddress("0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA")
	usdcAddr      = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
)

type pending struct {
	hash string
	err  error
}

func (p pending) Hash() string { return p.hash }
func (p pending) Wait(context.Context) (domain.Receipt, error) {
	return domain.Receipt{TxHash: p.hash, Success: p.err == nil}, p.err
}

type fakeBurner struct {
	mu        sync.Mutex
	calls     int
	amount    *big.Int
	domain    uint32
	recipient common.Address
	err       error
}

func (f *fakeBurner) DepositForBurn(_ context.Context, amount *big.Int, destDomain uint32, recipient, _ common.Address) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.amount, f.domain, f.recipient = amount, destDomain, recipient
	if f.err != nil {
		return nil, f.err
	}
	return pending{hash: "0xburn"}, nil
}

type fakeMinter struct {
	message []byte
	err     error
}

func (f *fakeMinter) ReceiveMessage(_ context.Context, message, _ []byte) (domain.PendingTx, error) {
	f.message = message
	return pending{hash: "0xmint", err: f.err}, nil
}

type scriptedAttester struct {
	calls   atomic.Int32
	readyAt int32
}

func (s *scriptedAttester) Lookup(context.Context, uint32, string) (Attestation, error) {
	n := s.calls.Add(1)
	if n < s.readyAt {
		return Attestation{Status: "pending_confirmations"}, nil
	}
	return Attestation{Complete: true, Status: "complete", Message: []byte{0x01}, Attestation: []byte{0x02}}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newClient(token domain.TokenClient, burner Burner, att Attester, minter Minter) *Client {
	return New(
		[]Source{{
			Name:             EthereumSepolia,
			Domain:           0,
			Token:            token,
			TokenAddress:     usdcAddr,
			Messenger:        burner,
			MessengerAddress: messengerAddr,
		}},
		att, minter, sender,
		Options{DestinationDomain: 26, PollInterval: time.Millisecond, Timeout: time.Second},
		discard(),
	)
}

func TestSourceForChainID(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{11155111, EthereumSepolia},
		{84532, BaseSepolia},
		{1, Ethereum},
		{8453, Base},
		{5042002, EthereumSepolia},
		{0, EthereumSepolia},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SourceForChainID(tt.id), "chain %d", tt.id)
	}
}

func TestTransfer_ApprovesThenBurns(t *testing.T) {
	token := vaulttest.New(sender.Hex(), sender.Hex())
	burner := &fakeBurner{}
	c := newClient(token, burner, &scriptedAttester{}, &fakeMinter{})

	tr, err := c.Transfer(context.Background(), domain.BridgeRequest{
		Source: EthereumSepolia, Destination: ArcTestnet, Amount: big.NewInt(2_000_000),
	})
	require.NoError(t, err)

	assert.True(t, token.Called("approve"))
	assert.Equal(t, 1, burner.calls)
	assert.Equal(t, uint32(26), burner.domain)
	assert.Equal(t, sender, burner.recipient)
	assert.Equal(t, "0xburn", tr.BurnTxHash)
	assert.Equal(t, ArcTestnet, tr.Destination)
	assert.Equal(t, int64(2_000_000), tr.Amount.Int64())
}

func TestTransfer_SkipsApproveWithAllowance(t *testing.T) {
	token := vaulttest.New(sender.Hex(), sender.Hex())
	token.Allowances[strings.ToLower(sender.Hex())] = big.NewInt(5_000_000)
	burner := &fakeBurner{}
	c := newClient(token, burner, &scriptedAttester{}, &fakeMinter{})

	_, err := c.Transfer(context.Background(), domain.BridgeRequest{Source: EthereumSepolia, Amount: big.NewInt(1)})
	require.NoError(t, err)
	assert.False(t, token.Called("approve"))
}

func TestTransfer_Rejections(t *testing.T) {
	token := vaulttest.New(sender.Hex(), sender.Hex())
	burner := &fakeBurner{}
	c := newClient(token, burner, &scriptedAttester{}, &fakeMinter{})
	ctx := context.Background()

	_, err := c.Transfer(ctx, domain.BridgeRequest{Source: EthereumSepolia, Amount: big.NewInt(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.Transfer(ctx, domain.BridgeRequest{Source: EthereumSepolia})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.Transfer(ctx, domain.BridgeRequest{Source: "Polygon", Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	_, err = c.Transfer(ctx, domain.BridgeRequest{Source: EthereumSepolia, Destination: "Base", Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	assert.Zero(t, burner.calls)
}

func TestTransfer_BurnFailure(t *testing.T) {
	token := vaulttest.New(sender.Hex(), sender.Hex())
	burner := &fakeBurner{err: errors.New("insufficient funds")}
	c := newClient(token, burner, &scriptedAttester{}, &fakeMinter{})

	_, err := c.Transfer(context.Background(), domain.BridgeRequest{Source: EthereumSepolia, Amount: big.NewInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestTrack_PollsUntilAttestedThenMints(t *testing.T) {
	att := &scriptedAttester{readyAt: 3}
	minter := &fakeMinter{}
	c := newClient(vaulttest.New(sender.Hex(), sender.Hex()), &fakeBurner{}, att, minter)

	var states []domain.BridgeState
	st, err := c.Track(context.Background(), domain.BridgeTransfer{Source: EthereumSepolia, BurnTxHash: "0xburn"},
		func(s domain.BridgeStatus) { states = append(states, s.State) })
	require.NoError(t, err)

	assert.Equal(t, domain.BridgeCompleted, st.State)
	assert.Equal(t, "0xmint", st.MintTxHash)
	assert.Equal(t, []byte{0x01}, minter.message)
	assert.Equal(t, []domain.BridgeState{domain.BridgePending, domain.BridgeAttested, domain.BridgeCompleted}, states)
	assert.GreaterOrEqual(t, att.calls.Load(), int32(3))
}

func TestTrack_MintFailureReportsFailed(t *testing.T) {
	minter := &fakeMinter{err: fmt.Errorf("%w: nonce already used", domain.ErrTxReverted)}
	c := newClient(vaulttest.New(sender.Hex(), sender.Hex()), &fakeBurner{}, &scriptedAttester{readyAt: 1}, minter)

	st, err := c.Track(context.Background(), domain.BridgeTransfer{Source: EthereumSepolia, BurnTxHash: "0xburn"}, nil)
	assert.ErrorIs(t, err, domain.ErrTxReverted)
	assert.Equal(t, domain.BridgeFailed, st.State)
	assert.Contains(t, st.Detail, "nonce already used")
}

func TestTrack_TimesOut(t *testing.T) {
	c := newClient(vaulttest.New(sender.Hex(), sender.Hex()), &fakeBurner{}, &scriptedAttester{readyAt: 1 << 30}, &fakeMinter{})
	c.opts.Timeout = 20 * time.Millisecond

	st, err := c.Track(context.Background(), domain.BridgeTransfer{Source: EthereumSepolia, BurnTxHash: "0xburn"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.BridgeFailed, st.State)
}

func TestComplete_RequiresAttestation(t *testing.T) {
	c := newClient(vaulttest.New(sender.Hex(), sender.Hex()), &fakeBurner{}, &scriptedAttester{}, &fakeMinter{})
	_, err := c.Complete(context.Background(), domain.BridgeStatus{State: domain.BridgePending})
	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Bridge failed", FailureMessage(nil))
	assert.Equal(t, "user rejected", FailureMessage(errors.New("user rejected")))
}

func TestIrisClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("transactionHash") {
		case "0xdone":
			assert.Equal(t, "/v2/messages/6", r.URL.Path)
			fmt.Fprint(w, `{"messages":[{"message":"0x0a0b","attestation":"0xff","status":"complete"}]}`)
		case "0xwait":
			fmt.Fprint(w, `{"messages":[{"message":"0x","attestation":"PENDING","status":"pending_confirmations"}]}`)
		case "0xslow":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewIrisClient(srv.URL+"/", 0)
	ctx := context.Background()

	a, err := c.Lookup(ctx, 6, "0xdone")
	require.NoError(t, err)
	assert.True(t, a.Complete)
	assert.Equal(t, []byte{0x0a, 0x0b}, a.Message)
	assert.Equal(t, []byte{0xff}, a.Attestation)

	a, err = c.Lookup(ctx, 6, "0xwait")
	require.NoError(t, err)
	assert.False(t, a.Complete)
	assert.Equal(t, "pending_confirmations", a.Status)

	a, err = c.Lookup(ctx, 6, "0xunknown")
	require.NoError(t, err)
	assert.False(t, a.Complete)

	_, err = c.Lookup(ctx, 6, "0xslow")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
