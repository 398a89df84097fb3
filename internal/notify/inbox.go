package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neonslash/neonvault/internal/domain"
)

// DefaultTTL is how long a notification stays visible unless dismissed.
const DefaultTTL = 10 * time.Second

// ShortMessager is implemented by errors that carry a concise user-facing
// message next to their full text.
type ShortMessager interface {
	ShortMessage() string
}

// UserMessage renders err for a notification: the short message when the
// error carries one, the full text otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var sm ShortMessager
	if errors.As(err, &sm) {
		if msg := strings.TrimSpace(sm.ShortMessage()); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "Transaction failed"
}

// Inbox holds the transient notifications of every user and publishes each
// new one on the signal bus.
type Inbox struct {
	mu     sync.Mutex
	byUser map[string][]domain.Notification
	ttl    time.Duration
	bus    domain.SignalBus
	clock  func() time.Time
	logger *slog.Logger
}

// NewInbox creates an Inbox. bus may be nil.
func NewInbox(ttl time.Duration, bus domain.SignalBus, logger *slog.Logger) *Inbox {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Inbox{
		byUser: make(map[string][]domain.Notification),
		ttl:    ttl,
		bus:    bus,
		clock:  time.Now,
		logger: logger.With(slog.String("component", "inbox")),
	}
}

// SetClock replaces the time source.
func (in *Inbox) SetClock(clock func() time.Time) { in.clock = clock }

// Push stores n, filling ID, CreatedAt and TTL when unset.
func (in *Inbox) Push(ctx context.Context, n domain.Notification) domain.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = in.clock()
	}
	if n.TTL == 0 {
		n.TTL = in.ttl
	}
	user := strings.ToLower(n.User)

	in.mu.Lock()
	in.byUser[user] = append(pruned(in.byUser[user], n.CreatedAt), n)
	in.mu.Unlock()

	if in.bus != nil {
		payload, err := json.Marshal(Payload(n))
		if err == nil {
			if err := in.bus.Publish(ctx, domain.ChannelNotification, payload); err != nil {
				in.logger.WarnContext(ctx, "publish notification failed", slog.String("error", err.Error()))
			}
		}
	}
	return n
}

// Success records a confirmed action.
func (in *Inbox) Success(ctx context.Context, user, action, message, txHash string) domain.Notification {
	return in.Push(ctx, domain.Notification{
		User: user, Kind: domain.NotifySuccess, Action: action, Message: message, TxHash: txHash,
	})
}

// Error records a failed or rejected action.
func (in *Inbox) Error(ctx context.Context, user, action string, err error) domain.Notification {
	return in.Push(ctx, domain.Notification{
		User: user, Kind: domain.NotifyError, Action: action, Message: UserMessage(err),
	})
}

// Info records an informational message.
func (in *Inbox) Info(ctx context.Context, user, action, message string) domain.Notification {
	return in.Push(ctx, domain.Notification{
		User: user, Kind: domain.NotifyInfo, Action: action, Message: message,
	})
}

// List returns the user's live notifications, newest first.
func (in *Inbox) List(user string) []domain.Notification {
	now := in.clock()
	user = strings.ToLower(user)

	in.mu.Lock()
	live := pruned(in.byUser[user], now)
	in.byUser[user] = live
	out := make([]domain.Notification, 0, len(live))
	for i := len(live) - 1; i >= 0; i-- {
		out = append(out, live[i])
	}
	in.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Dismiss removes one notification. It reports whether it existed.
func (in *Inbox) Dismiss(user, id string) bool {
	user = strings.ToLower(user)
	in.mu.Lock()
	defer in.mu.Unlock()
	list := in.byUser[user]
	for i, n := range list {
		if n.ID == id {
			in.byUser[user] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Prune drops expired notifications of every user.
func (in *Inbox) Prune() {
	now := in.clock()
	in.mu.Lock()
	defer in.mu.Unlock()
	for u, list := range in.byUser {
		if live := pruned(list, now); len(live) > 0 {
			in.byUser[u] = live
		} else {
			delete(in.byUser, u)
		}
	}
}

func pruned(list []domain.Notification, now time.Time) []domain.Notification {
	out := list[:0:0]
	for _, n := range list {
		if !n.Expired(now) {
			out = append(out, n)
		}
	}
	return out
}

// NotificationPayload is the JSON form of a notification.
type NotificationPayload struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	TxHash    string    `json:"tx_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Payload converts one notification to its JSON form.
func Payload(n domain.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		User:      n.User,
		Kind:      string(n.Kind),
		Action:    n.Action,
		Message:   n.Message,
		TxHash:    n.TxHash,
		CreatedAt: n.CreatedAt,
		ExpiresAt: n.CreatedAt.Add(n.TTL),
	}
}

// Payloads converts notifications to their JSON form.
func Payloads(ns []domain.Notification) []NotificationPayload {
	out := make([]NotificationPayload, 0, len(ns))
	for _, n := range ns {
		out = append(out, Payload(n))
	}
	return out
}
