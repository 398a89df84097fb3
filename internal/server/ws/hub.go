// Package ws pushes indexer snapshots, bond ticks and notifications to
// dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/server/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Topics a client can subscribe to. Account-scoped topics are further
// filtered by the users the client follows.
const (
	TopicMarkets      = "market_snapshot"
	TopicAccounts     = "account_snapshot"
	TopicBond         = "bond_tick"
	TopicNotification = "notification"
	topicStatus       = "status"
)

// busTopics maps signal bus channels to client topics.
var busTopics = map[string]string{
	domain.ChannelMarketSnapshot:  TopicMarkets,
	domain.ChannelAccountSnapshot: TopicAccounts,
	domain.ChannelBondTick:        TopicBond,
	domain.ChannelNotification:    TopicNotification,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// frame is one event pre-encoded for both wire formats.
type frame struct {
	topic  string
	user   string // lowercased; empty for broadcast topics
	binary []byte // proto-encoded structpb.Struct envelope
	text   []byte // JSON envelope
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	asJSON bool

	mu      sync.RWMutex
	topics  map[string]bool
	users   map[string]bool
	release map[string]func()
}

// controlMsg is a subscription change sent by a client as a text frame.
type controlMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
	Users  []string `json:"users"`
}

// Follower keeps per-account state alive while a client follows the account.
type Follower interface {
	Follow(user string) (release func())
}

// Config carries the metadata reported in the status frame sent on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// AllowedOrigins restricts upgrades by Origin header. Empty allows all.
	AllowedOrigins []string
	// Accounts is told which addresses clients follow. May be nil.
	Accounts Follower
}

// Hub fans signal bus events out to connected WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan frame
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	cfg        Config
	upgrader   websocket.Upgrader
}

// NewHub creates a hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	up := upgrader
	up.CheckOrigin = middleware.NewOriginPolicy(cfg.AllowedOrigins).AllowsRequest

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		cfg:        cfg,
		upgrader:   up,
	}
}

// Run subscribes to the bus and serves the hub loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for channel, topic := range busTopics {
			go h.subscribeToChannel(ctx, channel, topic)
		}
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(f) {
					continue
				}
				select {
				case c.send <- f:
				default:
					h.logger.Warn("ws: dropping message for slow client", slog.String("topic", f.topic))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish encodes payload under topic and queues it for delivery. It is
// used for bus messages and may be called directly by in-process producers.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	f, err := encodeFrame(topic, payload)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) subscribeToChannel(ctx context.Context, channel, topic string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", channel))
				return
			}
			if err := h.Publish(ctx, topic, data); err != nil && ctx.Err() == nil {
				h.logger.Warn("ws: dropping undecodable event",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. Query parameters:
// user (repeatable) follows account-scoped topics for that address, and
// format=json switches from binary protobuf frames to JSON text frames.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan frame, sendBufferSize),
		asJSON: r.URL.Query().Get("format") == "json",
		topics:  map[string]bool{TopicMarkets: true, TopicAccounts: true, TopicBond: true, TopicNotification: true, topicStatus: true},
		users:   make(map[string]bool),
		release: make(map[string]func()),
	}
	c.apply(controlMsg{Action: "subscribe", Users: r.URL.Query()["user"]})

	c.sendStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		c.unfollowAll()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.unfollowAll()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var msg controlMsg
		if json.Unmarshal(message, &msg) == nil {
			c.apply(msg)
		}
	}
}

func (c *client) apply(msg controlMsg) {
	var on bool
	switch msg.Action {
	case "subscribe":
		on = true
	case "unsubscribe":
	default:
		return
	}

	var released []func()
	c.mu.Lock()
	for _, t := range msg.Topics {
		if on {
			c.topics[t] = true
		} else {
			delete(c.topics, t)
		}
	}
	for _, u := range msg.Users {
		u = strings.ToLower(strings.TrimSpace(u))
		if u == "" {
			continue
		}
		if on {
			c.users[u] = true
			if _, ok := c.release[u]; !ok && common.IsHexAddress(u) && c.hub != nil && c.hub.cfg.Accounts != nil {
				c.release[u] = c.hub.cfg.Accounts.Follow(u)
			}
		} else {
			delete(c.users, u)
			if rel, ok := c.release[u]; ok {
				released = append(released, rel)
				delete(c.release, u)
			}
		}
	}
	c.mu.Unlock()

	for _, rel := range released {
		rel()
	}
}

// unfollowAll releases every account the client follows.
func (c *client) unfollowAll() {
	c.mu.Lock()
	release := c.release
	c.release = make(map[string]func())
	c.mu.Unlock()
	for _, rel := range release {
		rel()
	}
}

// wants reports whether f should be delivered to c.
func (c *client) wants(f frame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.topics[f.topic] {
		return false
	}
	return f.user == "" || c.users[f.user]
}

func (c *client) sendStatus() {
	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.cfg.Mode,
		"uptime_seconds": max(int64(time.Since(c.hub.cfg.StartedAt).Seconds()), 0),
	})
	if err != nil {
		return
	}
	f, err := encodeFrame(topicStatus, payload)
	if err != nil {
		return
	}
	select {
	case c.send <- f:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind, data := websocket.BinaryMessage, f.binary
			if c.asJSON {
				kind, data = websocket.TextMessage, f.text
			}
			if err := c.conn.WriteMessage(kind, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// encodeFrame wraps a JSON payload in a {"type", "payload"} envelope and
// encodes it as both a structpb.Struct and JSON.
func encodeFrame(topic string, payload []byte) (frame, error) {
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return frame{}, err
	}
	envelope := map[string]any{"type": topic, "payload": body}

	st, err := structpb.NewStruct(envelope)
	if err != nil {
		return frame{}, err
	}
	binary, err := proto.Marshal(st)
	if err != nil {
		return frame{}, err
	}
	text, err := json.Marshal(envelope)
	if err != nil {
		return frame{}, err
	}
	return frame{topic: topic, user: eventUser(body), binary: binary, text: text}, nil
}

// eventUser extracts the address an account-scoped event belongs to. It
// looks at "user" and then "account.user".
func eventUser(body any) string {
	m, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	if u, ok := m["user"].(string); ok {
		return strings.ToLower(u)
	}
	if acct, ok := m["account"].(map[string]any); ok {
		if u, ok := acct["user"].(string); ok {
			return strings.ToLower(u)
		}
	}
	return ""
}
