// Package ws relays signal bus events to browser WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/policast/internal/domain"
)

// topics maps the names clients use to bus channels.
var topics = map[string]string{
	"flow":     domain.ChannelFlow,
	"markets":  domain.ChannelMarkets,
	"accounts": domain.ChannelAccounts,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// frame is written to clients as a text message. Data is the bus payload
// unchanged.
type frame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Config is reported to clients in the hello frame.
type Config struct {
	Mode      string
	Account   string
	StartedAt time.Time
}

// Hub fans bus events out to connected clients so the UI can follow flow
// state and market/account refreshes without polling.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger
	cfg    Config

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws")),
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
}

// Run relays bus events until ctx ends or the subscription closes, then
// disconnects all clients.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	byChannel := make(map[string]string, len(topics))
	channels := make([]string, 0, len(topics))
	for name, ch := range topics {
		byChannel[ch] = name
		channels = append(channels, ch)
	}
	events, err := h.bus.Subscribe(ctx, channels...)
	if err != nil {
		return fmt.Errorf("ws: subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-events:
			if !ok {
				h.logger.Warn("ws: bus subscription closed")
				return nil
			}
			if topic, ok := byChannel[msg.Channel]; ok {
				h.broadcast(topic, msg.Payload)
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) broadcast(topic string, data []byte) {
	msg, err := json.Marshal(frame{Topic: topic, Data: data})
	if err != nil {
		h.logger.Warn("ws: dropping non-JSON event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(topic) && !c.offer(msg) {
			h.logger.Warn("ws: client too slow, event dropped", slog.String("topic", topic))
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("ws: client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.logger.Debug("ws: client disconnected", slog.Int("clients", len(h.clients)))
}

// HandleWS upgrades the request. ?topics=flow,markets limits the initial
// subscription; without it every topic is delivered.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := newClient(h, conn, parseTopics(r.URL.Query().Get("topics")))
	c.offer(h.hello())
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// hello lets the UI mark the connection healthy and learn which account the
// server signs for before any event flows.
func (h *Hub) hello() []byte {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	data, _ := json.Marshal(map[string]any{
		"mode":           h.cfg.Mode,
		"account":        h.cfg.Account,
		"uptime_seconds": max(0, int64(time.Since(h.cfg.StartedAt).Seconds())),
		"topics":         names,
	})
	msg, _ := json.Marshal(frame{Topic: "hello", Data: data})
	return msg
}

// parseTopics keeps the known names in a comma-separated list. An empty or
// fully unknown list subscribes to everything.
func parseTopics(list string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := topics[name]; ok {
			out[name] = true
		}
	}
	if len(out) == 0 {
		for name := range topics {
			out[name] = true
		}
	}
	return out
}
