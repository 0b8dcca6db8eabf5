// Package bridge connects the daemon to the presentation layer over
// WebSocket: outbound events are broadcast to every client and the one
// inbound command, start_listen, is handed to a hook.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/events"
)

// ErrInvalidPayload is returned by Emit when strict validation rejects a
// player event.
var ErrInvalidPayload = errors.New("bridge: payload failed validation")

// Message is the envelope exchanged with clients.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartRequest is the optional payload of start_listen.
type StartRequest struct {
	Name string `json:"name"`
}

// Config holds the hub settings.
type Config struct {
	// SendBuffer is the number of messages queued per client before drops
	SendBuffer int
	// WriteTimeout bounds a single write to a client
	WriteTimeout time.Duration
	// OriginPatterns lists allowed browser origins; empty means LocalOrigins
	OriginPatterns []string
	// Validator, when set, rejects malformed player events
	Validator *events.Validator
	// OnStartListen receives start_listen commands
	OnStartListen func(name string)
	Logger        zerolog.Logger
}

// LocalOrigins admits pages served from the local machine only. Clients
// that send no Origin header, such as native apps, are always admitted.
var LocalOrigins = []string{
	"localhost",
	"localhost:*",
	"127.0.0.1",
	"127.0.0.1:*",
	"[::1]",
	"[::1]:*",
}

// Hub fans events out to connected clients.
type Hub struct {
	config  Config
	logger  zerolog.Logger
	mu      sync.Mutex
	clients map[*client]struct{}
	dropped atomic.Uint64
}

type client struct {
	send chan []byte
}

var _ events.Emitter = (*Hub)(nil)

func NewHub(config Config) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if len(config.OriginPatterns) == 0 {
		config.OriginPatterns = LocalOrigins
	}
	return &Hub{
		config:  config,
		logger:  config.Logger.With().Str("component", "bridge").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Emit broadcasts an event. A client whose queue is full misses it.
func (h *Hub) Emit(event string, payload any) error {
	if h.config.Validator != nil && event == events.EventPlayer {
		if err := h.config.Validator.Validate(payload); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Message{Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were not queued for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	c := &client{send: make(chan []byte, h.config.SendBuffer)}
	h.add(c)
	defer h.remove(c)
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readLoop(ctx, cancel, conn)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			wcancel()
			if err != nil {
				h.logger.Warn().Err(err).Msg("write to client failed")
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		h.handle(msg)
	}
}

func (h *Hub) handle(msg Message) {
	switch msg.Event {
	case events.EventStartListen:
		var req StartRequest
		if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				h.logger.Warn().Err(err).Msg("ignoring malformed start_listen payload")
				return
			}
		}
		if h.config.OnStartListen != nil {
			h.config.OnStartListen(req.Name)
		}
	default:
		h.logger.Debug().Str("event", msg.Event).Msg("ignoring client message")
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}
