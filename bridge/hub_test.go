package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/events"
)

func dial(t *testing.T, h *Hub) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	deadline := time.Now().Add(3 * time.Second)
	for h.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn, ctx
}

func TestEmitReachesClient(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	conn, ctx := dial(t, h)

	if err := h.Emit(events.EventSink, events.SinkEvent{Status: "running"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var msg Message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if msg.Event != events.EventSink {
		t.Fatalf("expected %q, got %q", events.EventSink, msg.Event)
	}
	var payload events.SinkEvent
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if payload.Status != "running" {
		t.Fatalf("expected running, got %q", payload.Status)
	}
}

func TestStartListenCallsHook(t *testing.T) {
	t.Parallel()

	names := make(chan string, 2)
	h := NewHub(Config{
		Logger:        zerolog.Nop(),
		OnStartListen: func(name string) { names <- name },
	})
	conn, ctx := dial(t, h)

	if err := wsjson.Write(ctx, conn, map[string]any{
		"event":   events.EventStartListen,
		"payload": map[string]string{"name": "Studio"},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"event": events.EventStartListen}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, want := range []string{"Studio", ""} {
		select {
		case got := <-names:
			if got != want {
				t.Fatalf("expected %q, got %q", want, got)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("hook not called")
		}
	}
}

func TestEmitWithoutClients(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	if err := h.Emit(events.EventInfo, "hello"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
}

func TestEmitDropsForFullClient(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	c := &client{send: make(chan []byte, 1)}
	h.add(c)

	for i := 0; i < 3; i++ {
		if err := h.Emit(events.EventAudioChunk, []float32{float32(i)}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if h.Dropped() != 2 {
		t.Fatalf("expected 2 dropped, got %d", h.Dropped())
	}
	var msg Message
	if err := json.Unmarshal(<-c.send, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(msg.Payload) != "[0]" {
		t.Fatalf("expected first chunk to be kept, got %s", msg.Payload)
	}
}

func TestStrictValidation(t *testing.T) {
	t.Parallel()

	v, err := events.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	h := NewHub(Config{Logger: zerolog.Nop(), Validator: v})

	bad := events.RepeatChanged{Type: events.TypeRepeatChanged, Repeat: "sometimes"}
	if err := h.Emit(events.EventPlayer, bad); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	good := events.RepeatChanged{Type: events.TypeRepeatChanged, Repeat: events.RepeatOff}
	if err := h.Emit(events.EventPlayer, good); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := h.Emit(events.EventInfo, "not validated"); err != nil {
		t.Fatalf("Emit info: %v", err)
	}
}

func TestOriginsDefaultToLocalhost(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	srv := httptest.NewServer(h)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	tests := []struct {
		origin string
		ok     bool
	}{
		{"http://localhost:1420", true},
		{"tauri://localhost", true},
		{"http://127.0.0.1:5173", true},
		{"https://evil.example", false},
		{"http://localhost.evil.example", false},
	}
	for _, tt := range tests {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": {tt.origin}},
		})
		cancel()
		if tt.ok && err != nil {
			t.Fatalf("origin %s: expected accept, got %v", tt.origin, err)
		}
		if !tt.ok && err == nil {
			conn.CloseNow()
			t.Fatalf("origin %s: expected rejection", tt.origin)
		}
		if conn != nil {
			conn.CloseNow()
		}
	}
}
