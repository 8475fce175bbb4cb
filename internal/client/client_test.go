package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

// wsHarness is a controllable stream endpoint. It records the subscribe
// frames each accepted connection sends and can drop the first connection
// to force a reconnect.
type wsHarness struct {
	t         *testing.T
	upgrader  websocket.Upgrader
	dropFirst bool

	mu     sync.Mutex
	conns  int
	frames map[int][]string // conn index -> subscribed channels, in order

	frameCh chan string
}

func newWSHarness(t *testing.T, dropFirst bool) (*wsHarness, *httptest.Server) {
	h := &wsHarness{
		t:         t,
		dropFirst: dropFirst,
		frames:    make(map[int][]string),
		frameCh:   make(chan string, 32),
	}
	srv := httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(srv.Close)
	return h, srv
}

func (h *wsHarness) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	idx := h.conns
	h.conns++
	h.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		if env.Type != protocol.TypeSubscribe {
			continue
		}
		var p protocol.SubscribePayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			continue
		}

		h.mu.Lock()
		h.frames[idx] = append(h.frames[idx], p.Channel)
		h.mu.Unlock()
		h.frameCh <- p.Channel

		if h.dropFirst && idx == 0 {
			ws.Close()
			return
		}
	}
}

func (h *wsHarness) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

func (h *wsHarness) channelsFor(idx int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames[idx]...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFrame(t *testing.T, h *wsHarness) string {
	t.Helper()
	select {
	case ch := <-h.frameCh:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe frame")
		return ""
	}
}

func TestSubscriptionsReplayAfterReconnect(t *testing.T) {
	h, srv := newWSHarness(t, true)

	c := New(Config{
		URL:       wsURL(srv) + "/ws",
		BaseDelay: 20 * time.Millisecond,
		MaxDelay:  200 * time.Millisecond,
	}, nil)

	// Subscribing before Run just records the channel locally.
	if err := c.Subscribe("symbol:AAPL"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// First connection gets the subscribe and is dropped by the server.
	if got := waitFrame(t, h); got != "symbol:AAPL" {
		t.Fatalf("first conn got channel %q", got)
	}

	// The reconnected session replays the held subscription.
	if got := waitFrame(t, h); got != "symbol:AAPL" {
		t.Fatalf("replayed channel %q", got)
	}
	if h.connCount() != 2 {
		t.Fatalf("expected 2 connections, got %d", h.connCount())
	}

	// Exactly one replay frame, not one per past session.
	time.Sleep(100 * time.Millisecond)
	if got := h.channelsFor(1); len(got) != 1 {
		t.Fatalf("second conn saw %d subscribe frames: %v", len(got), got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSubscribeWhileConnectedSendsImmediately(t *testing.T) {
	h, srv := newWSHarness(t, false)

	c := New(Config{URL: wsURL(srv) + "/ws", BaseDelay: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitConnected(t, c)
	if err := c.Subscribe("currency-rates"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := waitFrame(t, h); got != "currency-rates" {
		t.Fatalf("got channel %q", got)
	}
	if got := c.Subscriptions(); len(got) != 1 || got[0] != "currency-rates" {
		t.Fatalf("unexpected local set %v", got)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:0/ws"}, nil)
	if err := c.Send(protocol.TypePing, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBackoffGrowsBetweenAttempts(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		URL:         wsURL(srv) + "/ws",
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		MaxAttempts: 3,
	}, nil)

	err := c.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", len(hits))
	}

	// Base delay 50ms, multiplier 1.5, jitter 10%: the first gap lands
	// near 50ms and the second near 75ms.
	gap1 := hits[1].Sub(hits[0])
	gap2 := hits[2].Sub(hits[1])
	if gap1 < 40*time.Millisecond {
		t.Fatalf("first gap too short: %v", gap1)
	}
	if gap2 < 60*time.Millisecond {
		t.Fatalf("second gap too short: %v", gap2)
	}
	if gap2 <= gap1 {
		t.Fatalf("delays did not grow: gap1=%v gap2=%v", gap1, gap2)
	}
}

func TestRejectedTokenIsTerminal(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		URL:         wsURL(srv) + "/ws",
		Token:       "stale-token",
		BaseDelay:   10 * time.Millisecond,
		MaxAttempts: 5,
	}, nil)

	if err := c.Run(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected a single dial against a rejecting server, got %d", hits)
	}
}

func TestInboundEnvelopesAreDelivered(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		env := protocol.MustEnvelope(protocol.TypeNotification, protocol.NotificationPayload{
			Title: "hello", Message: "world",
		})
		data, _ := protocol.Encode(env)
		ws.WriteMessage(websocket.TextMessage, data)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := New(Config{URL: wsURL(srv) + "/ws", BaseDelay: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case msg := <-c.Messages():
		if msg.Envelope.Type != protocol.TypeNotification {
			t.Fatalf("expected notification, got %s", msg.Envelope.Type)
		}
		var p protocol.NotificationPayload
		if err := protocol.DecodePayload(msg.Envelope, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.Title != "hello" {
			t.Fatalf("unexpected payload %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Connected() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client never connected")
}
