package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shivam2014/trading-journal-stream/internal/protocol"
	"github.com/shivam2014/trading-journal-stream/internal/registry"
)

// memWire is an in-memory registry.Wire recording written frames.
type memWire struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	readCh chan []byte
}

func newMemWire() *memWire {
	return &memWire{readCh: make(chan []byte)}
}

func (w *memWire) ReadMessage() (int, []byte, error) {
	data, ok := <-w.readCh
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return websocket.TextMessage, data, nil
}

func (w *memWire) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, data)
	return nil
}

func (w *memWire) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (w *memWire) SetReadLimit(limit int64)            {}
func (w *memWire) SetPongHandler(h func(string) error) {}

func (w *memWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.readCh)
	}
	return nil
}

func (w *memWire) frameCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func (w *memWire) lastFrame() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == 0 {
		return nil
	}
	return w.frames[len(w.frames)-1]
}

// openConn registers a running connection and waits for it to reach open.
func openConn(t *testing.T, reg *registry.Registry, userID string) (*registry.Conn, *memWire) {
	t.Helper()
	wire := newMemWire()
	conn := registry.NewConn(wire, userID, registry.ConnConfig{}, nil, func(c *registry.Conn) {
		reg.Remove(c)
	})
	reg.Add(conn)
	go conn.Run(func(c *registry.Conn, data []byte) {})

	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != registry.StateOpen {
		if time.Now().After(deadline) {
			t.Fatal("connection never reached open state")
		}
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, wire
}

func waitFrames(t *testing.T, wire *memWire, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for wire.frameCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("frame count = %d, want %d", wire.frameCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestChannelIsolation(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	c1, w1 := openConn(t, reg, "user-1")
	c2, w2 := openConn(t, reg, "user-2")

	c1.Subscribe(CurrencyRatesChannel)
	c2.Subscribe(PriceChannel("AAPL"))

	env := protocol.MustEnvelope(protocol.TypeCurrencyUpdate, protocol.CurrencyUpdatePayload{
		Base:  "USD",
		Rates: map[string]float64{"EUR": 0.92},
	})

	n := New(reg, nil).BroadcastToChannel(CurrencyRatesChannel, env, Options{})
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}

	waitFrames(t, w1, 1)
	decoded, err := protocol.Decode(w1.lastFrame())
	if err != nil {
		t.Fatalf("decode delivered frame: %v", err)
	}
	if decoded.Type != protocol.TypeCurrencyUpdate {
		t.Errorf("delivered type = %q, want currency_update", decoded.Type)
	}

	// The price-updates subscriber must never be touched.
	time.Sleep(20 * time.Millisecond)
	if w2.frameCount() != 0 {
		t.Errorf("unsubscribed connection received %d frames, want 0", w2.frameCount())
	}
}

func TestBroadcastExclude(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	origin, wOrigin := openConn(t, reg, "user-1")
	other, wOther := openConn(t, reg, "user-1")

	origin.Subscribe(UserTradesChannel("user-1"))
	other.Subscribe(UserTradesChannel("user-1"))

	env := protocol.MustEnvelope(protocol.TypeTradeUpdate, protocol.TradeUpdatePayload{Action: "update"})
	n := New(reg, nil).BroadcastToChannel(UserTradesChannel("user-1"), env, Options{Exclude: origin})
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}

	waitFrames(t, wOther, 1)
	time.Sleep(20 * time.Millisecond)
	if wOrigin.frameCount() != 0 {
		t.Errorf("excluded origin received %d frames, want 0", wOrigin.frameCount())
	}
}

func TestBroadcastFilter(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	c1, w1 := openConn(t, reg, "user-1")
	_, w2 := openConn(t, reg, "user-2")

	env := protocol.MustEnvelope(protocol.TypeNotification, protocol.NotificationPayload{Message: "hi"})
	n := New(reg, nil).Broadcast(env, Options{
		Filter: func(c *registry.Conn) bool { return c.UserID() == "user-1" },
	})
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}

	waitFrames(t, w1, 1)
	time.Sleep(20 * time.Millisecond)
	if w2.frameCount() != 0 {
		t.Errorf("filtered-out connection received %d frames, want 0", w2.frameCount())
	}
	_ = c1
}

func TestBroadcastSkipsClosedAndContinues(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	dead, _ := openConn(t, reg, "user-1")
	live, wLive := openConn(t, reg, "user-2")

	dead.Subscribe(CurrencyRatesChannel)
	live.Subscribe(CurrencyRatesChannel)

	dead.Close()
	// Close deregisters via onClose, but even a stale reference must not
	// receive: re-add to simulate a half-closed connection still tracked.
	reg.Add(dead)
	dead.Subscribe(CurrencyRatesChannel)

	env := protocol.MustEnvelope(protocol.TypeCurrencyUpdate, protocol.CurrencyUpdatePayload{Base: "USD"})
	n := New(reg, nil).BroadcastToChannel(CurrencyRatesChannel, env, Options{})
	if n != 1 {
		t.Errorf("delivered = %d, want 1 (live connection only)", n)
	}
	waitFrames(t, wLive, 1)
}

func TestBroadcastStats(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	c, w := openConn(t, reg, "user-1")
	c.Subscribe(CurrencyRatesChannel)

	b := New(reg, nil)
	env := protocol.MustEnvelope(protocol.TypeCurrencyUpdate, protocol.CurrencyUpdatePayload{Base: "USD"})
	b.BroadcastToChannel(CurrencyRatesChannel, env, Options{})
	waitFrames(t, w, 1)

	stats := b.Stats()
	if stats.Broadcasts != 1 {
		t.Errorf("Broadcasts = %d, want 1", stats.Broadcasts)
	}
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
}
