package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/shivam2014/trading-journal-stream/internal/model"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushes []flushCall
}

type flushCall struct {
	dest  string
	items []string
}

func (r *flushRecorder) record(dest string, items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, flushCall{dest: dest, items: items})
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

func (r *flushRecorder) get(i int) flushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes[i]
}

func waitFlushes(t *testing.T, r *flushRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.count() < want {
		if time.Now().After(deadline) {
			t.Fatalf("flush count = %d, want %d", r.count(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCoalesceSingleFlush(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer(100*time.Millisecond, rec.record, nil)
	defer c.Stop()

	// Five events inside one window produce exactly one combined flush.
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		c.Add("pattern-updates-AAPL", p)
	}

	waitFlushes(t, rec, 1)
	time.Sleep(150 * time.Millisecond) // no second flush may follow
	if rec.count() != 1 {
		t.Fatalf("flush count = %d, want exactly 1", rec.count())
	}

	call := rec.get(0)
	if call.dest != "pattern-updates-AAPL" {
		t.Errorf("dest = %q, want pattern-updates-AAPL", call.dest)
	}
	want := []string{"p1", "p2", "p3", "p4", "p5"}
	if len(call.items) != len(want) {
		t.Fatalf("items = %v, want %v", call.items, want)
	}
	for i := range want {
		if call.items[i] != want[i] {
			t.Errorf("items[%d] = %q, want %q (arrival order)", i, call.items[i], want[i])
		}
	}
}

func TestWindowIsFixedNotSliding(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer(80*time.Millisecond, rec.record, nil)
	defer c.Stop()

	start := time.Now()
	c.Add("dest", "first")
	// Keep feeding events past the window boundary; they must not postpone it.
	go func() {
		for i := 0; i < 6; i++ {
			time.Sleep(20 * time.Millisecond)
			c.Add("dest", "more")
		}
	}()

	waitFlushes(t, rec, 1)
	elapsed := time.Since(start)
	if elapsed > 160*time.Millisecond {
		t.Errorf("first flush after %v; window appears to slide", elapsed)
	}
}

func TestPerDestinationIndependence(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer(50*time.Millisecond, rec.record, nil)
	defer c.Stop()

	c.Add("pattern-updates-AAPL", "a1")
	c.Add("pattern-updates-TSLA", "t1")
	c.Add("pattern-updates-AAPL", "a2")

	waitFlushes(t, rec, 2)

	byDest := map[string][]string{}
	for i := 0; i < rec.count(); i++ {
		call := rec.get(i)
		byDest[call.dest] = call.items
	}
	if len(byDest["pattern-updates-AAPL"]) != 2 {
		t.Errorf("AAPL batch = %v, want 2 items", byDest["pattern-updates-AAPL"])
	}
	if len(byDest["pattern-updates-TSLA"]) != 1 {
		t.Errorf("TSLA batch = %v, want 1 item", byDest["pattern-updates-TSLA"])
	}
}

func TestStopFlushesPending(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer(time.Hour, rec.record, nil)

	c.Add("dest", "pending")
	c.Stop()

	if rec.count() != 1 {
		t.Fatalf("flush count after Stop = %d, want 1", rec.count())
	}

	// Adds after Stop are dropped.
	c.Add("dest", "late")
	time.Sleep(20 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("flush count = %d, want 1 (no flush for post-stop add)", rec.count())
	}
}

func TestEmptyWindowNoFlush(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer(30*time.Millisecond, rec.record, nil)
	defer c.Stop()

	time.Sleep(60 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("flush count = %d, want 0 with no events", rec.count())
	}
}

func TestDedupPatterns(t *testing.T) {
	tests := []struct {
		name     string
		existing []model.Pattern
		incoming []model.Pattern
		want     []model.Pattern
	}{
		{
			name: "identical duplicates collapse",
			existing: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
			},
			incoming: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
			},
			want: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
			},
		},
		{
			name: "highest confidence wins",
			existing: []model.Pattern{
				{PatternType: "hammer", Timestamp: 200, Confidence: 0.6},
			},
			incoming: []model.Pattern{
				{PatternType: "hammer", Timestamp: 200, Confidence: 0.9},
				{PatternType: "hammer", Timestamp: 200, Confidence: 0.7},
			},
			want: []model.Pattern{
				{PatternType: "hammer", Timestamp: 200, Confidence: 0.9},
			},
		},
		{
			name: "distinct timestamps kept",
			existing: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
			},
			incoming: []model.Pattern{
				{PatternType: "doji", Timestamp: 101, Confidence: 0.5},
			},
			want: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
				{PatternType: "doji", Timestamp: 101, Confidence: 0.5},
			},
		},
		{
			name: "distinct types kept",
			existing: nil,
			incoming: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
				{PatternType: "hammer", Timestamp: 100, Confidence: 0.7},
			},
			want: []model.Pattern{
				{PatternType: "doji", Timestamp: 100, Confidence: 0.8},
				{PatternType: "hammer", Timestamp: 100, Confidence: 0.7},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupPatterns(tt.existing, tt.incoming)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d patterns, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i].PatternType != tt.want[i].PatternType ||
					got[i].Timestamp != tt.want[i].Timestamp ||
					got[i].Confidence != tt.want[i].Confidence {
					t.Errorf("pattern[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
