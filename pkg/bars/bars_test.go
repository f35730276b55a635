package bars

import (
	"testing"
	"time"
)

func makeBars(closes ...float64) []Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Bar, len(closes))
	for i, c := range closes {
		out[i] = Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func TestFromChronological(t *testing.T) {
	s := FromChronological(makeBars(1, 2, 3))

	if s.Count() != 3 {
		t.Fatalf("expected 3 bars, got %d", s.Count())
	}
	if s.At(0).Close != 3 {
		t.Errorf("expected newest close 3, got %f", s.At(0).Close)
	}
	if s.At(2).Close != 1 {
		t.Errorf("expected oldest close 1, got %f", s.At(2).Close)
	}

	back := Chronological(s)
	for i, want := range []float64{1, 2, 3} {
		if back[i].Close != want {
			t.Errorf("expected close %f at %d, got %f", want, i, back[i].Close)
		}
	}
}

func TestNewest(t *testing.T) {
	s := FromChronological(makeBars(1, 2, 3, 4, 5))

	limited := Newest(s, 2)
	if limited.Count() != 2 {
		t.Fatalf("expected 2 bars, got %d", limited.Count())
	}
	if limited.At(0).Close != 5 || limited.At(1).Close != 4 {
		t.Errorf("expected newest bars 5 and 4, got %f and %f", limited.At(0).Close, limited.At(1).Close)
	}

	if Newest(s, 0).Count() != 5 {
		t.Error("expected limit 0 to keep every bar")
	}
}

func TestRing(t *testing.T) {
	t.Run("keeps newest first", func(t *testing.T) {
		r := NewRing(3)
		for _, b := range makeBars(1, 2) {
			if r.Push(b) {
				t.Error("expected no eviction before the ring is full")
			}
		}
		if r.Count() != 2 {
			t.Fatalf("expected count 2, got %d", r.Count())
		}
		if r.At(0).Close != 2 || r.At(1).Close != 1 {
			t.Errorf("unexpected order: %f, %f", r.At(0).Close, r.At(1).Close)
		}
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		r := NewRing(3)
		evicted := 0
		for _, b := range makeBars(1, 2, 3, 4, 5) {
			if r.Push(b) {
				evicted++
			}
		}
		if evicted != 2 {
			t.Errorf("expected 2 evictions, got %d", evicted)
		}
		if r.Count() != 3 || r.Cap() != 3 {
			t.Fatalf("expected count and cap 3, got %d/%d", r.Count(), r.Cap())
		}
		snap := r.Snapshot()
		for i, want := range []float64{5, 4, 3} {
			if snap.At(i).Close != want {
				t.Errorf("expected close %f at %d, got %f", want, i, snap.At(i).Close)
			}
		}
	})

	t.Run("panics out of range", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for out of range index")
			}
		}()
		NewRing(2).At(0)
	})
}

func TestRingReplaceNewest(t *testing.T) {
	r := NewRing(3)

	r.ReplaceNewest(makeBars(1)[0])
	if r.Count() != 1 {
		t.Fatalf("expected replace on an empty ring to push, got count %d", r.Count())
	}

	history := makeBars(1, 2)
	r.Push(history[1])
	updated := history[1]
	updated.Close = 7
	r.ReplaceNewest(updated)

	if r.Count() != 2 {
		t.Errorf("expected count 2, got %d", r.Count())
	}
	if r.At(0).Close != 7 {
		t.Errorf("expected newest close 7, got %f", r.At(0).Close)
	}
	if r.At(1).Close != 1 {
		t.Errorf("expected older close 1, got %f", r.At(1).Close)
	}
}
