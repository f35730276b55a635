package bars

import (
	"time"
)

// Bar represents one OHLCV candle
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Buffer is a read-only, randomly indexable bar history. Index 0 is the newest bar.
type Buffer interface {
	Count() int
	At(index int) Bar
}

// Slice is a Buffer backed by a newest-first slice
type Slice []Bar

// Count returns the number of bars
func (s Slice) Count() int {
	return len(s)
}

// At returns the bar at index, 0 being the newest
func (s Slice) At(index int) Bar {
	return s[index]
}

// FromChronological builds a newest-first Slice from bars ordered oldest to newest
func FromChronological(history []Bar) Slice {
	out := make(Slice, len(history))
	for i, b := range history {
		out[len(history)-1-i] = b
	}
	return out
}

// Chronological returns the buffer contents ordered oldest to newest
func Chronological(buf Buffer) []Bar {
	n := buf.Count()
	out := make([]Bar, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = buf.At(i)
	}
	return out
}

// Newest keeps at most limit of the newest bars of buf
func Newest(buf Buffer, limit int) Slice {
	n := buf.Count()
	if limit > 0 && n > limit {
		n = limit
	}
	out := make(Slice, n)
	for i := 0; i < n; i++ {
		out[i] = buf.At(i)
	}
	return out
}
