package bars

// Ring is a fixed-capacity bar history. Pushing into a full ring evicts the oldest bar.
// It is not safe for concurrent use.
type Ring struct {
	buf   []Bar
	head  int // slot of the newest bar
	count int
}

// NewRing creates a ring holding at most capacity bars. Minimum capacity is 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Bar, capacity), head: -1}
}

// Push appends a new newest bar. Returns true when an older bar was evicted.
func (r *Ring) Push(b Bar) bool {
	r.head = (r.head + 1) % len(r.buf)
	r.buf[r.head] = b
	if r.count < len(r.buf) {
		r.count++
		return false
	}
	return true
}

// ReplaceNewest overwrites the newest bar, or pushes b into an empty ring.
// A still-forming candle updates in place this way.
func (r *Ring) ReplaceNewest(b Bar) {
	if r.count == 0 {
		r.Push(b)
		return
	}
	r.buf[r.head] = b
}

// Count returns the number of bars held
func (r *Ring) Count() int {
	return r.count
}

// Cap returns the ring capacity
func (r *Ring) Cap() int {
	return len(r.buf)
}

// At returns the bar at index, 0 being the newest. It panics when index is out of range.
func (r *Ring) At(index int) Bar {
	if index < 0 || index >= r.count {
		panic("bars: ring index out of range")
	}
	slot := (r.head - index + len(r.buf)) % len(r.buf)
	return r.buf[slot]
}

// Snapshot copies the ring into a newest-first Slice
func (r *Ring) Snapshot() Slice {
	return Newest(r, 0)
}
