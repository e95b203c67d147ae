package telemetry

// ringBuffer is a fixed-capacity FIFO of records awaiting delivery.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []Record
	capacity int
	head     int // next write position
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]Record, capacity),
		capacity: capacity,
	}
}

// push appends rec, overwriting the oldest record when full.
// It reports whether a record was evicted.
func (r *ringBuffer) push(rec Record) bool {
	r.buf[r.head] = rec
	r.head = (r.head + 1) % r.capacity
	if r.count == r.capacity {
		// Overwrote the oldest: count stays at capacity
		return true
	}
	r.count++
	return false
}

func (r *ringBuffer) start() int {
	// Oldest item is at (head - count) mod capacity
	return (r.head - r.count + r.capacity) % r.capacity
}

// peek appends up to n of the oldest records to dst without removing them.
func (r *ringBuffer) peek(dst []Record, n int) []Record {
	if n > r.count {
		n = r.count
	}
	start := r.start()
	for i := 0; i < n; i++ {
		dst = append(dst, r.buf[(start+i)%r.capacity])
	}
	return dst
}

// dropThrough removes records from the front while their Seq <= seq.
// Records evicted in the meantime are simply no longer there.
func (r *ringBuffer) dropThrough(seq uint64) int {
	dropped := 0
	for r.count > 0 {
		if r.buf[r.start()].Seq > seq {
			break
		}
		r.count--
		dropped++
	}
	return dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
