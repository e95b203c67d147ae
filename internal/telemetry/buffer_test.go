package telemetry

import (
	"testing"
)

func seqs(recs []Record) []uint64 {
	out := make([]uint64, len(recs))
	for i, r := range recs {
		out[i] = r.Seq
	}
	return out
}

func TestRingBufferEmptyPeek(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.peek(nil, 5); len(got) != 0 {
		t.Errorf("expected nothing from empty peek, got %d items", len(got))
	}
}

func TestRingBufferPushAndPeek(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 1; i <= 5; i++ {
		if rb.push(Record{Seq: uint64(i)}) {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}

	got := rb.peek(nil, 3)
	want := []uint64{1, 2, 3}
	for i, s := range seqs(got) {
		if s != want[i] {
			t.Errorf("item %d: expected seq %d, got %d", i, want[i], s)
		}
	}
	if rb.len() != 5 {
		t.Errorf("peek must not remove: expected len 5, got %d", rb.len())
	}
}

func TestRingBufferOverflow(t *testing.T) {
	cap := 5
	rb := newRingBuffer(cap)

	// Push cap+3 items (1..8), buffer should keep the most recent 5 (4..8)
	evicted := 0
	for i := 1; i <= cap+3; i++ {
		if rb.push(Record{Seq: uint64(i)}) {
			evicted++
		}
	}
	if evicted != 3 {
		t.Errorf("expected 3 evictions, got %d", evicted)
	}

	got := seqs(rb.peek(nil, cap))
	if len(got) != cap {
		t.Fatalf("expected %d items, got %d", cap, len(got))
	}
	for i := 0; i < cap; i++ {
		want := uint64(i + 4)
		if got[i] != want {
			t.Errorf("item %d: expected seq %d, got %d", i, want, got[i])
		}
	}
}

func TestRingBufferDropThrough(t *testing.T) {
	rb := newRingBuffer(5)
	for i := 1; i <= 4; i++ {
		rb.push(Record{Seq: uint64(i)})
	}

	if n := rb.dropThrough(2); n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	got := seqs(rb.peek(nil, 5))
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("unexpected remaining: %v", got)
	}
}

func TestRingBufferDropThroughAfterEviction(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 1; i <= 3; i++ {
		rb.push(Record{Seq: uint64(i)})
	}
	// Batch 1..2 in flight; 4 and 5 arrive and evict 1 and 2.
	rb.push(Record{Seq: 4})
	rb.push(Record{Seq: 5})

	if n := rb.dropThrough(2); n != 0 {
		t.Errorf("expected nothing dropped, got %d", n)
	}
	if rb.len() != 3 {
		t.Errorf("expected len 3, got %d", rb.len())
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := newRingBuffer(3)
	seq := uint64(0)
	for cycle := 0; cycle < 5; cycle++ {
		seq++
		rb.push(Record{Seq: seq})
		seq++
		rb.push(Record{Seq: seq})
		rb.dropThrough(seq - 1)

		got := rb.peek(nil, 3)
		if len(got) != 1 || got[0].Seq != seq {
			t.Fatalf("cycle %d: unexpected contents %v", cycle, seqs(got))
		}
		rb.dropThrough(seq)
	}
}
