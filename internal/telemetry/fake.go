package telemetry

import (
	"context"
	"sync"
)

// FakeSink records delivered batches for test assertions.
type FakeSink struct {
	mu sync.Mutex

	// Received holds every record accepted, in delivery order.
	Received []Record

	// Err, if set, is returned by Send and nothing is recorded.
	Err error

	// Block, if set, makes Send wait for ctx cancellation or a value on
	// the channel before proceeding.
	Block chan struct{}

	calls int
}

// NewFakeSink creates a FakeSink that accepts everything.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Send records the batch or returns the scripted error.
func (f *FakeSink) Send(ctx context.Context, records []Record) error {
	f.mu.Lock()
	f.calls++
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Received = append(f.Received, records...)
	return nil
}

// SetErr changes the scripted error.
func (f *FakeSink) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Calls returns how many times Send was invoked.
func (f *FakeSink) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Seqs returns the sequence numbers received so far.
func (f *FakeSink) Seqs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.Received))
	for i, r := range f.Received {
		out[i] = r.Seq
	}
	return out
}
