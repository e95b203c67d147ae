package gpio

import (
	"sync"

	"github.com/sweeney/pump-guard/internal/logic"
)

// FakeRelay is a test double that records relay writes.
type FakeRelay struct {
	mu sync.Mutex

	// On is the current relay output.
	On bool

	// Writes contains every successful write in order.
	Writes []bool

	// SetError, if set, will be returned by Set() without changing state.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRelay creates a de-energized FakeRelay.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Set records the write.
func (f *FakeRelay) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.Writes = append(f.Writes, on)
	return nil
}

// IsOn returns the current output.
func (f *FakeRelay) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On
}

// Close marks the relay as closed and drives it off.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.On = false
	f.Closed = true
	return nil
}

// FakeEncoder is a test double that delivers scripted input events.
type FakeEncoder struct {
	ch     chan logic.InputEvent
	Closed bool
}

// NewFakeEncoder creates a FakeEncoder with a bounded event queue.
func NewFakeEncoder() *FakeEncoder {
	return &FakeEncoder{ch: make(chan logic.InputEvent, eventBuffer)}
}

// Send queues events. Events beyond the buffer are dropped, as on hardware.
func (f *FakeEncoder) Send(events ...logic.InputEvent) {
	for _, ev := range events {
		select {
		case f.ch <- ev:
		default:
		}
	}
}

// Events returns the event channel.
func (f *FakeEncoder) Events() <-chan logic.InputEvent {
	return f.ch
}

// Close marks the encoder as closed.
func (f *FakeEncoder) Close() error {
	f.Closed = true
	return nil
}
