package mqtt

import (
	"context"
	"sync"

	"github.com/sweeney/pump-guard/internal/telemetry"
)

// FakePublisher records published messages for test assertions.
// Send runs on the telemetry worker, so access goes through the mutex.
type FakePublisher struct {
	mu sync.Mutex

	// Tags are applied to formatted payloads.
	Tags telemetry.Tags

	// Records contains all telemetry records that were sent.
	Records []telemetry.Record

	// Payloads contains the JSON payloads for telemetry records.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// SendError, if set, will be returned by Send.
	SendError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// Send records the telemetry batch.
func (f *FakePublisher) Send(_ context.Context, records []telemetry.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}

	for _, rec := range records {
		payload, err := telemetry.FormatPayload(f.Tags, rec)
		if err != nil {
			return err
		}
		f.Records = append(f.Records, rec)
		f.Payloads = append(f.Payloads, payload)
	}
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(f.Tags, event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Sent returns a copy of the records sent so far.
func (f *FakePublisher) Sent() []telemetry.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telemetry.Record(nil), f.Records...)
}

// Events returns a copy of the system events published so far.
func (f *FakePublisher) Events() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.SendError = nil
	f.PublishSystemError = nil
}
