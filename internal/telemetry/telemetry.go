// Package telemetry buffers pump telemetry records and pushes them to a
// remote sink without ever blocking the control loop.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
)

// ErrDelivery wraps sink failures surfaced in Stats.
var ErrDelivery = errors.New("telemetry delivery failed")

// Record is one telemetry sample of the control pipeline.
type Record struct {
	Seq            uint64
	Timestamp      time.Time
	CurrentAmps    float64
	PumpState      logic.PumpState
	DetectionState logic.DetectionState
}

// Sink delivers records to a remote metrics store.
type Sink interface {
	// Send delivers records in order. It must honor ctx cancellation.
	// A nil error means every record was accepted.
	Send(ctx context.Context, records []Record) error
}

// Tags identify the pump in every delivered record.
type Tags struct {
	PumpID   string
	Location string
	Session  string // per-boot identifier
}
