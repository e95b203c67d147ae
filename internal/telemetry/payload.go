package telemetry

import (
	"encoding/json"
	"time"
)

// Payload is the JSON document for one telemetry record, shared by the
// message-based sinks.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload contains the record details plus the identifying tags.
type PumpPayload struct {
	ID          string  `json:"id"`
	Session     string  `json:"session"`
	Location    string  `json:"location,omitempty"`
	Seq         uint64  `json:"seq"`
	Timestamp   string  `json:"timestamp"`
	CurrentAmps float64 `json:"current_amps"`
	State       string  `json:"state"`
	Detection   string  `json:"detection"`
}

// FormatPayload creates the JSON payload for a record.
func FormatPayload(tags Tags, rec Record) ([]byte, error) {
	payload := Payload{
		Pump: PumpPayload{
			ID:          tags.PumpID,
			Session:     tags.Session,
			Location:    tags.Location,
			Seq:         rec.Seq,
			Timestamp:   rec.Timestamp.UTC().Format(time.RFC3339Nano),
			CurrentAmps: rec.CurrentAmps,
			State:       string(rec.PumpState),
			Detection:   string(rec.DetectionState),
		},
	}
	return json.Marshal(payload)
}
