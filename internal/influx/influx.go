// Package influx writes pump telemetry to an InfluxDB HTTP write endpoint
// using the line protocol.
package influx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/sweeney/pump-guard/internal/telemetry"
)

// Measurement is the line-protocol measurement name for pump records.
const Measurement = "pump"

// Sink posts batches of records as line protocol.
type Sink struct {
	url      string
	user     string
	password string
	tags     telemetry.Tags
	client   *http.Client
}

// NewSink creates a sink for a full write URL such as
// http://influx:8086/write?db=pumps. Empty credentials disable basic auth.
func NewSink(url, user, password string, tags telemetry.Tags) *Sink {
	return &Sink{
		url:      url,
		user:     user,
		password: password,
		tags:     tags,
		client:   &http.Client{},
	}
}

// Send writes the batch in a single request.
func (s *Sink) Send(ctx context.Context, records []telemetry.Record) error {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	for _, rec := range records {
		encodeRecord(&enc, s.tags, rec)
	}
	if err := enc.Err(); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	body := bytes.NewReader(enc.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("write: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// FormatLine renders one record, e.g.
//
//	pump,location=shed,sensor=well-1,session=abc current=4.75,state=2i,detection=0i,seq=7i 1700000000000000000
//
// States are written as their numeric codes so they can be graphed.
func FormatLine(tags telemetry.Tags, rec telemetry.Record) (string, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	encodeRecord(&enc, tags, rec)
	if err := enc.Err(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(enc.Bytes()), "\n"), nil
}

// encodeRecord appends one line. Tag keys must stay in lexical order and
// empty tags are left out. Errors are sticky on the encoder.
func encodeRecord(enc *lineprotocol.Encoder, tags telemetry.Tags, rec telemetry.Record) {
	enc.StartLine(Measurement)
	addTag(enc, "location", tags.Location)
	addTag(enc, "sensor", tags.PumpID)
	addTag(enc, "session", tags.Session)

	// NaN and Inf have no line-protocol form.
	if current, ok := lineprotocol.FloatValue(rec.CurrentAmps); ok {
		enc.AddField("current", current)
	}
	enc.AddField("state", lineprotocol.IntValue(int64(rec.PumpState.Code())))
	enc.AddField("detection", lineprotocol.IntValue(int64(rec.DetectionState.Code())))
	enc.AddField("seq", lineprotocol.IntValue(int64(rec.Seq)))
	enc.EndLine(rec.Timestamp)
}

func addTag(enc *lineprotocol.Encoder, key, value string) {
	if value != "" {
		enc.AddTag(key, value)
	}
}
