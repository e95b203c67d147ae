package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/telemetry"
)

var testTags = telemetry.Tags{PumpID: "well-1", Session: "s1"}

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func records() []telemetry.Record {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return []telemetry.Record{
		{Seq: 1, Timestamp: t0, CurrentAmps: 5, PumpState: logic.PumpRunning, DetectionState: logic.DetectionWet},
		{Seq: 2, Timestamp: t0.Add(15 * time.Second), CurrentAmps: 0.1, PumpState: logic.PumpStopped, DetectionState: logic.DetectionDry},
	}
}

func TestMessages(t *testing.T) {
	msgs, err := Messages(testTags, records())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	for i, m := range msgs {
		assert.Equal(t, "well-1", string(m.Key))
		assert.Equal(t, records()[i].Timestamp, m.Time)
		require.Len(t, m.Headers, 1)
		assert.Equal(t, "s1", string(m.Headers[0].Value))
	}

	var p telemetry.Payload
	require.NoError(t, json.Unmarshal(msgs[1].Value, &p))
	assert.Equal(t, uint64(2), p.Pump.Seq)
	assert.Equal(t, "STOPPED", p.Pump.State)
	assert.Equal(t, "DRY", p.Pump.Detection)
}

func TestSendWritesBatch(t *testing.T) {
	w := &recordingWriter{}
	s := &Sink{w: w, tags: testTags}

	require.NoError(t, s.Send(context.Background(), records()))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestSendWrapsWriterError(t *testing.T) {
	cause := errors.New("leader not available")
	s := &Sink{w: &recordingWriter{err: cause}, tags: testTags}

	err := s.Send(context.Background(), records())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestNewSinkDefaultTopic(t *testing.T) {
	s := NewSink([]string{"localhost:9092"}, "", testTags)
	w, ok := s.w.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.Equal(t, kafkago.RequireOne, w.RequiredAcks)

	var _ telemetry.Sink = s
}
