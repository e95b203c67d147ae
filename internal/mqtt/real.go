package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pump-guard/internal/telemetry"
)

// ErrNotConnected is returned by Send while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client      paho.Client
	tags        telemetry.Tags
	topic       string
	systemTopic string
}

// NewRealPublisher creates a publisher for the given broker. Connection
// happens in the background and is retried until Close; records are
// buffered by the caller meanwhile.
func NewRealPublisher(broker string, tags telemetry.Tags) *RealPublisher {
	p := &RealPublisher{
		tags:        tags,
		topic:       TopicTelemetry + tags.PumpID,
		systemTopic: TopicSystem + tags.PumpID,
	}

	will, err := FormatSystemPayload(tags, WillEvent())
	if err != nil {
		log.Printf("mqtt: format will: %v", err)
	}

	connected := false
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("pump-guard-" + tags.PumpID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.systemTopic, will, 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c paho.Client) {
			if !connected {
				connected = true
				log.Printf("mqtt: connected to %s", broker)
				return
			}
			log.Printf("mqtt: reconnected to %s", broker)
			payload, err := FormatSystemPayload(tags, SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
			if err == nil {
				c.Publish(p.systemTopic, 1, true, payload)
			}
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Send publishes each record at QoS 0, stopping at the first failure.
func (p *RealPublisher) Send(ctx context.Context, records []telemetry.Record) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	for _, rec := range records {
		payload, err := telemetry.FormatPayload(p.tags, rec)
		if err != nil {
			return fmt.Errorf("format payload: %w", err)
		}
		token := p.client.Publish(p.topic, 0, false, payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return fmt.Errorf("publish seq %d: %w", rec.Seq, ctx.Err())
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish seq %d: %w", rec.Seq, err)
		}
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(p.tags, event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	token := p.client.Publish(p.systemTopic, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
