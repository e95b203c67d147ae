// Command pump-guard watches a pump's motor current and cuts the relay when
// the pump runs dry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/pump-guard/internal/config"
	"github.com/sweeney/pump-guard/internal/control"
	"github.com/sweeney/pump-guard/internal/gpio"
	"github.com/sweeney/pump-guard/internal/influx"
	"github.com/sweeney/pump-guard/internal/kafka"
	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/metrics"
	"github.com/sweeney/pump-guard/internal/mqtt"
	"github.com/sweeney/pump-guard/internal/operator"
	"github.com/sweeney/pump-guard/internal/sensor"
	"github.com/sweeney/pump-guard/internal/status"
	"github.com/sweeney/pump-guard/internal/telemetry"
	"github.com/sweeney/pump-guard/internal/web"
)

type options struct {
	tick         time.Duration
	window       time.Duration
	mainsHz      float64
	settle       time.Duration
	configPath   string
	pumpID       string
	location     string
	sensorPort   string
	baud         int
	calibration  logic.Calibration
	pinRelay     int
	pinCLK       int
	pinData      int
	pinBtn       int
	sink         string
	broker       string
	influxURL    string
	influxUser   string
	influxPass   string
	kafkaBrokers string
	kafkaTopic   string
	buffer       int
	sendTimeout  time.Duration
	httpAddr     string
	printState   bool
}

func main() {
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.DurationVar(&o.tick, "tick", time.Millisecond, "Sampling and control tick period")
	fs.DurationVar(&o.window, "window", 200*time.Millisecond, "RMS averaging window")
	fs.Float64Var(&o.mainsHz, "mains-hz", 50, "Mains frequency the tick and window must resolve")
	fs.DurationVar(&o.settle, "settle", 2*time.Second, "Delay between relay on and RUNNING")
	fs.StringVar(&o.configPath, "config", "/var/lib/pump-guard/config.yaml", "Persisted runtime configuration")
	fs.StringVar(&o.pumpID, "pump-id", "pump", "Pump identifier used in telemetry")
	fs.StringVar(&o.location, "location", "", "Optional location tag for telemetry")
	fs.StringVar(&o.sensorPort, "sensor-port", "/dev/ttyAMA0", "Serial port of the ADC co-processor")
	fs.IntVar(&o.baud, "baud", sensor.DefaultBaudRate, "Serial baud rate")
	fs.Float64Var(&o.calibration.ZeroOffset, "zero-offset", 2048, "Raw ADC value at zero current")
	fs.Float64Var(&o.calibration.Scale, "scale", 30.0/2048, "Amps per raw ADC unit")
	fs.Float64Var(&o.calibration.Ceiling, "ceiling", 50, "Physical current limit in amps; larger readings are spikes (0 disables)")
	fs.IntVar(&o.pinRelay, "pin-relay", gpio.DefaultPinRelay, "BCM pin number for the pump relay")
	fs.IntVar(&o.pinCLK, "pin-clk", gpio.DefaultPinCLK, "BCM pin number for the encoder CLK line")
	fs.IntVar(&o.pinData, "pin-data", gpio.DefaultPinData, "BCM pin number for the encoder DATA line")
	fs.IntVar(&o.pinBtn, "pin-btn", gpio.DefaultPinBtn, "BCM pin number for the encoder button")
	fs.StringVar(&o.sink, "sink", "mqtt", "Telemetry sink: mqtt, influx or kafka")
	fs.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	fs.StringVar(&o.influxURL, "influx-url", "http://localhost:8086/write?db=pump", "InfluxDB write URL")
	fs.StringVar(&o.influxUser, "influx-user", "", "InfluxDB user")
	fs.StringVar(&o.influxPass, "influx-pass", "", "InfluxDB password")
	fs.StringVar(&o.kafkaBrokers, "kafka-brokers", "localhost:9092", "Comma-separated Kafka brokers")
	fs.StringVar(&o.kafkaTopic, "kafka-topic", kafka.DefaultTopic, "Kafka topic")
	fs.IntVar(&o.buffer, "buffer", telemetry.DefaultOptions().Capacity, "Telemetry records buffered during an outage")
	fs.DurationVar(&o.sendTimeout, "send-timeout", telemetry.DefaultOptions().SendTimeout, "Deadline for one telemetry push")
	fs.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	fs.BoolVar(&o.printState, "print-state", false, "Print one current reading and exit")

	err := fs.Parse(args)
	return o, err
}

func run(o options) error {
	if err := logic.CheckSampling(o.window, o.tick, o.mainsHz); err != nil {
		return err
	}

	cs, err := sensor.NewSerialSensor(o.sensorPort, o.baud, 0)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer cs.Close()

	windowSize := logic.WindowSamples(o.window, o.tick)

	if o.printState {
		c, err := readWindow(cs, o.calibration, windowSize, o.tick, time.Now, time.Sleep)
		if err != nil {
			return err
		}
		fmt.Printf("current: %.2fA\n", c.Amps)
		return nil
	}

	relay, err := gpio.NewRealRelay(o.pinRelay)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

	encoder, err := gpio.NewRealEncoder(o.pinCLK, o.pinData, o.pinBtn)
	if err != nil {
		return fmt.Errorf("init encoder: %w", err)
	}
	defer encoder.Close()

	tags := telemetry.Tags{PumpID: o.pumpID, Location: o.location, Session: uuid.NewString()}
	sinks, err := newSinks(o, tags)
	if err != nil {
		return err
	}
	defer sinks.close()

	reporter := telemetry.NewReporter(sinks.sink, telemetry.Options{
		Capacity:    o.buffer,
		SendTimeout: o.sendTimeout,
	})
	defer reporter.Close()

	start := time.Now()
	tracker := status.NewTracker(start, status.Daemon{
		PumpID:   o.pumpID,
		Session:  tags.Session,
		Sink:     o.sink,
		Target:   sinks.target,
		HTTPAddr: o.httpAddr,
		TickMs:   o.tick.Milliseconds(),
		WindowMs: o.window.Milliseconds(),
		SettleMs: o.settle.Milliseconds(),
	})
	m := metrics.New()

	store := config.Open(o.configPath)
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("config: %v", err)
		}
	}()

	sys, err := control.New(control.Deps{
		Sensor:     cs,
		Relay:      relay,
		Events:     encoder.Events(),
		Display:    operator.LogDisplay{},
		Store:      store,
		Reporter:   reporter,
		Tracker:    tracker,
		Metrics:    m,
		SinkStatus: sinks.status,
	}, control.Options{
		Calibration: o.calibration,
		WindowSize:  windowSize,
		Settle:      o.settle,
	}, start)
	if err != nil {
		return err
	}
	sys.Splash(start)

	if sinks.publisher != nil {
		publishStartup(sinks.publisher, tracker)
	}

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, m.Handler(), os.Stdout)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: tick=%v window=%d samples settle=%v sink=%s session=%s",
		o.tick, windowSize, o.settle, o.sink, tags.Session)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sys, sinks.publisher, tracker, m, time.Now, ticker.C, sigCh)
}

// sinkSet is the selected telemetry destination. publisher and status are
// nil for sinks without lifecycle events or connection state.
type sinkSet struct {
	sink      telemetry.Sink
	publisher mqtt.Publisher
	status    control.ConnectionStatus
	target    string
	closer    io.Closer
}

func (s sinkSet) close() {
	if s.closer == nil {
		return
	}
	if err := s.closer.Close(); err != nil {
		log.Printf("close sink: %v", err)
	}
}

func newSinks(o options, tags telemetry.Tags) (sinkSet, error) {
	switch o.sink {
	case "mqtt":
		p := mqtt.NewRealPublisher(o.broker, tags)
		return sinkSet{sink: p, publisher: p, status: p, target: o.broker, closer: p}, nil
	case "influx":
		return sinkSet{sink: influx.NewSink(o.influxURL, o.influxUser, o.influxPass, tags), target: o.influxURL}, nil
	case "kafka":
		brokers := splitList(o.kafkaBrokers)
		if len(brokers) == 0 {
			return sinkSet{}, errors.New("kafka sink: no brokers")
		}
		k := kafka.NewSink(brokers, o.kafkaTopic, tags)
		return sinkSet{sink: k, target: strings.Join(brokers, ","), closer: k}, nil
	}
	return sinkSet{}, fmt.Errorf("unknown sink %q (want mqtt, influx or kafka)", o.sink)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func publishStartup(publisher mqtt.Publisher, tracker *status.Tracker) {
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}
}

func runLoop(sys *control.System, publisher mqtt.Publisher, tracker *status.Tracker, m *metrics.Metrics, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			err := sys.Shutdown(now())
			if err != nil {
				log.Printf("shutdown: %v", err)
			}
			if publisher != nil {
				publishShutdown(publisher, tracker, now(), signalName(s))
			}
			return err

		case <-tick:
			started := time.Now()
			sys.Tick(now())
			if m != nil {
				m.ObserveTick(time.Since(started))
			}
		}
	}
}

func publishShutdown(publisher mqtt.Publisher, tracker *status.Tracker, now time.Time, reason string) {
	event := mqtt.SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// readWindow samples one averaging window for --print-state.
func readWindow(cs sensor.CurrentSensor, cal logic.Calibration, n int, period time.Duration, now func() time.Time, wait func(time.Duration)) (logic.Current, error) {
	sampler := sensor.NewSampler(cs)
	est := logic.NewEstimator(cal, n)
	for {
		c, ok := est.Process(sampler.Next(now()))
		if err := sampler.Err(); err != nil {
			return logic.Current{}, err
		}
		if ok {
			if sampler.Unavailable() == n {
				return logic.Current{}, sensor.ErrUnavailable
			}
			return c, nil
		}
		wait(period)
	}
}
