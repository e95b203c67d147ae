// Package control owns the pump-guard pipeline and runs one tick of it at
// a time: operator input, sampling, estimation, detection, control,
// telemetry, status and display, always in that order.
package control

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/pump-guard/internal/config"
	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/metrics"
	"github.com/sweeney/pump-guard/internal/operator"
	"github.com/sweeney/pump-guard/internal/sensor"
	"github.com/sweeney/pump-guard/internal/status"
	"github.com/sweeney/pump-guard/internal/telemetry"
)

// maxEventsPerTick bounds how many operator events one tick consumes.
const maxEventsPerTick = 16

// splashDuration is how long each startup splash frame stays on screen.
const splashDuration = 1500 * time.Millisecond

// ConnectionStatus reports whether the telemetry sink is connected.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps are the capabilities the pipeline is built from. Tracker, Metrics
// and SinkStatus are optional.
type Deps struct {
	Sensor     sensor.CurrentSensor
	Relay      logic.Relay
	Events     <-chan logic.InputEvent
	Display    operator.Display
	Store      *config.Store
	Reporter   *telemetry.Reporter
	Tracker    *status.Tracker
	Metrics    *metrics.Metrics
	SinkStatus ConnectionStatus
}

// Options are fixed for the lifetime of the daemon.
type Options struct {
	Calibration logic.Calibration
	WindowSize  int           // samples per estimator window
	Settle      time.Duration // STARTING to RUNNING delay
}

// System is the explicit context object holding every pipeline component.
// All methods must be called from the control loop goroutine.
type System struct {
	deps Deps

	sampler    *sensor.Sampler
	estimator  *logic.Estimator
	detector   *logic.Detector
	controller *logic.Controller
	operator   *operator.Operator

	current      logic.Current
	sensorFault  bool
	renderFailed bool
	readyAt      time.Time // end of the startup splash, zero once shown
}

// New builds the pipeline and forces the relay off.
func New(d Deps, opts Options, now time.Time) (*System, error) {
	if d.Sensor == nil || d.Relay == nil || d.Display == nil || d.Store == nil || d.Reporter == nil {
		return nil, errors.New("control: missing dependency")
	}

	controller, err := logic.NewController(d.Relay, opts.Settle, now)
	if err != nil {
		return nil, fmt.Errorf("init controller: %w", err)
	}

	return &System{
		deps:       d,
		sampler:    sensor.NewSampler(d.Sensor),
		estimator:  logic.NewEstimator(opts.Calibration, opts.WindowSize),
		detector:   logic.NewDetector(now),
		controller: controller,
		operator:   operator.New(d.Store, d.Display),
	}, nil
}

// Tick runs one pass of the pipeline at now.
func (s *System) Tick(now time.Time) {
	// Operator input first; config edits made here apply to this tick.
	s.drainEvents(now)
	cfg := s.deps.Store.Config()

	raw := s.sampler.Next(now)
	if c, ok := s.estimator.Process(raw); ok {
		s.current = c
		if s.controller.State() == logic.PumpRunning {
			if state, changed := s.detector.Process(c, cfg); changed {
				log.Printf("detect: %s at %.2fA", state, c.Amps)
			}
		}
	}

	faulted := s.sampler.Faulted()
	if faulted && !s.sensorFault {
		log.Printf("sensor: %v", s.sampler.Err())
	} else if !faulted && s.sensorFault {
		log.Printf("sensor: readings restored")
	}
	s.sensorFault = faulted

	s.apply(now, s.controller.Step(logic.StepInput{
		Time:        now,
		Detection:   s.detector.State(),
		Config:      cfg,
		SensorFault: faulted,
	}))

	r := s.deps.Reporter
	if r.Due(now, cfg.TelemetryInterval) {
		r.Record(telemetry.Record{
			Timestamp:      now,
			CurrentAmps:    s.current.Amps,
			PumpState:      s.controller.State(),
			DetectionState: s.detector.State(),
		})
	}
	r.Poll(now)

	s.publishStatus(now, cfg)
	if !s.readyAt.IsZero() && !now.Before(s.readyAt) {
		s.readyAt = time.Time{}
		s.operator.Flash("donE", now, splashDuration)
	}
	s.render(now)
}

func (s *System) drainEvents(now time.Time) {
	for i := 0; i < maxEventsPerTick; i++ {
		select {
		case ev, ok := <-s.deps.Events:
			if !ok {
				return
			}
			s.handleEvent(ev, now)
		default:
			return
		}
	}
}

func (s *System) handleEvent(ev logic.InputEvent, now time.Time) {
	act, ok := s.operator.Handle(ev, now, s.view(now))
	if !ok {
		return
	}
	if act.Command == logic.CommandStart && act.RunFor > 0 {
		s.StartTimed(act.RunFor, now)
		return
	}
	s.Command(act.Command, now)
}

// Command applies a manual command as if issued from the operator panel.
func (s *System) Command(cmd logic.Command, now time.Time) error {
	trs, err := s.controller.Command(cmd, now, s.deps.Store.Config())
	if err != nil {
		log.Printf("pump: %s: %v", cmd, err)
		if errors.Is(err, logic.ErrCommandRejected) {
			s.operator.Rejected(now)
		}
		return err
	}
	s.apply(now, trs)
	return nil
}

// StartTimed starts the pump for d, or sets the remaining run time of a
// pump that is already on.
func (s *System) StartTimed(d time.Duration, now time.Time) error {
	trs, err := s.controller.StartTimed(now, d, s.deps.Store.Config())
	if err != nil {
		log.Printf("pump: timed start: %v", err)
		if errors.Is(err, logic.ErrCommandRejected) {
			s.operator.Rejected(now)
		}
		return err
	}
	log.Printf("pump: timed run for %v", d)
	s.apply(now, trs)
	return nil
}

// apply logs and counts transitions and re-arms the detector on each
// entry into RUNNING.
func (s *System) apply(now time.Time, trs []logic.Transition) {
	for _, tr := range trs {
		log.Printf("pump: %s -> %s (%s)", tr.From, tr.To, tr.Reason)
		if tr.To == logic.PumpRunning {
			s.detector.Reset(now)
		}
		if tr.Reason == logic.ReasonRelayFault {
			log.Printf("relay: %v", s.controller.RelayErr())
		}
	}
	if s.deps.Metrics != nil && len(trs) > 0 {
		s.deps.Metrics.ObserveTransitions(trs)
	}
}

func (s *System) view(now time.Time) operator.View {
	return operator.View{
		PumpState:      s.controller.State(),
		CurrentAmps:    s.current.Amps,
		TimerRemaining: s.controller.TimerRemaining(now),
	}
}

func (s *System) publishStatus(now time.Time, cfg logic.Config) {
	tel := s.deps.Reporter.Stats()

	if s.deps.Metrics != nil {
		s.deps.Metrics.Update(metrics.Sample{
			CurrentAmps:       s.current.Amps,
			PumpState:         s.controller.State(),
			Detection:         s.detector.State(),
			Counts:            s.controller.Counts(),
			Telemetry:         tel,
			SensorUnavailable: s.sampler.Unavailable(),
			DryThresholdAmps:  cfg.DryThresholdAmps,
		})
	}

	if s.deps.Tracker == nil {
		return
	}
	s.deps.Tracker.Update(s.Pump(now, cfg), cfg, tel)
	if s.deps.SinkStatus != nil {
		s.deps.Tracker.SetSinkConnected(s.deps.SinkStatus.IsConnected())
	}
	digits, _ := s.operator.Shown()
	s.deps.Tracker.SetOperator(s.operator.Mode().String(), digits)
}

func (s *System) render(now time.Time) {
	if err := s.operator.Render(now, s.view(now)); err != nil {
		if !s.renderFailed {
			log.Printf("display: %v", err)
		}
		s.renderFailed = true
		return
	}
	s.renderFailed = false
}

// Flash shows text on the display for d.
func (s *System) Flash(text string, now time.Time, d time.Duration) {
	s.operator.Flash(text, now, d)
	s.render(now)
}

// Splash shows the startup sequence: "LOAd" now, then "donE" from the
// first tick after it has been on screen for its full duration.
func (s *System) Splash(now time.Time) {
	s.readyAt = now.Add(splashDuration)
	s.Flash("LOAd", now, splashDuration)
}

// Pump returns the pipeline state for status reporting.
func (s *System) Pump(now time.Time, cfg logic.Config) status.Pump {
	c := s.controller
	return status.Pump{
		State:             c.State(),
		StateSince:        c.ChangedAt(),
		Detection:         s.detector.State(),
		CurrentAmps:       s.current.Amps,
		RelayOn:           c.RelayOn(),
		SensorFaulted:     s.sensorFault,
		LastStart:         c.LastStart(),
		LastStop:          c.LastStop(),
		CooldownRemaining: c.CooldownRemaining(now, cfg),
		TimerRemaining:    c.TimerRemaining(now),
		Counts:            c.Counts(),
	}
}

// Shutdown de-energizes the relay. The caller closes the hardware.
func (s *System) Shutdown(now time.Time) error {
	trs, err := s.controller.Shutdown(now)
	s.apply(now, trs)
	s.publishStatus(now, s.deps.Store.Config())
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.render(now)
	return nil
}

// State returns the current pump state.
func (s *System) State() logic.PumpState {
	return s.controller.State()
}

// Detection returns the current detection state.
func (s *System) Detection() logic.DetectionState {
	return s.detector.State()
}

// Current returns the most recent window estimate.
func (s *System) Current() logic.Current {
	return s.current
}

// Operator returns the operator surface.
func (s *System) Operator() *operator.Operator {
	return s.operator
}
