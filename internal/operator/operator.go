// Package operator turns encoder events into config edits and manual pump
// commands, and renders the 4-digit status display.
package operator

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/pump-guard/internal/config"
	"github.com/sweeney/pump-guard/internal/logic"
)

// FlashDuration is how long rejection and error messages stay on screen.
const FlashDuration = 2 * time.Second

// blinkPeriod is the half-cycle of the edited-value blink.
const blinkPeriod = 500 * time.Millisecond

const dimBrightness uint8 = 2

// Mode is the current screen.
type Mode int

const (
	ModeHome Mode = iota
	ModeMenu
	ModeEdit
	ModeTimer
)

func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "menu"
	case ModeEdit:
		return "edit"
	case ModeTimer:
		return "timer"
	}
	return "home"
}

// View is the read-only pipeline snapshot the operator acts and renders on.
type View struct {
	PumpState      logic.PumpState
	CurrentAmps    float64
	TimerRemaining time.Duration
}

// Action is a pump request raised from the panel.
type Action struct {
	Command logic.Command
	RunFor  time.Duration // timed run length for CommandStart, zero for open-ended
}

// Operator is the local control surface. Not safe for concurrent use: all
// calls come from the control loop.
type Operator struct {
	store   *config.Store
	display Display

	mode     Mode
	showAmps bool
	field    int     // menu position
	value    float64 // value being edited, in display units
	minutes  int     // timed run length being edited

	flash      string
	flashUntil time.Time

	rendered   bool
	digits     string
	brightness uint8
}

// New creates an operator on the home screen.
func New(store *config.Store, display Display) *Operator {
	return &Operator{store: store, display: display, minutes: defaultTimerMinutes}
}

// Handle applies one input event. It returns the pump action to take, if
// any; the caller reports a rejection back through Rejected.
func (o *Operator) Handle(ev logic.InputEvent, now time.Time, v View) (Action, bool) {
	switch o.mode {
	case ModeHome:
		return o.handleHome(ev, v)
	case ModeMenu:
		o.handleMenu(ev, now, v)
	case ModeEdit:
		o.handleEdit(ev, now)
	case ModeTimer:
		return o.handleTimer(ev)
	}
	return Action{}, false
}

func (o *Operator) handleHome(ev logic.InputEvent, v View) (Action, bool) {
	switch ev {
	case logic.Click:
		switch v.PumpState {
		case logic.PumpIdle, logic.PumpStopped:
			return Action{Command: logic.CommandStart}, true
		case logic.PumpStarting, logic.PumpRunning:
			return Action{Command: logic.CommandStop}, true
		case logic.PumpFault:
			return Action{Command: logic.CommandReset}, true
		}
	case logic.RotateLeft, logic.RotateRight:
		o.showAmps = !o.showAmps
	case logic.LongPress:
		o.mode = ModeMenu
		o.field = 0
	}
	return Action{}, false
}

func (o *Operator) handleMenu(ev logic.InputEvent, now time.Time, v View) {
	switch ev {
	case logic.RotateRight:
		o.field = (o.field + 1) % menuLen
	case logic.RotateLeft:
		o.field = (o.field + menuLen - 1) % menuLen
	case logic.Click:
		switch o.field {
		case menuTimer:
			o.mode = ModeTimer
		case menuCapture:
			o.capture(now, v)
		default:
			o.mode = ModeEdit
			o.value = fields[o.field].get(o.store.Config())
		}
	case logic.LongPress:
		o.mode = ModeHome
	}
}

func (o *Operator) handleEdit(ev logic.InputEvent, now time.Time) {
	f := fields[o.field]
	switch ev {
	case logic.RotateRight:
		o.value = f.adjust(o.value, 1)
	case logic.RotateLeft:
		o.value = f.adjust(o.value, -1)
	case logic.Click:
		cfg := o.store.Config()
		f.set(&cfg, o.value)
		if err := o.store.Apply(cfg); err != nil {
			log.Printf("operator: %s rejected: %v", f.label, err)
			o.Flash("Err", now, FlashDuration)
		} else {
			log.Printf("operator: %s set to %s", f.label, f.show(o.value))
		}
		o.mode = ModeMenu
	case logic.LongPress:
		o.mode = ModeMenu
	}
}

func (o *Operator) handleTimer(ev logic.InputEvent) (Action, bool) {
	switch ev {
	case logic.RotateRight:
		if o.minutes < maxTimerMinutes {
			o.minutes++
		}
	case logic.RotateLeft:
		if o.minutes > minTimerMinutes {
			o.minutes--
		}
	case logic.Click:
		o.mode = ModeHome
		return Action{Command: logic.CommandStart, RunFor: time.Duration(o.minutes) * time.Minute}, true
	case logic.LongPress:
		o.mode = ModeMenu
	}
	return Action{}, false
}

// capture sets the dry threshold from the current wet running current.
func (o *Operator) capture(now time.Time, v View) {
	if v.PumpState != logic.PumpRunning {
		log.Printf("operator: capture needs a running pump, state is %s", v.PumpState)
		o.Rejected(now)
		return
	}
	cfg := o.store.Config()
	cfg.DryThresholdAmps = wetThreshold(v.CurrentAmps, cfg.WetLoadPercent)
	if err := o.store.Apply(cfg); err != nil {
		log.Printf("operator: capture at %.2fA rejected: %v", v.CurrentAmps, err)
		o.Flash("Err", now, FlashDuration)
		return
	}
	log.Printf("operator: wet load %.2fA captured, threshold %.2fA (%v%%)",
		v.CurrentAmps, cfg.DryThresholdAmps, cfg.WetLoadPercent)
	o.Flash("SEt", now, FlashDuration)
}

// Rejected shows the busy indicator after a refused command.
func (o *Operator) Rejected(now time.Time) {
	o.Flash("bUSY", now, FlashDuration)
}

// Flash overrides the screen with text for d.
func (o *Operator) Flash(text string, now time.Time, d time.Duration) {
	o.flash = text
	o.flashUntil = now.Add(d)
}

// Render writes the screen for now, skipping the write when nothing
// changed. A failed write is retried on the next call.
func (o *Operator) Render(now time.Time, v View) error {
	digits, brightness := o.screen(now, v)
	if o.rendered && digits == o.digits && brightness == o.brightness {
		return nil
	}
	if err := o.display.Render(digits, brightness); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	o.rendered = true
	o.digits = digits
	o.brightness = brightness
	return nil
}

func (o *Operator) screen(now time.Time, v View) (string, uint8) {
	if o.flash != "" && now.Before(o.flashUntil) {
		return o.flash, MaxBrightness
	}
	o.flash = ""

	switch o.mode {
	case ModeMenu:
		return menuLabel(o.field), MaxBrightness
	case ModeTimer:
		return showSeconds(float64(o.minutes)), blink(now)
	case ModeEdit:
		return fields[o.field].show(o.value), blink(now)
	}

	if o.showAmps {
		return showAmps(v.CurrentAmps), MaxBrightness
	}
	if v.TimerRemaining > 0 && v.PumpState.Energized() {
		return showTimer(v.TimerRemaining), MaxBrightness
	}
	return stateText(v.PumpState), MaxBrightness
}

func blink(now time.Time) uint8 {
	if (now.UnixNano()/int64(blinkPeriod))%2 == 1 {
		return dimBrightness
	}
	return MaxBrightness
}

// showTimer shows the minutes left on a timed run, rounded up.
func showTimer(d time.Duration) string {
	return fmt.Sprintf("r%3d", int((d+time.Minute-1)/time.Minute))
}

// stateText is the 7-segment friendly spelling of a pump state.
func stateText(s logic.PumpState) string {
	switch s {
	case logic.PumpIdle:
		return "IdLE"
	case logic.PumpStarting:
		return "StAr"
	case logic.PumpRunning:
		return "run"
	case logic.PumpStopping:
		return "StOP"
	case logic.PumpStopped:
		return "OFF"
	case logic.PumpFault:
		return "FLt"
	}
	return "----"
}

// Mode returns the current screen.
func (o *Operator) Mode() Mode {
	return o.mode
}

// Field returns the label of the selected menu entry.
func (o *Operator) Field() string {
	return menuLabel(o.field)
}

// Shown returns the last frame written to the display.
func (o *Operator) Shown() (string, uint8) {
	return o.digits, o.brightness
}
