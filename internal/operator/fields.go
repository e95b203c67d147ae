package operator

import (
	"fmt"
	"math"
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
)

// field is one editable config parameter as shown in the menu.
type field struct {
	label string
	step  float64
	get   func(logic.Config) float64
	set   func(*logic.Config, float64)
	show  func(float64) string
}

func seconds(d time.Duration) float64 { return d.Seconds() }

func duration(v float64) time.Duration {
	return time.Duration(math.Round(v*1000)) * time.Millisecond
}

func showAmps(v float64) string {
	if v < 10 {
		return fmt.Sprintf("%4.2f", v)
	}
	return fmt.Sprintf("%4.1f", v)
}

func showSeconds(v float64) string {
	return fmt.Sprintf("%4d", int(math.Round(v)))
}

// fields is the menu order.
var fields = []field{
	{
		label: "thr",
		step:  0.1,
		get:   func(c logic.Config) float64 { return c.DryThresholdAmps },
		set:   func(c *logic.Config, v float64) { c.DryThresholdAmps = v },
		show:  showAmps,
	},
	{
		label: "dEb",
		step:  1,
		get:   func(c logic.Config) float64 { return seconds(c.DebounceDuration) },
		set:   func(c *logic.Config, v float64) { c.DebounceDuration = duration(v) },
		show:  showSeconds,
	},
	{
		label: "hYS",
		step:  0.05,
		get:   func(c logic.Config) float64 { return c.HysteresisMarginAmps },
		set:   func(c *logic.Config, v float64) { c.HysteresisMarginAmps = v },
		show:  showAmps,
	},
	{
		label: "run",
		step:  5,
		get:   func(c logic.Config) float64 { return seconds(c.MinRunDuration) },
		set:   func(c *logic.Config, v float64) { c.MinRunDuration = duration(v) },
		show:  showSeconds,
	},
	{
		label: "cool",
		step:  5,
		get:   func(c logic.Config) float64 { return seconds(c.CooldownDuration) },
		set:   func(c *logic.Config, v float64) { c.CooldownDuration = duration(v) },
		show:  showSeconds,
	},
	{
		label: "tEL",
		step:  5,
		get:   func(c logic.Config) float64 { return seconds(c.TelemetryInterval) },
		set:   func(c *logic.Config, v float64) { c.TelemetryInterval = duration(v) },
		show:  showSeconds,
	},
	{
		label: "rAtO",
		step:  5,
		get:   func(c logic.Config) float64 { return c.WetLoadPercent },
		set:   func(c *logic.Config, v float64) { c.WetLoadPercent = v },
		show:  showSeconds,
	},
}

// Menu entries after the config fields.
const (
	labelTimer   = "tIME"
	labelCapture = "CAL"
)

var (
	menuTimer   = len(fields)
	menuCapture = len(fields) + 1
	menuLen     = len(fields) + 2
)

func menuLabel(i int) string {
	switch i {
	case menuTimer:
		return labelTimer
	case menuCapture:
		return labelCapture
	}
	return fields[i].label
}

// Timed run bounds, in minutes.
const (
	minTimerMinutes     = 1
	maxTimerMinutes     = 99
	defaultTimerMinutes = 10
)

// wetThreshold is the dry threshold for a captured wet current: pct
// percent of it, rounded to the 0.01A display resolution.
func wetThreshold(wetAmps, pct float64) float64 {
	return math.Round(wetAmps*pct) / 100
}

// adjust moves v by n steps, snapping to the step grid and never going
// below zero.
func (f field) adjust(v float64, n int) float64 {
	v = math.Round(v/f.step+float64(n)) * f.step
	// Trim float noise from the multiplication (0.30000000000000004).
	v = math.Round(v*1e6) / 1e6
	if v < 0 {
		return 0
	}
	return v
}
