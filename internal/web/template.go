package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pump-guard/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Pump Guard {{.Daemon.PumpID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.RUNNING, .STARTING, .WET { color: green; font-weight: bold; }
.IDLE, .STOPPED, .STOPPING { color: #888; }
.SUSPECT { color: orange; }
.FAULT, .DRY { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.display { font-size: 1.6em; background: #111; color: #f33; padding: 2px 8px; letter-spacing: 0.2em; }
</style>
</head>
<body>
<h1>Pump Guard: {{.Daemon.PumpID}}</h1>

<h2>Pump</h2>
<table>
<tr><th>State</th><td class="{{stateOrUnknown (printf "%s" .Pump.State)}}">{{stateOrUnknown (printf "%s" .Pump.State)}}</td></tr>
<tr><th>Detection</th><td class="{{stateOrUnknown (printf "%s" .Pump.Detection)}}">{{stateOrUnknown (printf "%s" .Pump.Detection)}}</td></tr>
<tr><th>Current</th><td>{{printf "%.2f" .Pump.CurrentAmps}} A</td></tr>
<tr><th>Relay</th><td>{{if .Pump.RelayOn}}on{{else}}off{{end}}</td></tr>
<tr><th>Sensor</th><td>{{if .Pump.SensorFaulted}}<span class="FAULT">fault</span>{{else}}ok{{end}}</td></tr>
{{if gt .Pump.CooldownRemaining 0}}<tr><th>Cooldown</th><td>{{uptime .Pump.CooldownRemaining}}</td></tr>{{end}}
{{if gt .Pump.TimerRemaining 0}}<tr><th>Timed run</th><td>{{uptime .Pump.TimerRemaining}} left</td></tr>{{end}}
<tr><th>Display</th><td><span class="display">{{printf "%4s" .Display}}</span> ({{.OperatorMode}})</td></tr>
</table>

<h2>Configuration</h2>
<table>
<tr><th>Dry threshold</th><td>{{printf "%.2f" .Config.DryThresholdAmps}} A</td></tr>
<tr><th>Hysteresis</th><td>{{printf "%.2f" .Config.HysteresisMarginAmps}} A</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceDuration}}</td></tr>
<tr><th>Min run</th><td>{{.Config.MinRunDuration}}</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownDuration}}</td></tr>
<tr><th>Telemetry interval</th><td>{{.Config.TelemetryInterval}}</td></tr>
<tr><th>Wet load ratio</th><td>{{printf "%.0f" .Config.WetLoadPercent}} %</td></tr>
</table>

<h2>Telemetry</h2>
<table>
<tr><th>Sink</th><td>{{.Daemon.Sink}} {{.Daemon.Target}}</td></tr>
<tr><th>Connection</th><td class="{{if .SinkConnected}}connected{{else}}disconnected{{end}}">{{if .SinkConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Buffered</th><td>{{.Telemetry.Buffered}} / {{.Telemetry.Capacity}}</td></tr>
<tr><th>Delivered</th><td>{{.Telemetry.Delivered}}</td></tr>
<tr><th>Dropped</th><td>{{.Telemetry.Dropped}}</td></tr>
<tr><th>Failures</th><td>{{.Telemetry.Failures}}</td></tr>
{{if .Telemetry.LastError}}<tr><th>Last error</th><td>{{.Telemetry.LastError}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Starts</th><td>{{.Pump.Counts.Starts}}</td></tr>
<tr><th>Stops</th><td>{{.Pump.Counts.Stops}}</td></tr>
<tr><th>Dry trips</th><td>{{.Pump.Counts.DryTrips}}</td></tr>
<tr><th>Faults</th><td>{{.Pump.Counts.Faults}}</td></tr>
<tr><th>Rejected starts</th><td>{{.Pump.Counts.RejectedStarts}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Session</th><td>{{.Daemon.Session}}</td></tr>
<tr><th>Tick</th><td>{{.Daemon.TickMs}}ms</td></tr>
<tr><th>Window</th><td>{{.Daemon.WindowMs}}ms</td></tr>
<tr><th>Settle</th><td>{{.Daemon.SettleMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Daemon.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
