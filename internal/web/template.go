package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/printer-watchdog/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": compactDuration,
	"ms": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
	"deref": func(f *float64) float64 {
		return *f
	},
}).Parse(indexHTML))

// compactDuration renders d to the second as e.g. "2d 3h 0m 5s", omitting
// leading zero units.
func compactDuration(d time.Duration) string {
	secs := int64(d.Truncate(time.Second) / time.Second)
	units := []struct {
		n      int64
		suffix string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	var parts []string
	for i, u := range units {
		if len(parts) == 0 && u.n == 0 && i < len(units)-1 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
	}
	return strings.Join(parts, " ")
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Printer Watchdog</title>
<style>
body { font: 14px/1.4 sans-serif; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; border-bottom: 2px solid #333; }
h2 { font-size: 1.05em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 6px; }
th { width: 35%; font-weight: normal; color: #555; }
tr:nth-child(even) { background: #f4f4f4; }
.on, .connected { color: #1a7f37; font-weight: bold; }
.off { color: #777; }
.unknown { color: #bf6c00; }
.disconnected { color: #cf222e; }
</style>
</head>
<body>
<h1>Printer Watchdog</h1>

<h2>Power</h2>
<table>
<tr><th>Relay</th><td id="relay-state" class="{{if eq .Relay "ON"}}on{{else if eq .Relay "OFF"}}off{{else}}unknown{{end}}">{{.Relay}}</td></tr>
<tr><th>Watchdog</th><td>{{.State}}</td></tr>
<tr><th>Last active</th><td>{{if .LastActive.IsZero}}never{{else}}{{.LastActive.UTC.Format "2006-01-02T15:04:05Z"}} ({{duration .Idle}} ago){{end}}</td></tr>
</table>

<h2>Printer</h2>
<table>
<tr><th>Job state</th><td>{{if .Job}}{{.Job}}{{else}}-{{end}}</td></tr>
{{if .Completion}}<tr><th>Completion</th><td>{{printf "%.1f" (deref .Completion)}}%</td></tr>{{end}}
<tr><th>Poll failures</th><td class="{{if .PollFailures}}disconnected{{end}}">{{.PollFailures}}</td></tr>
<tr><th>Server</th><td>{{.Config.BaseURL}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}-{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Polls</th><td>{{.Counts.Polls}}</td></tr>
<tr><th>Poll errors</th><td>{{.Counts.PollErrors}}</td></tr>
<tr><th>Button presses</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Power on</th><td>{{.Counts.PowerOn}}</td></tr>
<tr><th>Power off</th><td>{{.Counts.PowerOff}}</td></tr>
<tr><th>Reloads</th><td>{{.Counts.Reloads}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05 UTC"}}</td></tr>
<tr><th>Button channel</th><td>{{.Config.ButtonChannel}}</td></tr>
<tr><th>Debounce</th><td>{{ms .Config.DebounceMs}}</td></tr>
<tr><th>Poll interval</th><td>{{ms .Config.PollIntervalMs}}</td></tr>
<tr><th>Timeout</th><td>{{ms .Config.TimeoutMs}}</td></tr>
<tr><th>Relay backend</th><td>{{.Config.RelayBackend}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Template methods cannot take arguments, so derived values are fields.
	data := struct {
		status.Snapshot
		State  string
		Relay  string
		Uptime time.Duration
		Idle   time.Duration
	}{
		Snapshot: snap,
		State:    orUnknown(snap.State),
		Relay:    orUnknown(string(snap.Relay)),
		Uptime:   snap.Uptime(),
		Idle:     snap.Idle(),
	}
	indexTmpl.Execute(w, data)
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
