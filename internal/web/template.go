package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/status"
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
	"sevClass": func(s notify.Severity) string {
		return strings.ToLower(s.String())
	},
	"value": func(v *float64, unit string) string {
		if v == nil {
			return "-"
		}
		if unit == "%" {
			return fmt.Sprintf("%.0f%%", *v)
		}
		return fmt.Sprintf("%.1f°%s", *v, unit)
	},
	"clock": func(t time.Time) string {
		return t.Local().Format("Jan 2 15:04")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{with .Config.Site}}{{.}}{{else}}Coop{{end}}</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
form { display: inline; }
button { font-family: monospace; }
.ok, .info { color: green; }
.manual { color: #555; font-weight: bold; }
.warn { color: blue; font-weight: bold; }
.error { color: red; font-weight: bold; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.live { background: green; }
.live-dot.down { background: red; }
</style>
</head>
<body>
<h1>{{with .Config.Site}}{{.}}{{else}}Coop{{end}} <span class="{{sevClass .Severity}}">{{.Severity}}</span><span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Devices</h2>
<table>
<tr><th>Device</th><th>State</th><th>Mode</th><th></th></tr>
{{range .Devices}}<tr>
<td class="{{sevClass .Severity}}">{{.Name}}</td>
<td>{{if .Position}}{{.Position}}{{else}}<span class="{{if .On}}on{{else}}off{{end}}">{{if .On}}on{{else}}off{{end}}</span>{{end}}</td>
<td>{{.Mode}}</td>
<td>
{{if eq .Mode "manual"}}<form method="post" action="/devices/{{.ID}}/mode/auto"><button>auto</button></form>{{else}}<form method="post" action="/devices/{{.ID}}/mode/manual"><button>manual</button></form>{{end}}
{{if eq .ID "door"}}<form method="post" action="/door/open"><button>open</button></form>
<form method="post" action="/door/close"><button>close</button></form>
{{else}}<form method="post" action="/devices/{{.ID}}/power/{{if .On}}off{{else}}on{{end}}"><button>turn {{if .On}}off{{else}}on{{end}}</button></form>{{end}}
</td>
</tr>{{end}}
</table>

<h2>Sensors</h2>
<table>
{{range .Sensors}}<tr><th class="{{sevClass .Severity}}">{{.Name}}</th><td>{{value .Value .Unit}}</td><td>{{.State}}</td></tr>
{{end}}<tr><th>Day/night</th><td>{{with .Day}}{{.}}{{else}}invalid{{end}}</td><td>sunrise {{with .Sunrise}}{{.}}{{else}}-{{end}}, sunset {{with .Sunset}}{{.}}{{else}}-{{end}}</td></tr>
</table>

<h2>Notifications</h2>
{{if .Notifications}}<table>
{{range .Notifications}}<tr><td class="{{sevClass .Severity}}">{{.Severity}}</td><td>{{.Message}}</td><td>{{clock .Time}}</td></tr>
{{end}}</table>{{else}}<p>None.</p>{{end}}

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>MQTT</th><td>{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{with .Config.Broker}} ({{.}}){{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}}) {{.Network.IP}}</td></tr>{{end}}
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/status.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  var first = true;
  ws.onopen = function() { dot.className = "live-dot live"; dot.title = "live"; };
  ws.onclose = function() { dot.className = "live-dot down"; dot.title = "offline"; };
  ws.onmessage = function() {
    // The first message is the snapshot this page was rendered from.
    if (first) { first = false; return; }
    location.reload();
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
