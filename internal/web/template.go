package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/antural/motorhome-central/internal/state"
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
	"stateClass": func(s state.State) string {
		if s == state.On {
			return "on"
		}
		return "off"
	},
	"buttonText": func(s state.State) string {
		if s == state.On {
			return "Apagar"
		}
		return "Encender"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Antural Motorhome</title>
<style>
:root { --primary:#1fc800; --danger:#d30e0e; --card:#232a3b; --bg:#181f2a; }
body { font-family: sans-serif; background: var(--bg); color: #eee; margin: 0; }
h1 { text-align: center; letter-spacing: 2px; }
h2 { text-align: center; font-size: 1.1em; color: #b6bdcb; }
.grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(150px, 1fr)); gap: 14px; max-width: 960px; margin: 12px auto; padding: 0 12px; }
.card { background: var(--card); border-radius: 18px; padding: 14px; text-align: center; }
.card.on { box-shadow: 0 0 0 2.5px var(--primary) inset; }
.card.off { box-shadow: 0 0 0 2.5px var(--danger) inset; }
.label { margin-bottom: 6px; }
.value { font-size: 1.8em; font-weight: 700; }
button { border: none; border-radius: 14px; padding: 7px 16px; color: #fff; font-weight: 600; background: var(--primary); cursor: pointer; }
button.off { background: var(--danger); }
table { border-collapse: collapse; max-width: 600px; width: 100%; margin: 1em auto; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #333; }
</style>
</head>
<body>
<h1>Antural Motorhome</h1>

<div class="grid">
{{range .Status.Relays}}<div id="relaycard{{.ID}}" class="card {{stateClass .State}}">
<div class="label">{{.Label}}</div>
<button id="btn{{.ID}}" class="{{stateClass .State}}" onclick="toggle({{.ID}})">{{buttonText .State}}</button>
</div>
{{end}}</div>

<h2>Sensores</h2>
<div class="grid">
<div class="card"><div class="label">Temp. interior</div><div class="value"><span id="valTempInt">{{.Status.Sensor.Temperature}}</span> &deg;C</div></div>
<div class="card"><div class="label">Temp. exterior</div><div class="value"><span id="valTempExt">{{.Status.Auxiliary.ExteriorTemp}}</span> &deg;C</div></div>
<div class="card"><div class="label">Presi&oacute;n</div><div class="value"><span id="valPresion">{{.Status.Sensor.Pressure}}</span> hPa</div></div>
<div class="card"><div class="label">Altitud</div><div class="value"><span id="valAltitud">{{.Status.Sensor.Altitude}}</span> m</div></div>
<div class="card"><div class="label">Calidad de aire</div><div class="value" id="valAirQ">{{.Status.Auxiliary.AirQuality}}</div></div>
<div class="card"><div class="label">Gas (MQ2)</div><div class="value" id="valMQ2">{{.Status.Auxiliary.Gas}}</div></div>
</div>

<h2>Tanques</h2>
<div class="grid">
{{range .Status.Auxiliary.Tanks}}<div class="card"><div class="label">{{.Name}}</div><div class="value">{{.Level}}%</div></div>
{{end}}</div>

<h2>Bater&iacute;a</h2>
<table>
<tr><th>Carga</th><td>{{.Status.Auxiliary.Battery.SOC}}</td></tr>
<tr><th>Tensi&oacute;n</th><td>{{.Status.Auxiliary.Battery.Voltage}}</td></tr>
<tr><th>Corriente</th><td>{{.Status.Auxiliary.Battery.Current}}</td></tr>
<tr><th>Temperatura</th><td>{{.Status.Auxiliary.Battery.Temperature}}</td></tr>
<tr><th>Ciclos</th><td>{{.Status.Auxiliary.Battery.Cycles}}</td></tr>
{{if .Status.Auxiliary.Battery.Status}}<tr><th>Estado</th><td>{{.Status.Auxiliary.Battery.Status}}</td></tr>{{end}}
{{if .Status.Auxiliary.Battery.Balance}}<tr><th>Balanceo</th><td>{{.Status.Auxiliary.Battery.Balance}}</td></tr>{{end}}
</table>

<h2>Sistema</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Status.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>MQTT</th><td>{{if .Status.MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
</table>

<p style="text-align:center"><a href="/status">JSON</a></p>
<script>
function setRelayState(ch, state) {
  var card = document.getElementById("relaycard" + ch);
  var btn = document.getElementById("btn" + ch);
  var cls = state === "ON" ? "on" : "off";
  if (card) card.className = "card " + cls;
  if (btn) { btn.className = cls; btn.textContent = state === "ON" ? "Apagar" : "Encender"; }
}
function toggle(ch) {
  fetch("/toggle4ch?ch=" + ch).then(function() { updateEstados(); });
}
function updateEstados() {
  fetch("/estados").then(function(r) { return r.json(); }).then(function(j) {
    Object.keys(j).forEach(function(k) { setRelayState(k.substring(2), j[k]); });
  });
}
function updateSensores() {
  fetch("/sensores").then(function(r) { return r.json(); }).then(function(j) {
    ["tempInt", "tempExt", "presion", "altitud", "airQ", "mq2"].forEach(function(k) {
      var id = "val" + k.charAt(0).toUpperCase() + k.substring(1);
      if (k === "mq2") id = "valMQ2";
      var el = document.getElementById(id);
      if (el) el.textContent = j[k];
    });
  });
}
setInterval(updateEstados, 3000);
setInterval(updateSensores, 3000);
</script>
</body>
</html>
`

// page is the dashboard's view model.
type page struct {
	Status state.Status
	Uptime time.Duration
}

// newPage gathers everything the dashboard shows through read-only queries.
func newPage(r Reader) (page, error) {
	st, err := r.Status()
	if err != nil {
		return page{}, err
	}
	return page{Status: st, Uptime: st.Uptime()}, nil
}

func renderHTML(w io.Writer, p page) error {
	return indexTmpl.Execute(w, p)
}
