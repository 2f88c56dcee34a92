package web

import (
	"html/template"
	"net/http"

	"weight-monitor/config"
)

const htmlTemplate = `
<!DOCTYPE html>
<html>
<head>
    <title>Weight Monitor</title>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container { max-width: 1000px; margin: 0 auto; }
        .card { background: white; padding: 20px; margin: 10px 0; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .row { display: flex; gap: 10px; flex-wrap: wrap; align-items: center; }
        .connected { color: #4CAF50; font-weight: bold; }
        .disconnected { color: #f44336; font-weight: bold; }
        .weight { font-size: 72px; font-family: monospace; text-align: center; margin: 10px 0; }
        .stable { color: #4CAF50; }
        .unstable { color: #FF9800; }
        .labels { display: flex; justify-content: space-around; font-size: 20px; font-weight: bold; }
        button { background-color: #2196F3; color: white; border: none; padding: 10px 20px; margin: 5px; border-radius: 4px; cursor: pointer; }
        button:hover { background-color: #1976D2; }
        button:disabled { background-color: #ccc; cursor: not-allowed; }
        input, select { padding: 8px; margin: 5px; border: 1px solid #ddd; border-radius: 4px; }
        .log { height: 240px; overflow-y: scroll; background-color: #000; color: #0f0; padding: 10px; font-family: monospace; font-size: 12px; white-space: pre-wrap; }
        h1 { color: #333; text-align: center; }
        h2 { color: #555; border-bottom: 2px solid #2196F3; padding-bottom: 5px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>⚖️ Weight Monitor</h1>

        <div class="card">
            <h2>🔌 Connection</h2>
            <div class="row">
                <label>Port:</label>
                <select id="port"></select>
                <button onclick="refreshPorts()">🔄 Refresh</button>
                <label>Baud:</label>
                <select id="baud">
                    {{range .Bauds}}<option value="{{.}}"{{if eq . $.DefaultBaud}} selected{{end}}>{{.}}</option>{{end}}
                </select>
                <button id="toggle" onclick="toggleConnection()">Connect</button>
            </div>
            <p>Status: <span id="conn-status" class="disconnected">DISCONNECTED</span>
               <span id="conn-port"></span> <small>driver: {{.Driver}}</small></p>
        </div>

        <div class="card">
            <h2>📊 Scale</h2>
            <div id="weight" class="weight">---- kg</div>
            <div class="labels">
                <span id="stability">-</span>
                <span id="type-label">-</span>
            </div>
            <div class="row" style="justify-content: center;">
                <button onclick="copyWeight()">📋 Copy weight</button>
            </div>
        </div>

        <div class="card">
            <h2>📝 Log</h2>
            <div class="row">
                <button onclick="saveLog()">💾 Save log</button>
                <button onclick="clearLog()">🗑 Clear log</button>
            </div>
            <div id="system-log" class="log"></div>
        </div>
    </div>

    <script>
        let connected = false;

        function renderStatus(st) {
            connected = st.connection.connected;
            const status = document.getElementById('conn-status');
            status.textContent = st.connection.state;
            status.className = connected ? 'connected' : 'disconnected';
            document.getElementById('conn-port').textContent = st.connection.port ? '(' + st.connection.port + ' @ ' + st.connection.baud + ')' : '';
            document.getElementById('toggle').textContent = connected ? 'Disconnect' : 'Connect';
            document.getElementById('port').disabled = connected;
            document.getElementById('baud').disabled = connected;
            renderDisplay(st.display);
        }

        function renderDisplay(d) {
            if (!d || !d.has_reading) {
                return;
            }
            const weight = document.getElementById('weight');
            weight.textContent = d.reading.weight + ' kg';
            weight.className = 'weight ' + (d.stability === 'STABLE' ? 'stable' : 'unstable');
            const stability = document.getElementById('stability');
            stability.textContent = d.stability;
            stability.className = d.stability === 'STABLE' ? 'stable' : 'unstable';
            document.getElementById('type-label').textContent = d.type_label;
        }

        function updateStatus() {
            fetch('/status')
                .then(response => response.json())
                .then(renderStatus)
                .catch(err => addLog('status error: ' + err));
        }

        function refreshPorts() {
            fetch('/ports')
                .then(response => response.json())
                .then(data => {
                    const select = document.getElementById('port');
                    const current = select.value;
                    select.innerHTML = '';
                    (data.ports || []).forEach(p => {
                        const opt = document.createElement('option');
                        opt.value = p;
                        opt.textContent = p;
                        select.appendChild(opt);
                    });
                    if (current) {
                        select.value = current;
                    }
                });
        }

        function toggleConnection() {
            const body = {
                port: document.getElementById('port').value,
                baud: parseInt(document.getElementById('baud').value, 10)
            };
            const button = document.getElementById('toggle');
            button.disabled = true;
            fetch('/toggle', {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body)})
                .then(response => response.json())
                .then(data => {
                    if (data.error) {
                        alert(data.error);
                        updateStatus();
                        return;
                    }
                    renderStatus(data);
                })
                .finally(() => { button.disabled = false; });
        }

        function copyWeight() {
            fetch('/weight/copy', {method: 'POST'})
                .then(response => response.json())
                .then(data => {
                    if (data.error) {
                        alert(data.error);
                        return;
                    }
                    const notification = document.createElement('div');
                    notification.style.cssText = 'position: fixed; top: 20px; right: 20px; z-index: 1000; background: #4CAF50; color: white; padding: 15px 20px; border-radius: 5px; box-shadow: 0 2px 10px rgba(0,0,0,0.3); font-weight: bold;';
                    notification.textContent = '✅ ' + data.copied + ' kg copied';
                    document.body.appendChild(notification);
                    setTimeout(function() { notification.remove(); }, 3000);
                });
        }

        function saveLog() {
            fetch('/logs/save', {method: 'POST'})
                .then(response => response.json())
                .then(data => { if (data.error) { alert(data.error); } });
        }

        function clearLog() {
            fetch('/logs/clear', {method: 'POST'})
                .then(() => { document.getElementById('system-log').textContent = ''; });
        }

        function addLog(message, time) {
            const log = document.getElementById('system-log');
            time = time || new Date().toLocaleTimeString();
            log.textContent += '[' + time + '] ' + message + '\n';
            log.scrollTop = log.scrollHeight;
        }

        function connectToLogs() {
            fetch('/logs')
                .then(response => response.json())
                .then(entries => (entries || []).forEach(e => addLog(e.message, e.time)));
            const source = new EventSource('/logs/stream');
            source.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                addLog(msg.message, msg.time);
            };
        }

        function connectToDisplay() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                if (msg.type === 'status') {
                    renderStatus(msg.data);
                    return;
                }
                renderStatus({connection: msg.data.status, display: msg.data.display});
            };
            ws.onclose = function() { setTimeout(connectToDisplay, 2000); };
        }

        refreshPorts();
        updateStatus();
        connectToLogs();
        connectToDisplay();
    </script>
</body>
</html>
`

var indexTemplate = template.Must(template.New("index").Parse(htmlTemplate))

type indexData struct {
	Bauds       []int
	DefaultBaud int
	Driver      string
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{
		Bauds:       config.BAUD_RATES,
		DefaultBaud: config.DEFAULT_BAUD,
		Driver:      s.scale.Status().Driver,
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("render index")
	}
}
