package api

// Version is reported by the health endpoint
const Version = "0.1.0"

// indexHTML is the viewer: the display stream, the camera controls, the
// real-time toggle, the file picker and the status line. Control state is
// driven entirely by /api/state/stream.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>DetectStreamer</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            max-width: 960px;
            margin: 40px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 {
            color: #333;
            margin-top: 0;
        }
        #display {
            width: 100%;
            background: #222;
            min-height: 240px;
            border-radius: 4px;
        }
        .controls {
            display: flex;
            gap: 10px;
            align-items: center;
            flex-wrap: wrap;
            margin: 16px 0;
        }
        button {
            padding: 8px 16px;
            border: none;
            border-radius: 4px;
            background: #1976d2;
            color: white;
            cursor: pointer;
        }
        button:disabled {
            background: #bbb;
            cursor: default;
        }
        #status {
            padding: 10px;
            background: #e8f5e9;
            border-left: 4px solid #4caf50;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>DetectStreamer</h1>
        <img id="display" src="/stream" alt="display">
        <div class="controls">
            <button id="start">Start Camera</button>
            <button id="stop" disabled>Stop Camera</button>
            <button id="capture" disabled>Capture</button>
            <label><input type="checkbox" id="realtime" disabled> Real-time detection</label>
            <input type="file" id="upload" accept="image/*">
        </div>
        <div id="status">Ready</div>
    </div>
    <script>
        const $ = (id) => document.getElementById(id);

        async function call(method, path, body) {
            const opts = { method };
            if (body instanceof FormData) {
                opts.body = body;
            } else if (body !== undefined) {
                opts.headers = { 'Content-Type': 'application/json' };
                opts.body = JSON.stringify(body);
            }
            const res = await fetch(path, opts);
            if (!res.ok) {
                const data = await res.json().catch(() => ({}));
                console.warn(path, data.error || res.status);
            }
        }

        function render(state) {
            $('start').disabled = !state.controls.start_enabled;
            $('stop').disabled = !state.controls.stop_enabled;
            $('capture').disabled = !state.controls.capture_enabled;
            $('realtime').disabled = !state.controls.toggle_enabled;
            $('realtime').checked = state.controls.toggle_checked;
            if (state.status) {
                $('status').textContent = state.status;
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/api/state/stream');
            ws.onmessage = (ev) => render(JSON.parse(ev.data));
            ws.onclose = () => setTimeout(connect, 1000);
        }

        $('start').onclick = () => call('POST', '/api/camera/start');
        $('stop').onclick = () => call('POST', '/api/camera/stop');
        $('capture').onclick = () => call('POST', '/api/capture');
        $('realtime').onchange = (ev) => call('PUT', '/api/realtime', { enabled: ev.target.checked });
        $('upload').onchange = (ev) => {
            if (ev.target.files.length === 0) {
                return;
            }
            const form = new FormData();
            form.append('image', ev.target.files[0]);
            call('POST', '/api/upload', form);
            ev.target.value = '';
        };

        connect();
    </script>
</body>
</html>`
