// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler returns the handler for WebSocket upgrade requests. It
// validates that the request uses the GET method, upgrades the connection,
// and hands the new Client to hub, which starts the read/write pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			log.Printf("Hub is shutting down; rejecting client %s", r.RemoteAddr)
			client.closeConnection()
		}
	}
}

// HealthHandler returns a plain text status line with the live connection
// and online user counts.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		svc := hub.Services()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "RelayChat server is running! connections=%d online=%d",
			svc.Connections.Len(), svc.Users.OnlineCount())
	}
}

// TestPageHandler serves an HTML page that speaks the relay envelope
// protocol, for poking at a running server from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>RelayChat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
            white-space: pre-wrap;
        }
        input[type="text"], input[type="password"] { width: 160px; padding: 5px; margin-right: 6px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .out { color: blue; }
        .in { color: green; }
        .err { color: #a00; }
    </style>
</head>
<body>
    <h1>RelayChat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>
    <div class="row"><button id="connectButton" onclick="toggleConnection()">Connect</button></div>

    <div class="row">
        <input type="text" id="login" placeholder="login">
        <input type="password" id="password" placeholder="password">
        <button onclick="login()">Login</button>
        <button onclick="logout()">Logout</button>
    </div>
    <div class="row">
        <input type="text" id="to" placeholder="recipient">
        <input type="text" id="text" placeholder="message text">
        <button onclick="sendMessage()">Send</button>
        <button onclick="history()">History</button>
    </div>
    <div class="row">
        <input type="text" id="messageId" placeholder="message id">
        <button onclick="request('mark-read', {message: {id: val('messageId')}})">Read</button>
        <button onclick="request('edit-message', {message: {id: val('messageId'), text: val('text')}})">Edit</button>
        <button onclick="request('delete-message', {message: {id: val('messageId')}})">Delete</button>
        <button onclick="request('set-active', null)">Active</button>
        <button onclick="request('set-inactive', null)">Inactive</button>
    </div>

    <div id="log"></div>

    <script>
        let ws = null;
        let nextId = 1;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function val(id) { return document.getElementById(id).value; }

        function addLine(text, cls) {
            const line = document.createElement('div');
            line.className = cls;
            line.textContent = text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function toggleConnection() {
            if (ws) {
                ws.close();
                return;
            }
            const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(protocol + '//' + window.location.host + '/ws');
            ws.onopen = function() {
                statusDiv.textContent = 'Connected';
                statusDiv.className = 'status connected';
                connectButton.textContent = 'Disconnect';
            };
            ws.onmessage = function(event) {
                const env = JSON.parse(event.data);
                addLine('<- ' + event.data, env.type === 'error' ? 'err' : 'in');
            };
            ws.onclose = function() {
                statusDiv.textContent = 'Disconnected';
                statusDiv.className = 'status disconnected';
                connectButton.textContent = 'Connect';
                ws = null;
            };
            ws.onerror = function() {
                addLine('WebSocket error', 'err');
            };
        }

        function request(type, payload) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                addLine('not connected', 'err');
                return;
            }
            const frame = JSON.stringify({id: String(nextId++), type: type, payload: payload});
            ws.send(frame);
            addLine('-> ' + frame, 'out');
        }

        function login() { request('login', {user: {login: val('login'), password: val('password')}}); }
        function logout() { request('logout', {user: {login: val('login'), password: val('password')}}); }
        function sendMessage() { request('send-message', {message: {to: val('to'), text: val('text')}}); }
        function history() { request('history-query', {user: {login: val('to')}}); }
    </script>
</body>
</html>`
