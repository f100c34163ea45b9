package server

import (
	"html/template"
	"net/http"
)

func serveIndex(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTmpl.Execute(w, struct{ Name string }{Name: name})
}

var indexTmpl = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Name}}</title>
  <style>
    body { margin:0; padding:24px; background:#0d1117; color:#e5e7eb; font-family: ui-sans-serif, system-ui, sans-serif }
    .wrap { max-width: 720px; margin: 0 auto }
    .hidden { display:none }
    input, button { background:transparent; border:1px solid #1f2937; color:inherit; padding:6px 8px; border-radius:6px }
    #messages { height:380px; overflow:auto; border:1px solid #1f2937; border-radius:8px; padding:10px; margin:12px 0 }
    .message { margin:4px 0 }
    .message.system { color:#9ca3af; font-style:italic }
    .message.user .sender { color:#22c55e }
    .message.other .sender { color:#60a5fa }
    .time { color:#9ca3af; font-size:12px }
    .status.connected { color:#22c55e } .status.connecting { color:#f59e0b } .status.disconnected { color:#ef4444 }
  </style>
</head>
<body>
<div class="wrap">
  <h1 id="page-title">Sign In</h1>
  <div id="status" class="status disconnected">Disconnected</div>
  <div id="connect-form">
    <input id="username" placeholder="username" />
    <input id="server-address" placeholder="host:port" />
    <button id="connect-btn">Connect</button>
  </div>
  <div id="chat-area" class="hidden">
    <div>Online: <span id="client-count">0</span> <span id="user-list"></span></div>
    <div id="messages"></div>
    <input id="message-input" placeholder="type a message and press Enter" />
    <button id="send-btn">Send</button>
    <button id="disconnect-btn">Disconnect</button>
  </div>
</div>
<script>
(function () {
  const $ = (id) => document.getElementById(id);
  const addr = $('server-address'), user = $('username'), input = $('message-input');
  let ws = null, username = '';
  addr.value = window.location.host || 'localhost:10000';

  const stamp = () => new Date().toTimeString().split(' ')[0];
  function setStatus(s) { $('status').textContent = s[0].toUpperCase() + s.slice(1); $('status').className = 'status ' + s; }
  function setPresence(count, users) { $('client-count').textContent = count; $('user-list').textContent = users.join(', '); }

  function addMessage(sender, text, time, type) {
    const div = document.createElement('div');
    div.className = 'message ' + type;
    if (type === 'system') {
      div.textContent = text;
    } else {
      for (const [cls, v] of [['sender', sender], ['text', text], ['time', time]]) {
        const el = document.createElement('div'); el.className = cls; el.textContent = v; div.appendChild(el);
      }
    }
    $('messages').appendChild(div);
    $('messages').scrollTop = $('messages').scrollHeight;
  }

  function cleanup() {
    setStatus('disconnected');
    $('connect-btn').disabled = false;
    $('page-title').textContent = 'Sign In';
    $('connect-form').classList.remove('hidden');
    $('chat-area').classList.add('hidden');
    $('messages').innerHTML = '';
    setPresence(0, []);
    ws = null;
  }

  function onFrame(data) {
    const parts = data.split('|');
    if (parts[0] === 'USERLIST' && parts.length >= 3) {
      setPresence(Math.max(parseInt(parts[1], 10) || 0, 0), parts[2] ? parts[2].split(',') : []);
      return;
    }
    if (parts.length < 3) return;
    const type = parts[0] === 'SYSTEM' ? 'system' : (parts[0] === username ? 'user' : 'other');
    addMessage(parts[0], parts[1], parts[2], type);
  }

  function connect() {
    username = user.value.trim();
    const server = addr.value.trim();
    if (!username) { alert('Please enter a username'); return; }
    if (!server) { alert('Please enter server address'); return; }
    setStatus('connecting');
    $('connect-btn').disabled = true;
    try {
      ws = new WebSocket('ws://' + server);
    } catch (e) {
      alert('Failed to connect: ' + e.message);
      cleanup();
      return;
    }
    ws.onopen = function () {
      setStatus('connected');
      $('page-title').textContent = 'Chat Room';
      $('connect-form').classList.add('hidden');
      $('chat-area').classList.remove('hidden');
      ws.send(username + '|JOIN|' + stamp());
      input.focus();
    };
    ws.onmessage = (ev) => onFrame(ev.data);
    ws.onclose = cleanup;
    ws.onerror = function () { alert('Connection error. Make sure the server is running.'); cleanup(); };
  }

  function disconnect() {
    if (ws) { ws.send(username + '|LEAVE|' + stamp()); ws.close(); }
    cleanup();
  }

  function send() {
    const text = input.value.trim();
    if (!text || !ws || ws.readyState !== WebSocket.OPEN) return;
    ws.send(username + '|' + text + '|' + stamp());
    input.value = '';
    input.focus();
  }

  $('connect-btn').addEventListener('click', connect);
  $('disconnect-btn').addEventListener('click', disconnect);
  $('send-btn').addEventListener('click', send);
  user.addEventListener('keypress', (e) => { if (e.key === 'Enter') connect(); });
  addr.addEventListener('keypress', (e) => { if (e.key === 'Enter') connect(); });
  input.addEventListener('keypress', (e) => { if (e.key === 'Enter') send(); });
})();
</script>
</body>
</html>
`))
