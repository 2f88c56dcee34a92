package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"weight-monitor/devices"
	"weight-monitor/display"
	"weight-monitor/types"
)

type fakeScale struct {
	mu        sync.Mutex
	ports     []string
	connected bool
	cfg       types.ConnectionConfig
	connects  []types.ConnectionConfig
	listeners []chan types.Event
}

func (f *fakeScale) ListPorts() ([]string, error) { return f.ports, nil }

func (f *fakeScale) Status() types.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := types.ConnectionStatus{Port: f.cfg.Port, Baud: f.cfg.BaudRate, Driver: "fake"}
	if f.connected {
		st.State = types.StateConnected
		st.Connected = true
	}
	return st
}

func (f *fakeScale) Connect(cfg types.ConnectionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, cfg)
	if cfg.Port == "" {
		return &devices.DeviceError{Code: devices.CodeInvalidConfig, Message: "no port selected"}
	}
	if cfg.Port == "/dev/broken" {
		return fmt.Errorf("open %s: %w", cfg.Port, errPortGone)
	}
	for _, p := range f.ports {
		if p == cfg.Port {
			f.connected = true
			f.cfg = cfg
			return nil
		}
	}
	return &devices.DeviceError{Code: devices.CodePortUnavailable, Port: cfg.Port, Message: "port not present"}
}

var errPortGone = errors.New("port gone")

func (f *fakeScale) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeScale) Toggle(cfg types.ConnectionConfig) error {
	if f.Status().Connected {
		return f.Disconnect()
	}
	return f.Connect(cfg)
}

func (f *fakeScale) AddListener(ch chan types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, ch)
}

func (f *fakeScale) RemoveListener(ch chan types.Event) {}

func (f *fakeScale) emit(ev types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.listeners {
		ch <- ev
	}
}

func (f *fakeScale) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func newTestServer() (*Server, *fakeScale, *display.State) {
	scale := &fakeScale{ports: []string{"/dev/ttyUSB0", "SIM0"}}
	disp := display.New()
	return NewServer(":0", "", scale, disp), scale, disp
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPortsHandler(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(t, s.Handler(), http.MethodGet, "/ports", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}
	var body struct {
		Ports []string `json:"ports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Ports) != 2 || body.Ports[0] != "/dev/ttyUSB0" {
		t.Fatalf("ports mismatch: got=%v", body.Ports)
	}
}

func TestConnectHandler(t *testing.T) {
	s, scale, _ := newTestServer()

	rec := doRequest(t, s.Handler(), http.MethodPost, "/connect", `{"port":"/dev/ttyUSB0","baud":9600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var st types.ScaleStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Connection.Connected || st.Connection.Baud != 9600 {
		t.Fatalf("connection mismatch: got=%+v", st.Connection)
	}
	if scale.connects[0].BaudRate != 9600 {
		t.Fatalf("baud not forwarded: got=%d", scale.connects[0].BaudRate)
	}
}

func TestConnectHandlerDefaultsBaud(t *testing.T) {
	s, scale, _ := newTestServer()
	rec := doRequest(t, s.Handler(), http.MethodPost, "/connect", `{"port":"SIM0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d", rec.Code)
	}
	if scale.connects[0].BaudRate != 1200 {
		t.Fatalf("default baud mismatch: got=%d want=1200", scale.connects[0].BaudRate)
	}
}

func TestConnectHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "bad-json", body: `{"port":`, code: http.StatusBadRequest},
		{name: "no-port", body: `{"baud":1200}`, code: http.StatusBadRequest},
		{name: "missing-port", body: `{"port":"/dev/ttyS9"}`, code: http.StatusConflict},
		{name: "unclassified-failure", body: `{"port":"/dev/broken"}`, code: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer()
			rec := doRequest(t, s.Handler(), http.MethodPost, "/connect", tc.body)
			if rec.Code != tc.code {
				t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, tc.code, rec.Body.String())
			}
		})
	}
}

func TestToggleHandlerFlipsConnection(t *testing.T) {
	s, scale, _ := newTestServer()

	doRequest(t, s.Handler(), http.MethodPost, "/toggle", `{"port":"SIM0","baud":1200}`)
	if !scale.Status().Connected {
		t.Fatalf("first toggle should connect")
	}
	doRequest(t, s.Handler(), http.MethodPost, "/toggle", "")
	if scale.Status().Connected {
		t.Fatalf("second toggle should disconnect")
	}
}

func TestWeightHandler(t *testing.T) {
	s, _, disp := newTestServer()
	disp.Update(types.Reading{StatusCode: "ST", TypeCode: "GS", Weight: 1520})

	rec := doRequest(t, s.Handler(), http.MethodGet, "/weight", "")
	var snap types.DisplaySnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Reading.Weight != 1520 || snap.Stability != types.StabilityStable || snap.TypeLabel != "GROSS" {
		t.Fatalf("snapshot mismatch: got=%+v", snap)
	}
}

func TestCopyWeightWithoutReading(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(t, s.Handler(), http.MethodPost, "/weight/copy", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusConflict)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(t, s.Handler(), http.MethodGet, "/connect", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestIndexRendersBaudRates(t *testing.T) {
	s, _, _ := newTestServer()
	rec := doRequest(t, s.Handler(), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<option value="1200" selected>`) {
		t.Fatalf("default baud not selected")
	}
	if !strings.Contains(body, `<option value="115200">`) {
		t.Fatalf("baud list incomplete")
	}
}

func TestWebsocketReceivesEvents(t *testing.T) {
	s, scale, disp := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.pumpEvents(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first WSMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != "status" {
		t.Fatalf("first message type mismatch: got=%q want=status", first.Type)
	}

	deadline := time.Now().Add(time.Second)
	for scale.listenerCount() == 0 || s.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pump or client not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r := types.Reading{StatusCode: "ST", TypeCode: "GS", Weight: 77}
	disp.Update(r)
	scale.emit(types.Event{Kind: types.EventReading, Reading: &r})

	var msg struct {
		Type string       `json:"type"`
		Data eventPayload `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != string(types.EventReading) {
		t.Fatalf("event type mismatch: got=%q", msg.Type)
	}
	if msg.Data.Display.Reading.Weight != 77 {
		t.Fatalf("display mismatch: got=%+v", msg.Data.Display)
	}
}

func TestBroadcastDropsFailedClient(t *testing.T) {
	hub := NewWSHub()
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never upgraded")
	}
	hub.Add(serverConn)
	if hub.Count() != 1 {
		t.Fatalf("client count mismatch: got=%d want=1", hub.Count())
	}

	serverConn.UnderlyingConn().Close()
	hub.Broadcast(WSMessage{Type: "reading"})

	if hub.Count() != 0 {
		t.Fatalf("failed client kept in hub: count=%d", hub.Count())
	}
}
