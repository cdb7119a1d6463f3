package httpapi

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openctrol/agent/internal/console"
	"github.com/openctrol/agent/internal/health"
	"github.com/openctrol/agent/internal/remote/desktop"
	"github.com/openctrol/agent/internal/secmem"
)

type stubCapturer struct{}

func (stubCapturer) CaptureRegion(x, y, w, h int) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}
func (stubCapturer) Close() error { return nil }

type stubSwitcher struct{}

func (stubSwitcher) With(_ console.State, fn func() error) error { return fn() }
func (stubSwitcher) Detect() console.State                       { return console.StateUnlocked }

type stubInjector struct{}

func (stubInjector) MoveAbsolute(int, int) error   { return nil }
func (stubInjector) MoveRelative(int, int) error   { return nil }
func (stubInjector) Button(string, bool) error     { return nil }
func (stubInjector) Wheel(int, int) error          { return nil }
func (stubInjector) Key(int, bool) error           { return nil }
func (stubInjector) Text(string) error             { return nil }

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	reg := desktop.NewRegistry(func() ([]desktop.Monitor, error) {
		return []desktop.Monitor{
			{ID: "DISPLAY1", Name: "Main", Width: 1920, Height: 1080, IsPrimary: true},
			{ID: "DISPLAY2", Name: "Side", Width: 1280, Height: 1024, X: 1920},
		}, nil
	})
	if err := reg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	dist := desktop.NewDistributor()
	eng := desktop.NewEngine(desktop.EngineConfig{TargetFPS: 15, JPEGQuality: 70},
		reg, stubCapturer{}, stubSwitcher{}, dist)
	disp := desktop.NewDispatcher(stubInjector{}, stubSwitcher{}, reg)
	mon := health.NewMonitor()

	srv := New(cfg, eng, disp, dist, mon)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, ts *httptest.Server, path, apiKey string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if apiKey != "" {
		req.Header.Set(authHeader, apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestAuthRequired(t *testing.T) {
	_, ts := newTestServer(t, Config{APIKey: secmem.New("secret")})

	code, body := getJSON(t, ts, "/api/v1/health", "")
	if code != http.StatusUnauthorized {
		t.Fatalf("no key: status %d, want 401", code)
	}
	if body["error"] == "" {
		t.Fatal("no error message in 401 body")
	}

	code, _ = getJSON(t, ts, "/api/v1/health", "wrong")
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d, want 401", code)
	}

	code, _ = getJSON(t, ts, "/api/v1/health", "secret")
	if code != http.StatusOK {
		t.Fatalf("valid key: status %d, want 200", code)
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	code, _ := getJSON(t, ts, "/api/v1/health", "")
	if code != http.StatusOK {
		t.Fatalf("status %d, want 200", code)
	}
}

func TestMonitorsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	code, body := getJSON(t, ts, "/api/v1/rd/monitors", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	monitors, _ := body["monitors"].([]any)
	if len(monitors) != 2 {
		t.Fatalf("monitors = %v", body["monitors"])
	}
	if body["current"] != "DISPLAY1" {
		t.Fatalf("current = %v", body["current"])
	}
}

func TestMonitorSelectEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Post(ts.URL+"/api/v1/rd/monitor", "application/json",
		strings.NewReader(`{"monitor_id":"DISPLAY2"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	_, body := getJSON(t, ts, "/api/v1/rd/monitors", "")
	if body["current"] != "DISPLAY2" {
		t.Fatalf("current = %v after select", body["current"])
	}
}

func TestMonitorSelectUnknown(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Post(ts.URL+"/api/v1/rd/monitor", "application/json",
		strings.NewReader(`{"monitor_id":"DISPLAY9"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestMonitorSelectMissingBody(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Post(ts.URL+"/api/v1/rd/monitor", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	code, body := getJSON(t, ts, "/api/v1/rd/status", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if _, ok := body["running"]; !ok {
		t.Fatalf("status body = %v", body)
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialSession(t *testing.T, ts *httptest.Server, apiKey string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if apiKey != "" {
		header.Set(authHeader, apiKey)
	}
	return websocket.DefaultDialer.Dial(wsURL(ts, "/api/v1/rd/session"), header)
}

func TestSessionHelloOverWebSocket(t *testing.T) {
	srv, ts := newTestServer(t, Config{AgentID: "agent-x", Version: "2.0.0"})

	conn, _, err := dialSession(t, ts, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("hello message type %d", mt)
	}

	var hello struct {
		Type     string            `json:"type"`
		AgentID  string            `json:"agent_id"`
		Session  string            `json:"session_id"`
		Version  string            `json:"version"`
		Monitors []desktop.Monitor `json:"monitors"`
	}
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatalf("hello unmarshal: %v", err)
	}
	if hello.Type != "hello" || hello.AgentID != "agent-x" || hello.Version != "2.0.0" {
		t.Fatalf("hello = %+v", hello)
	}
	if hello.Session == "" {
		t.Fatal("empty session_id")
	}
	if len(hello.Monitors) != 2 {
		t.Fatalf("monitors = %d", len(hello.Monitors))
	}

	if srv.SessionCount() != 1 {
		t.Fatalf("SessionCount = %d, want 1", srv.SessionCount())
	}
}

func TestSessionAuthEnforcedOnUpgrade(t *testing.T) {
	_, ts := newTestServer(t, Config{APIKey: secmem.New("secret")})

	_, resp, err := dialSession(t, ts, "")
	if err == nil {
		t.Fatal("unauthenticated upgrade succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}

	conn, _, err := dialSession(t, ts, "secret")
	if err != nil {
		t.Fatalf("authenticated dial: %v", err)
	}
	conn.Close()
}

func TestSessionLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxSessions: 1})

	conn, _, err := dialSession(t, ts, "")
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer conn.Close()

	// Consume the hello so the session is fully established.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	_, resp, err := dialSession(t, ts, "")
	if err == nil {
		t.Fatal("second session accepted past limit")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSessionSlotReleasedOnFailedUpgrade(t *testing.T) {
	srv, ts := newTestServer(t, Config{MaxSessions: 1})

	// A plain GET is not a WebSocket handshake, so the upgrade fails after
	// the slot was reserved. The reservation must be rolled back.
	resp, err := http.Get(ts.URL + "/api/v1/rd/session")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		t.Fatalf("status %d before any session", resp.StatusCode)
	}
	if srv.SessionCount() != 0 {
		t.Fatalf("SessionCount = %d after failed upgrade, want 0", srv.SessionCount())
	}

	conn, _, err := dialSession(t, ts, "")
	if err != nil {
		t.Fatalf("dial after failed upgrade: %v", err)
	}
	conn.Close()
}

func TestSessionCommandRoundTrip(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	conn, _, err := dialSession(t, ts, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	msg := `{"type":"monitor_select","monitor_id":"DISPLAY2"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.engine.CurrentMonitorID() == "DISPLAY2" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("monitor_select command not applied")
}
