package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/basecamp-iot/basecamp-go/pkg/config"
)

type saveRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *saveRecorder) record() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *saveRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestServer(t *testing.T) (*Server, *config.Store, *saveRecorder) {
	t.Helper()

	store := config.NewMemory()
	saves := &saveRecorder{}

	srv, err := New(Config{
		Addr:  "127.0.0.1:0",
		Store: store,
		Status: func() StatusData {
			return StatusData{
				DeviceName: "garden-sensor",
				Mode:       "CLIENT",
				Connected:  true,
				IP:         "192.168.1.50",
				Version:    "1.2.3",
			}
		},
		OnSave: saves.record,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv, store, saves
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := New(DefaultConfig(config.NewMemory())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigPostPersistsAndRequestsRestart(t *testing.T) {
	srv, store, saves := newTestServer(t)

	body := `{"wifiEssid":"homenet","wifiPassword":"secret123","deviceName":"Garden Sensor"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/config", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200, body %s", w.Code, w.Body.String())
	}

	if got := store.Get(config.KeyWifiESSID); got != "homenet" {
		t.Errorf("wifiEssid: got %q", got)
	}
	if got := store.Get(config.KeyWifiPassword); got != "secret123" {
		t.Errorf("wifiPassword: got %q", got)
	}
	if got := store.Get(config.KeyDeviceName); got != "Garden Sensor" {
		t.Errorf("deviceName: got %q", got)
	}
	if got := store.Get(config.KeyWifiConfigured); got != config.ValueTrue {
		t.Errorf("wifiConfigured: got %q, want %q", got, config.ValueTrue)
	}
	if saves.count() != 1 {
		t.Errorf("OnSave calls: got %d, want 1", saves.count())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp["restart"] != true {
		t.Errorf("restart flag: got %v", resp["restart"])
	}
}

func TestConfigPostIgnoresUnknownKeys(t *testing.T) {
	srv, store, _ := newTestServer(t)

	body := `{"wifiEssid":"homenet","wifiConfigured":"false","bogus":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/config", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	// A client must not be able to force the configured flag off.
	if got := store.Get(config.KeyWifiConfigured); got != config.ValueTrue {
		t.Errorf("wifiConfigured: got %q, want %q", got, config.ValueTrue)
	}
	if store.IsSet(config.Key("bogus")) {
		t.Error("unknown key was persisted")
	}
}

func TestConfigPostRejectsBadPayload(t *testing.T) {
	srv, _, saves := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/config", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	if saves.count() != 0 {
		t.Error("OnSave fired for a rejected payload")
	}
}

func TestConfigMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d, want 405", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var data StatusData
	if err := json.Unmarshal(w.Body.Bytes(), &data); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if data.DeviceName != "garden-sensor" || data.Mode != "CLIENT" || !data.Connected {
		t.Errorf("unexpected status: %+v", data)
	}
	if data.IP != "192.168.1.50" || data.Version != "1.2.3" {
		t.Errorf("unexpected status: %+v", data)
	}
}

func TestStatusWithoutProvider(t *testing.T) {
	srv, err := New(Config{Store: config.NewMemory()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
}

func TestSetupPageServed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []string{"/", "/generate_204", "/hotspot-detect.html"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()

			srv.mux.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), "configform") {
				t.Error("response does not contain the setup form")
			}
		})
	}
}

func TestStartServesAndReportsPort(t *testing.T) {
	srv, _, _ := newTestServer(t)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	port := srv.Port()
	if port == 0 {
		t.Fatal("Port returned 0 after Start")
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/v1/status", port))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	if err := srv.Start(); err != ErrAlreadyStarted {
		t.Fatalf("second Start: got %v, want ErrAlreadyStarted", err)
	}
}

func TestWebSocketPushesStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	url := fmt.Sprintf("ws://127.0.0.1:%d/api/v1/ws", srv.Port())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	readStatus := func() StatusData {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var data StatusData
		if err := conn.ReadJSON(&data); err != nil {
			t.Fatalf("reading status push: %v", err)
		}
		return data
	}

	// The initial snapshot arrives without being asked for.
	if data := readStatus(); data.DeviceName != "garden-sensor" {
		t.Errorf("initial push: %+v", data)
	}

	srv.PushStatus()
	if data := readStatus(); data.Mode != "CLIENT" {
		t.Errorf("explicit push: %+v", data)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv, _, _ := newTestServer(t)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown failed: %v", err)
	}
	if err := srv.Start(); err != ErrServerClosed {
		t.Fatalf("Start after Shutdown: got %v, want ErrServerClosed", err)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestEnableModeString(t *testing.T) {
	tests := []struct {
		mode EnableMode
		want string
	}{
		{EnableAlways, "ALWAYS"},
		{EnableAccessPointOnly, "ACCESS_POINT_ONLY"},
		{EnableNever, "NEVER"},
		{EnableMode(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", tt.mode, got, tt.want)
		}
	}
}
