package wifi

import (
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/netcontrol"
)

// fakeSupplicant is an in-process wpa_supplicant control socket. It
// records every command, answers with canned replies, and can push
// unsolicited events to the attached monitor.
type fakeSupplicant struct {
	t    *testing.T
	conn *net.UnixConn
	path string

	mu        sync.Mutex
	commands  []string
	replies   map[string]string
	attached  *net.UnixAddr
	hostnames []string
}

func newFakeSupplicant(t *testing.T) *fakeSupplicant {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wlan0")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}

	f := &fakeSupplicant{
		t:       t,
		conn:    conn,
		path:    path,
		replies: make(map[string]string),
	}
	go f.serve()
	t.Cleanup(func() { _ = conn.Close() })
	return f
}

func (f *fakeSupplicant) serve() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := f.conn.ReadFromUnix(buf)
		if err != nil {
			return
		}
		cmd := string(buf[:n])

		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		if cmd == "ATTACH" {
			f.attached = addr
		}
		reply := f.replyFor(cmd)
		f.mu.Unlock()

		_, _ = f.conn.WriteToUnix([]byte(reply), addr)
	}
}

// replyFor picks the reply for a command. Callers hold f.mu.
func (f *fakeSupplicant) replyFor(cmd string) string {
	for prefix, reply := range f.replies {
		if strings.HasPrefix(cmd, prefix) {
			return reply
		}
	}
	switch cmd {
	case "PING":
		return "PONG\n"
	case "ADD_NETWORK":
		return "0\n"
	default:
		return "OK\n"
	}
}

func (f *fakeSupplicant) sendEvent(event string) {
	f.mu.Lock()
	addr := f.attached
	f.mu.Unlock()
	if addr == nil {
		f.t.Fatalf("no attached monitor to send %q", event)
	}
	if _, err := f.conn.WriteToUnix([]byte(event), addr); err != nil {
		f.t.Fatalf("sending event: %v", err)
	}
}

func (f *fakeSupplicant) sawCommand(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// recordHostname stands in for the kernel hostname call in tests.
func (f *fakeSupplicant) recordHostname(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hostnames = append(f.hostnames, name)
	return nil
}

func (f *fakeSupplicant) appliedHostnames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hostnames...)
}

func (f *fakeSupplicant) ctrlDir() string {
	return filepath.Dir(f.path)
}

func newTestBackend(t *testing.T, fake *fakeSupplicant, addrSource func(string) (net.IP, error)) *Backend {
	t.Helper()

	cfg := DefaultConfig("wlan0")
	cfg.CtrlDir = fake.ctrlDir()
	cfg.ClientSocketDir = t.TempDir()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.CommandTimeout = time.Second
	cfg.AddressSource = addrSource
	cfg.SetHostname = fake.recordHostname

	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func noAddress(string) (net.IP, error) {
	return nil, nil
}

func waitEvent(t *testing.T, events <-chan netcontrol.Event, what string) netcontrol.Event {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatalf("event stream closed while waiting for %s", what)
		}
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	return netcontrol.Event{}
}

// waitCondition polls cond until it holds or a second passes.
func waitCondition(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewAttachesMonitor(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	if !fake.sawCommand("PING") {
		t.Error("PING was not sent")
	}
	if !fake.sawCommand("ATTACH") {
		t.Error("ATTACH was not sent")
	}

	if err := backend.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	waitCondition(t, func() bool { return fake.sawCommand("DETACH") }, "DETACH command")
}

func TestNewRejectsUnresponsiveSocket(t *testing.T) {
	cfg := DefaultConfig("wlan0")
	cfg.CtrlDir = t.TempDir() // no socket here
	cfg.ClientSocketDir = t.TempDir()
	cfg.CommandTimeout = 50 * time.Millisecond

	if _, err := New(cfg); err == nil {
		t.Fatal("New() with missing control socket succeeded, want error")
	}
}

func TestStationFlow(t *testing.T) {
	fake := newFakeSupplicant(t)

	var haveAddr atomic.Bool
	backend := newTestBackend(t, fake, func(string) (net.IP, error) {
		if haveAddr.Load() {
			return net.IPv4(10, 0, 0, 9), nil
		}
		return nil, nil
	})

	err := backend.StartStation(netcontrol.StationConfig{
		ESSID:    "homenet",
		Password: "correct horse",
		Hostname: "garden-sensor",
	})
	if err != nil {
		t.Fatalf("StartStation() error = %v", err)
	}

	wantCommands := []string{
		"REMOVE_NETWORK all",
		"ADD_NETWORK",
		`SET_NETWORK 0 ssid "homenet"`,
		"SET_NETWORK 0 scan_ssid 1",
		"SET_NETWORK 0 psk " + DerivePSK("homenet", "correct horse"),
		`SET_NETWORK 0 id_str "garden-sensor"`,
		"SELECT_NETWORK 0",
	}
	for _, cmd := range wantCommands {
		if !fake.sawCommand(cmd) {
			t.Errorf("command %q was not sent", cmd)
		}
	}

	if got := fake.appliedHostnames(); len(got) != 1 || got[0] != "garden-sensor" {
		t.Errorf("applied hostnames = %v, want [garden-sensor]", got)
	}

	fake.sendEvent("<3>CTRL-EVENT-CONNECTED - Connection to 02:12:34:56:78:9a completed [id=0 id_str=]")
	haveAddr.Store(true)

	event := waitEvent(t, backend.Events(), "address acquired")
	if event.Type != netcontrol.EventAddressAcquired {
		t.Fatalf("event type = %v, want %v", event.Type, netcontrol.EventAddressAcquired)
	}
	if !event.Addr.Equal(net.IPv4(10, 0, 0, 9)) {
		t.Errorf("event addr = %v, want 10.0.0.9", event.Addr)
	}
	if got := backend.StationIP(); !got.Equal(net.IPv4(10, 0, 0, 9)) {
		t.Errorf("StationIP() = %v, want 10.0.0.9", got)
	}

	fake.sendEvent("<3>CTRL-EVENT-DISCONNECTED bssid=02:12:34:56:78:9a reason=3 locally_generated=1")

	event = waitEvent(t, backend.Events(), "link lost")
	if event.Type != netcontrol.EventLinkLost {
		t.Fatalf("event type = %v, want %v", event.Type, netcontrol.EventLinkLost)
	}
	if event.Reason != "reason=3" {
		t.Errorf("event reason = %q, want %q", event.Reason, "reason=3")
	}
	if got := backend.StationIP(); got != nil {
		t.Errorf("StationIP() after link loss = %v, want nil", got)
	}
}

func TestStationHostnameFailureNonFatal(t *testing.T) {
	// Setting the kernel hostname needs privileges the agent may lack.
	// The station attempt must proceed regardless.
	fake := newFakeSupplicant(t)

	cfg := DefaultConfig("wlan0")
	cfg.CtrlDir = fake.ctrlDir()
	cfg.ClientSocketDir = t.TempDir()
	cfg.CommandTimeout = time.Second
	cfg.AddressSource = noAddress
	cfg.SetHostname = func(string) error { return errors.New("operation not permitted") }

	backend, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer backend.Close()

	err = backend.StartStation(netcontrol.StationConfig{
		ESSID:    "homenet",
		Password: "pw-123456",
		Hostname: "garden-sensor",
	})
	if err != nil {
		t.Fatalf("StartStation() error = %v", err)
	}
	if !fake.sawCommand("SELECT_NETWORK 0") {
		t.Error("network was not selected after hostname failure")
	}
}

func TestStationOpenNetwork(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	if err := backend.StartStation(netcontrol.StationConfig{ESSID: "cafe"}); err != nil {
		t.Fatalf("StartStation() error = %v", err)
	}

	if !fake.sawCommand("SET_NETWORK 0 key_mgmt NONE") {
		t.Error("open network did not set key_mgmt NONE")
	}
	fake.mu.Lock()
	for _, cmd := range fake.commands {
		if strings.Contains(cmd, " psk ") {
			t.Errorf("open network sent a key: %q", cmd)
		}
	}
	fake.mu.Unlock()
}

func TestRetryDisconnectsStayInternal(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	if err := backend.StartStation(netcontrol.StationConfig{ESSID: "homenet", Password: "pw-123456"}); err != nil {
		t.Fatalf("StartStation() error = %v", err)
	}

	// The supplicant emits disconnect events during its retry cycle
	// before any association succeeded. None of them is a transition.
	fake.sendEvent("<3>CTRL-EVENT-DISCONNECTED bssid=00:00:00:00:00:00 reason=3")
	fake.sendEvent("<3>CTRL-EVENT-DISCONNECTED bssid=00:00:00:00:00:00 reason=3")

	time.Sleep(50 * time.Millisecond)
	select {
	case event := <-backend.Events():
		t.Fatalf("unexpected event %v before any association", event.Type)
	default:
	}
}

func TestAccessPointFlow(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	err := backend.StartAccessPoint(netcontrol.AccessPointConfig{
		Name:   "ESP32_AABBCC",
		Secret: "setup-secret-1",
	})
	if err != nil {
		t.Fatalf("StartAccessPoint() error = %v", err)
	}

	wantCommands := []string{
		`SET_NETWORK 0 ssid "ESP32_AABBCC"`,
		"SET_NETWORK 0 mode 2",
		"SET_NETWORK 0 frequency 2437",
		"SET_NETWORK 0 key_mgmt WPA-PSK",
		"SET_NETWORK 0 proto RSN",
		"SET_NETWORK 0 pairwise CCMP",
		"SET_NETWORK 0 psk " + DerivePSK("ESP32_AABBCC", "setup-secret-1"),
		"SELECT_NETWORK 0",
	}
	for _, cmd := range wantCommands {
		if !fake.sawCommand(cmd) {
			t.Errorf("command %q was not sent", cmd)
		}
	}

	if got := backend.AccessPointIP(); got != nil {
		t.Errorf("AccessPointIP() before AP-ENABLED = %v, want nil", got)
	}

	fake.sendEvent("<3>AP-ENABLED ")
	waitCondition(t, func() bool {
		return backend.AccessPointIP() != nil
	}, "access point address")
	if got := backend.AccessPointIP(); !got.Equal(net.IPv4(192, 168, 4, 1)) {
		t.Errorf("AccessPointIP() = %v, want 192.168.4.1", got)
	}

	fake.sendEvent("<3>AP-STA-CONNECTED aa:bb:cc:dd:ee:ff")
	event := waitEvent(t, backend.Events(), "station joined")
	if event.Type != netcontrol.EventAPStationJoined {
		t.Fatalf("event type = %v, want %v", event.Type, netcontrol.EventAPStationJoined)
	}
	if event.Station.String() != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("station = %v, want aa:bb:cc:dd:ee:ff", event.Station)
	}

	fake.sendEvent("<3>AP-STA-DISCONNECTED aa:bb:cc:dd:ee:ff")
	event = waitEvent(t, backend.Events(), "station left")
	if event.Type != netcontrol.EventAPStationLeft {
		t.Fatalf("event type = %v, want %v", event.Type, netcontrol.EventAPStationLeft)
	}

	fake.sendEvent("<3>AP-DISABLED ")
	waitCondition(t, func() bool {
		return backend.AccessPointIP() == nil
	}, "access point teardown")
}

func TestOpenAccessPoint(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	if err := backend.StartAccessPoint(netcontrol.AccessPointConfig{Name: "ESP32_AABBCC"}); err != nil {
		t.Fatalf("StartAccessPoint() error = %v", err)
	}

	if !fake.sawCommand("SET_NETWORK 0 key_mgmt NONE") {
		t.Error("open access point did not set key_mgmt NONE")
	}
}

func TestReconnect(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	if err := backend.Reconnect(); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if !fake.sawCommand("RECONNECT") {
		t.Error("RECONNECT was not sent")
	}

	_ = backend.Close()
	if err := backend.Reconnect(); err != ErrBackendClosed {
		t.Errorf("Reconnect() after Close error = %v, want ErrBackendClosed", err)
	}
}

func TestCommandFailureSurfaces(t *testing.T) {
	fake := newFakeSupplicant(t)
	fake.mu.Lock()
	fake.replies["SELECT_NETWORK"] = "FAIL\n"
	fake.mu.Unlock()

	backend := newTestBackend(t, fake, noAddress)

	err := backend.StartStation(netcontrol.StationConfig{ESSID: "homenet", Password: "pw-123456"})
	if err == nil {
		t.Fatal("StartStation() with failing SELECT_NETWORK succeeded, want error")
	}
}

func TestCloseIdempotent(t *testing.T) {
	fake := newFakeSupplicant(t)
	backend := newTestBackend(t, fake, noAddress)

	if err := backend.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// The event stream drains and closes.
	waitCondition(t, func() bool {
		select {
		case _, ok := <-backend.Events():
			return !ok
		default:
			return false
		}
	}, "event stream close")
}

func TestChannelFrequency(t *testing.T) {
	tests := []struct {
		channel int
		want    int
	}{
		{1, 2412},
		{6, 2437},
		{11, 2462},
		{13, 2472},
		{14, 2484},
	}
	for _, tt := range tests {
		if got := channelFrequency(tt.channel); got != tt.want {
			t.Errorf("channelFrequency(%d) = %d, want %d", tt.channel, got, tt.want)
		}
	}
}
