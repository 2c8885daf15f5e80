package agent

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/domain"
	"github.com/warrenhq/warren/internal/log"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

const testKey = "sk_agent_key_123"

// stubRelay stands in for the relay's control endpoint: it records
// handshake headers, assigns a fixed label, and hands accepted
// connections to the test.
type stubRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn

	mu        sync.Mutex
	assign    string
	refuse    int
	first     *tunnelproto.Frame
	dials     int
	lastKey   string
	lastLabel string
}

func newStubRelay(t *testing.T, assign string) *stubRelay {
	t.Helper()

	s := &stubRelay{
		assign:   assign,
		conns:    make(chan *websocket.Conn, 4),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		s.srv.Close()
		for {
			select {
			case conn := <-s.conns:
				_ = conn.Close()
			default:
				return
			}
		}
	})
	return s
}

func (s *stubRelay) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dials++
	s.lastKey = r.Header.Get(tunnelproto.HeaderAPIKey)
	s.lastLabel = r.Header.Get(tunnelproto.HeaderSubdomain)
	refuse := s.refuse
	assign := s.assign
	first := s.first
	s.mu.Unlock()

	if r.URL.Path != tunnelproto.TunnelPath {
		http.NotFound(w, r)
		return
	}
	if refuse != 0 {
		http.Error(w, "refused", refuse)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	frame := tunnelproto.Frame{
		Type:      tunnelproto.TypeAssigned,
		Subdomain: assign,
		URL:       "https://" + assign + ".relay.test",
	}
	if first != nil {
		frame = *first
	}
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return
	}
	select {
	case s.conns <- conn:
	default:
		_ = conn.Close()
	}
}

// take waits for the next accepted control connection.
func (s *stubRelay) take(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-s.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatalf("no control connection arrived")
		return nil
	}
}

func (s *stubRelay) setAssign(label string) {
	s.mu.Lock()
	s.assign = label
	s.mu.Unlock()
}

func (s *stubRelay) setRefuse(status int) {
	s.mu.Lock()
	s.refuse = status
	s.mu.Unlock()
}

func (s *stubRelay) setFirstFrame(f tunnelproto.Frame) {
	s.mu.Lock()
	s.first = &f
	s.mu.Unlock()
}

func (s *stubRelay) stats() (dials int, lastKey, lastLabel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials, s.lastKey, s.lastLabel
}

func testAgentConfig(server string, port int) config.AgentConfig {
	return config.AgentConfig{
		ServerURL: server,
		APIKey:    testKey,
		LocalHost: "127.0.0.1",
		LocalPort: port,
	}
}

// dialStub connects a tunnel to the stub and closes it with the test.
// Tests without a local origin pass a port nothing listens on.
func dialStub(t *testing.T, s *stubRelay, port int) *Tunnel {
	t.Helper()

	tun, err := Dial(testAgentConfig(s.srv.URL, port), log.Discard())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = tun.Close() })
	return tun
}

func originPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse origin url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("origin port: %v", err)
	}
	return port
}

func readFrame(t *testing.T, conn *websocket.Conn) tunnelproto.Frame {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := tunnelproto.ParseFrame(data)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, f tunnelproto.Frame) {
	t.Helper()

	_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteJSON(f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// waitEvent reads one event or fails after a timeout.
func waitEvent(t *testing.T, tun *Tunnel) Event {
	t.Helper()

	select {
	case ev, ok := <-tun.Events():
		if !ok {
			t.Fatalf("event channel closed while waiting for event")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

// waitClosed drains the event channel until it closes and returns what
// was left on it.
func waitClosed(t *testing.T, tun *Tunnel) []Event {
	t.Helper()

	var evs []Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-tun.Events():
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-deadline:
			t.Fatalf("event channel did not close")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControlURL(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want string
	}{
		"https":          {"https://relay.example.com", "wss://relay.example.com/tunnel"},
		"http":           {"http://127.0.0.1:9090", "ws://127.0.0.1:9090/tunnel"},
		"bare_host":      {"relay.example.com", "wss://relay.example.com/tunnel"},
		"trailing_slash": {"https://relay.example.com/", "wss://relay.example.com/tunnel"},
		"ws_passthrough": {"ws://relay.example.com", "ws://relay.example.com/tunnel"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := controlURL(tc.in)
			if err != nil {
				t.Fatalf("controlURL(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}

	for name, in := range map[string]string{
		"bad_scheme": "ftp://relay.example.com",
		"empty_host": "https://",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := controlURL(in); err == nil {
				t.Fatalf("expected error for %q", in)
			}
		})
	}
}

func TestDialValidatesConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]config.AgentConfig{
		"missing_server": {APIKey: testKey, LocalPort: 3000},
		"missing_key":    {ServerURL: "https://relay.example.com", LocalPort: 3000},
		"zero_port":      {ServerURL: "https://relay.example.com", APIKey: testKey},
		"huge_port":      {ServerURL: "https://relay.example.com", APIKey: testKey, LocalPort: 70000},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Dial(cfg, log.Discard()); err == nil {
				t.Fatalf("expected config error")
			}
		})
	}
}

func TestDialAssignsTunnel(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "happy-otter")
	tun := dialStub(t, s, 65000)
	s.take(t)

	if got := tun.Subdomain(); got != "happy-otter" {
		t.Fatalf("expected subdomain happy-otter, got %q", got)
	}
	if got := tun.URL(); got != "https://happy-otter.relay.test" {
		t.Fatalf("expected assigned url, got %q", got)
	}
	_, key, label := s.stats()
	if key != testKey {
		t.Fatalf("expected api key %q on handshake, got %q", testKey, key)
	}
	if label != "" {
		t.Fatalf("expected no preferred subdomain, got %q", label)
	}
}

func TestDialSendsPreferredSubdomain(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "myapp")
	cfg := testAgentConfig(s.srv.URL, 65000)
	cfg.Subdomain = "myapp"
	tun, err := Dial(cfg, log.Discard())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = tun.Close() })
	s.take(t)

	_, _, label := s.stats()
	if label != "myapp" {
		t.Fatalf("expected preferred subdomain on handshake, got %q", label)
	}
}

func TestDialRefused(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		want   error
	}{
		"unauthorized": {http.StatusUnauthorized, domain.ErrUnauthorized},
		"at_capacity":  {http.StatusServiceUnavailable, domain.ErrTunnelLimitReached},
		"teapot":       {http.StatusTeapot, domain.ErrBadHandshake},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newStubRelay(t, "refused")
			s.setRefuse(tc.status)

			_, err := Dial(testAgentConfig(s.srv.URL, 65000), log.Discard())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDialRejectsBadFirstFrame(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "never")
	s.setFirstFrame(tunnelproto.Frame{Type: tunnelproto.TypePing})

	_, err := Dial(testAgentConfig(s.srv.URL, 65000), log.Discard())
	if !errors.Is(err, domain.ErrBadHandshake) {
		t.Fatalf("expected %v, got %v", domain.ErrBadHandshake, err)
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "pinger")
	dialStub(t, s, 65000)
	conn := s.take(t)

	writeFrame(t, conn, tunnelproto.Frame{Type: tunnelproto.TypePing})
	if got := readFrame(t, conn); got.Type != tunnelproto.TypePong {
		t.Fatalf("expected pong, got %q", got.Type)
	}
}

func TestRelayErrorBecomesEvent(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "errand")
	tun := dialStub(t, s, 65000)
	conn := s.take(t)

	writeFrame(t, conn, tunnelproto.Frame{Type: tunnelproto.TypeError, Message: "upstream exploded"})

	ev := waitEvent(t, tun)
	if ev.Kind != KindError {
		t.Fatalf("expected error event, got %q", ev.Kind)
	}
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "upstream exploded") {
		t.Fatalf("expected relayed message in event, got %v", ev.Err)
	}

	// The notice must not kill the session.
	writeFrame(t, conn, tunnelproto.Frame{Type: tunnelproto.TypePing})
	if got := readFrame(t, conn); got.Type != tunnelproto.TypePong {
		t.Fatalf("expected pong after error frame, got %q", got.Type)
	}
}

func TestBadFramesDropped(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "sturdy")
	dialStub(t, s, 65000)
	conn := s.take(t)

	// Garbage, an unknown type, and a frame travelling the wrong way all
	// get dropped without tearing the channel down.
	_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"gibberish"}`)); err != nil {
		t.Fatalf("write unknown type: %v", err)
	}
	writeFrame(t, conn, tunnelproto.Frame{Type: tunnelproto.TypePong})

	writeFrame(t, conn, tunnelproto.Frame{Type: tunnelproto.TypePing})
	if got := readFrame(t, conn); got.Type != tunnelproto.TypePong {
		t.Fatalf("expected pong after junk frames, got %q", got.Type)
	}
}

func TestMidStreamAssignmentUpdatesURL(t *testing.T) {
	t.Parallel()

	s := newStubRelay(t, "before")
	tun := dialStub(t, s, 65000)
	conn := s.take(t)

	writeFrame(t, conn, tunnelproto.Frame{
		Type:      tunnelproto.TypeAssigned,
		Subdomain: "after",
		URL:       "https://after.relay.test",
	})

	waitFor(t, "assignment adoption", func() bool { return tun.Subdomain() == "after" })
	if got := tun.URL(); got != "https://after.relay.test" {
		t.Fatalf("expected updated url, got %q", got)
	}
}
