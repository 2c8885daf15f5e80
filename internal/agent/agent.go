// Package agent maintains the client half of a warren tunnel: it dials the
// relay's control channel, answers heartbeats, forwards tunnelled requests
// to a local HTTP server, and re-establishes the channel after drops.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/domain"
	"github.com/warrenhq/warren/internal/log"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

const (
	handshakeTimeout = 10 * time.Second
	wsWriteTimeout   = 15 * time.Second

	// localRequestTimeout bounds one round trip against the local origin.
	// It mirrors the relay's per-request deadline so the agent never
	// holds a forward open past the point the relay has given up.
	localRequestTimeout = 30 * time.Second

	// maxLocalResponseBytes caps how much of a local response is carried
	// back in a single response frame.
	maxLocalResponseBytes = int64(10 << 20)

	reconnectAttempts = 5
	eventBuffer       = 64
)

// Tunnel is a live agent connection to the relay. It owns the control
// channel and keeps the assigned subdomain across reconnects until Close
// is called or the retry budget runs out.
type Tunnel struct {
	cfg   config.AgentConfig
	log   *slog.Logger
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	local *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	writer    *tunnelproto.FrameWriter
	subdomain string
	url       string

	events    chan Event
	closeOnce sync.Once

	forwardWG sync.WaitGroup
}

// Dial connects to the relay, completes the tunnel handshake, and starts
// the session loop. The returned Tunnel is live until Close is called or
// reconnection attempts are exhausted.
func Dial(cfg config.AgentConfig, logger *slog.Logger) (*Tunnel, error) {
	return dial(cfg, logger, clockwork.NewRealClock())
}

func dial(cfg config.AgentConfig, logger *slog.Logger, clock clockwork.Clock) (*Tunnel, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, errors.New("agent: server URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("agent: API key is required")
	}
	if cfg.LocalPort <= 0 || cfg.LocalPort > 65535 {
		return nil, fmt.Errorf("agent: invalid local port %d", cfg.LocalPort)
	}
	if cfg.LocalHost == "" {
		cfg.LocalHost = config.DefaultLocalHost
	}
	if logger == nil {
		logger = log.Discard()
	}

	control, err := controlURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	conn, assigned, err := dialControl(control, cfg.APIKey, cfg.Subdomain)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tunnel{
		cfg:    cfg,
		log:    logger.With("subdomain", assigned.Subdomain),
		clock:  clock,
		ctx:    ctx,
		cancel: cancel,
		local: &http.Client{
			Timeout: localRequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				// Redirects belong to the public caller, not the agent.
				return http.ErrUseLastResponse
			},
		},
		conn:      conn,
		writer:    tunnelproto.NewFrameWriter(conn, wsWriteTimeout),
		subdomain: assigned.Subdomain,
		url:       assigned.URL,
		events:    make(chan Event, eventBuffer),
	}
	t.log.Info("tunnel ready", "url", t.url)

	go t.run()
	return t, nil
}

// Subdomain returns the public label the relay assigned to this tunnel.
func (t *Tunnel) Subdomain() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subdomain
}

// URL returns the tunnel's public URL as announced by the relay.
func (t *Tunnel) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Events returns the tunnel's event stream. The channel is closed exactly
// once, after Close or after the last reconnection attempt fails and all
// in-flight forwards have finished.
func (t *Tunnel) Events() <-chan Event {
	return t.events
}

// Close tears the tunnel down. Safe to call more than once.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		_ = conn.Close()
	})
	return nil
}

func (t *Tunnel) isClosed() bool {
	return t.ctx.Err() != nil
}

// emit publishes an event without blocking. A slow consumer drops events
// rather than stalling the session.
func (t *Tunnel) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}

// controlURL converts a relay base URL into its websocket control
// endpoint. Bare hosts default to wss.
func controlURL(server string) (string, error) {
	raw := strings.TrimSpace(server)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("agent: invalid server URL %q: %w", server, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("agent: unsupported server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("agent: invalid server URL %q", server)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + tunnelproto.TunnelPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// dialControl performs the websocket upgrade and waits for the relay's
// assignment frame, which must be the first thing on the wire.
func dialControl(control, apiKey, subdomain string) (*websocket.Conn, *tunnelproto.Frame, error) {
	header := http.Header{}
	header.Set(tunnelproto.HeaderAPIKey, apiKey)
	if subdomain != "" {
		header.Set(tunnelproto.HeaderSubdomain, subdomain)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.Dial(control, header)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, nil, domain.ErrUnauthorized
			case http.StatusServiceUnavailable:
				return nil, nil, domain.ErrTunnelLimitReached
			}
			return nil, nil, fmt.Errorf("%w: relay answered %s", domain.ErrBadHandshake, resp.Status)
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrBadHandshake, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrBadHandshake, err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrBadHandshake, err)
	}
	frame, err := tunnelproto.ParseFrame(data)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrBadHandshake, err)
	}
	if frame.Type != tunnelproto.TypeAssigned || frame.Subdomain == "" {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: expected %s frame, got %q", domain.ErrBadHandshake, tunnelproto.TypeAssigned, frame.Type)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrBadHandshake, err)
	}
	return conn, &frame, nil
}
