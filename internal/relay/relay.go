// Package relay implements the public side of warren: a single-port HTTP
// server that turns control-channel attachments into subdomain-routed
// tunnels and proxies public requests through them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/warrenhq/warren/internal/auth"
	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/netutil"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 65 * time.Second
	wsWriteTimeout    = 15 * time.Second
	shutdownGrace     = 5 * time.Second
	drainWait         = 15 * time.Second
)

// Relay owns the subdomain registry, the pending-request table, and the
// HTTP surface that serves both tunnel attachments and public traffic.
type Relay struct {
	cfg        config.RelayConfig
	baseDomain string
	log        *slog.Logger
	clock      clockwork.Clock

	secrets  *auth.SecretSet
	registry *registry
	pending  *pendingTable

	done     chan struct{}
	doneOnce func()
}

// New validates cfg and builds a relay. Zero timeouts and caps fall back
// to the package defaults so partially filled records stay usable.
func New(cfg config.RelayConfig, logger *slog.Logger) (*Relay, error) {
	secrets := auth.NewSecretSet(cfg.Secrets)
	if secrets.Empty() {
		return nil, errors.New("relay: no shared secrets configured")
	}
	base := netutil.NormalizeHost(cfg.BaseDomain)
	if base == "" {
		return nil, errors.New("relay: missing base domain")
	}
	if cfg.MaxTunnels <= 0 {
		cfg.MaxTunnels = config.DefaultMaxTunnels
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = config.DefaultHeartbeatInterval
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultMaxBodyBytes
	}

	r := &Relay{
		cfg:        cfg,
		baseDomain: base,
		log:        logger,
		clock:      clockwork.NewRealClock(),
		secrets:    secrets,
		registry:   newRegistry(),
		pending:    newPendingTable(),
		done:       make(chan struct{}),
	}
	r.doneOnce = sync.OnceFunc(func() { close(r.done) })
	return r, nil
}

// Handler returns the relay's single HTTP surface: the control-channel
// upgrade on the fixed path, everything else dispatched by Host header.
func (s *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tunnelproto.TunnelPath, s.handleTunnel)
	mux.HandleFunc("/", s.handlePublic)
	return mux
}

// Run serves until ctx is cancelled or the listener fails, then shuts
// down gracefully: heartbeats cancelled, channels closed, pending
// requests drained, listener stopped.
func (s *Relay) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay listening",
			"addr", s.cfg.Listen,
			"domain", s.baseDomain,
			"max_tunnels", s.cfg.MaxTunnels)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.shutdown(server)
		return nil
	case err := <-errCh:
		s.shutdown(server)
		return err
	}
}

func (s *Relay) shutdown(server *http.Server) {
	s.drainAndClose()
	if server != nil {
		_ = shutdownServer(server, shutdownGrace)
	}
	waitGroupWait(&s.registry.wg, drainWait)
	s.log.Info("relay stopped")
}

// drainAndClose signals shutdown to every heartbeat and blocked ingress
// handler, then closes all control channels.
func (s *Relay) drainAndClose() {
	s.doneOnce()
	for _, c := range s.registry.snapshot() {
		c.close()
	}
}

func (s *Relay) isShuttingDown() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
