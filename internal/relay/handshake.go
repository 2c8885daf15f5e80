package relay

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/warrenhq/warren/internal/domain"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTunnel admits an agent: shared-secret check, capacity check,
// upgrade, label resolution, then the tunnel-assigned frame. The order
// matters: nothing is recorded and no heartbeat starts until the
// connection holds a registry slot.
func (s *Relay) handleTunnel(w http.ResponseWriter, r *http.Request) {
	if s.isShuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{Error: "Server shutting down"})
		return
	}
	if !s.secrets.Contains(r.Header.Get(tunnelproto.HeaderAPIKey)) {
		writeJSON(w, http.StatusUnauthorized, domain.ErrorResponse{Error: "unauthorized"})
		return
	}
	if !s.registry.tryReserve(s.cfg.MaxTunnels) {
		writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{
			Error: "Max tunnel limit reached",
			Limit: s.cfg.MaxTunnels,
		})
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.release()
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit(s.cfg.MaxBodyBytes))

	c := newTunnelConn(conn, s.log)
	label := s.registry.register(r.Header.Get(tunnelproto.HeaderSubdomain), c)
	c.log = s.log.With("tunnel_id", label)
	publicURL := "https://" + label + "." + s.baseDomain

	s.registry.wg.Add(2)
	go func() {
		defer s.registry.wg.Done()
		s.heartbeatLoop(c)
	}()
	go func() {
		defer s.registry.wg.Done()
		s.readLoop(c)
	}()

	assigned := tunnelproto.Frame{
		Type:      tunnelproto.TypeAssigned,
		Subdomain: label,
		URL:       publicURL,
	}
	if err := c.writer.WriteFrame(assigned); err != nil {
		c.log.Error("failed to send assignment", "err", err)
		return
	}
	c.log.Info("tunnel connected", "url", publicURL)
}
