package relay

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jpillora/sizestr"

	"github.com/warrenhq/warren/internal/domain"
	"github.com/warrenhq/warren/internal/netutil"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

// handlePublic dispatches by Host header. Hostnames under the base domain
// route into their tunnel; the base domain itself, an empty host, and
// unrelated hostnames all land on the operational surface.
func (s *Relay) handlePublic(w http.ResponseWriter, r *http.Request) {
	host := netutil.NormalizeHost(r.Host)
	sub, ok := netutil.SplitSubdomain(host, s.baseDomain)
	if !ok {
		s.serveOperational(w, r)
		return
	}

	c, found := s.registry.lookup(sub)
	if !found {
		writeJSON(w, http.StatusNotFound, domain.ErrorResponse{Error: "tunnel not found", Subdomain: sub})
		return
	}
	if c.isClosed() {
		s.registry.remove(sub, c)
		writeJSON(w, http.StatusBadGateway, domain.ErrorResponse{Error: "tunnel closed"})
		return
	}

	s.proxyPublic(w, r, c)
}

func (s *Relay) serveOperational(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:     "ok",
			Tunnels:    s.registry.count(),
			MaxTunnels: s.cfg.MaxTunnels,
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "warren relay\n\nRun a warren agent to expose a local server on a public subdomain.\n")
}

// proxyPublic forwards one public request through c and blocks until the
// agent's response, the request timeout, or shutdown. The pending entry
// outlives the ingress client: a caller that hangs up early does not
// dismiss it.
func (s *Relay) proxyPublic(w http.ResponseWriter, r *http.Request, c *tunnelConn) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			if isBodyTooLargeError(err) {
				writeJSON(w, http.StatusRequestEntityTooLarge, domain.ErrorResponse{Error: "request body too large"})
			} else {
				writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "failed to read request body"})
			}
			return
		}
	}

	reqID := uuid.NewString()
	path := r.URL.RequestURI()

	entry := s.pending.add(reqID, c)
	frame := tunnelproto.Frame{
		Type: tunnelproto.TypeRequest,
		Request: &tunnelproto.RequestFrame{
			ID:      reqID,
			Method:  r.Method,
			Path:    path,
			Headers: tunnelproto.FlattenHeader(r.Header),
			Body:    tunnelproto.EncodeBody(body),
		},
	}
	if err := c.writer.WriteFrame(frame); err != nil {
		s.pending.remove(reqID)
		writeJSON(w, http.StatusBadGateway, domain.ErrorResponse{Error: "tunnel write failed"})
		return
	}

	timer := s.clock.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-entry.ch:
		if !ok {
			if s.isShuttingDown() {
				writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{Error: "Server shutting down"})
			} else {
				writeJSON(w, http.StatusBadGateway, domain.ErrorResponse{Error: "tunnel closed"})
			}
			return
		}
		s.writeTunnelResponse(w, r, c, &resp)
	case <-timer.Chan():
		s.pending.remove(reqID)
		c.log.Warn("request timed out", "request_id", reqID, "method", r.Method, "path", path)
		writeJSON(w, http.StatusGatewayTimeout, domain.ErrorResponse{Error: "upstream timeout"})
	case <-s.done:
		s.pending.remove(reqID)
		writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{Error: "Server shutting down"})
	}
}

// writeTunnelResponse copies the agent's response onto the public socket.
// transfer-encoding never crosses: the relay frames the body itself.
func (s *Relay) writeTunnelResponse(w http.ResponseWriter, r *http.Request, c *tunnelConn, resp *tunnelproto.ResponseFrame) {
	body, err := tunnelproto.DecodeBody(resp.Body)
	if err != nil {
		c.log.Warn("undecodable response body", "request_id", resp.ID, "err", err)
		_ = c.writer.WriteFrame(tunnelproto.Frame{
			Type:    tunnelproto.TypeError,
			Message: "undecodable body in response " + resp.ID,
		})
		writeJSON(w, http.StatusBadGateway, domain.ErrorResponse{Error: "tunnel returned an unreadable body"})
		return
	}

	for k, v := range resp.Headers {
		if strings.EqualFold(k, "Transfer-Encoding") {
			continue
		}
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status < 100 || status > 599 {
		status = http.StatusBadGateway
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}

	c.log.Debug("proxied request",
		"request_id", resp.ID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"size", sizestr.ToString(int64(len(body))))
}
