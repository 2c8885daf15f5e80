package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/warrenhq/warren/internal/tunnelproto"
)

// tunnelConn is one attached agent: the control channel, its serialized
// frame writer, and the liveness flag driven by the ping/pong cycle.
type tunnelConn struct {
	id     string
	conn   *websocket.Conn
	writer *tunnelproto.FrameWriter
	log    *slog.Logger

	alive     atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func newTunnelConn(conn *websocket.Conn, logger *slog.Logger) *tunnelConn {
	c := &tunnelConn{
		conn:   conn,
		writer: tunnelproto.NewFrameWriter(conn, wsWriteTimeout),
		log:    logger,
		closed: make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// close tears down the transport. Safe from any goroutine, any number of
// times; the read loop notices the closed connection and finishes the
// registry and pending-table cleanup.
func (c *tunnelConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *tunnelConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// readLoop consumes the control channel until it breaks. All teardown
// funnels through the deferred cleanup: whatever closed the connection,
// the registry entry goes away, pending requests owned by this tunnel
// fail, and the heartbeat observes c.closed.
func (s *Relay) readLoop(c *tunnelConn) {
	defer func() {
		c.close()
		s.registry.remove(c.id, c)
		s.pending.failConn(c)
		c.log.Info("tunnel disconnected")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) && !c.isClosed() {
				c.log.Warn("tunnel read error", "err", err)
			}
			return
		}

		frame, err := tunnelproto.ParseFrame(data)
		if err != nil {
			c.log.Warn("dropping bad frame", "err", err)
			_ = c.writer.WriteFrame(tunnelproto.Frame{
				Type:    tunnelproto.TypeError,
				Message: err.Error(),
			})
			continue
		}
		if !tunnelproto.FromAgent(frame.Type) {
			c.log.Warn("dropping misdirected frame", "type", frame.Type)
			continue
		}

		switch frame.Type {
		case tunnelproto.TypePong:
			c.alive.Store(true)
		case tunnelproto.TypeResponse:
			s.dispatchResponse(c, frame.Response)
		}
	}
}

// dispatchResponse resolves the pending entry for a tunnel-response. The
// first response per id wins; duplicates, unknown ids, and responses
// relayed by the wrong tunnel are dropped.
func (s *Relay) dispatchResponse(c *tunnelConn, resp *tunnelproto.ResponseFrame) {
	entry, ok := s.pending.take(resp.ID, c)
	if !ok {
		c.log.Debug("discarding response with no pending request", "request_id", resp.ID)
		return
	}
	entry.ch <- *resp
}

// heartbeatLoop pings c on every interval tick. A tick that finds the
// alive flag still false closes the connection: a silent channel lives at
// most two intervals past its last pong.
func (s *Relay) heartbeatLoop(c *tunnelConn) {
	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-s.done:
			return
		case <-ticker.Chan():
			if !c.alive.Swap(false) {
				c.log.Warn("tunnel missed heartbeat, closing")
				c.close()
				return
			}
			_ = c.writer.WriteFrame(tunnelproto.Frame{Type: tunnelproto.TypePing})
		}
	}
}
