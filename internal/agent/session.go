package agent

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/warrenhq/warren/internal/domain"
	"github.com/warrenhq/warren/internal/tunnelproto"
)

// run owns the control channel for the tunnel's lifetime. It processes
// frames until the connection drops, then re-establishes it with the
// already-assigned subdomain. The event channel is closed here and only
// here, after every in-flight forward has drained.
func (t *Tunnel) run() {
	defer func() {
		t.forwardWG.Wait()
		close(t.events)
	}()

	for {
		err := t.readLoop()
		if t.isClosed() {
			t.log.Info("tunnel closed")
			return
		}
		t.log.Warn("control channel lost", "err", err)

		if !t.reconnect() {
			return
		}
	}
}

// readLoop drains frames from the current connection until it fails.
// Undecodable and misdirected frames are dropped without tearing the
// channel down.
func (t *Tunnel) readLoop() error {
	t.mu.Lock()
	conn, writer := t.conn, t.writer
	t.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := tunnelproto.ParseFrame(data)
		if err != nil {
			t.log.Warn("dropping bad frame", "err", err)
			continue
		}
		if !tunnelproto.FromRelay(frame.Type) {
			t.log.Warn("dropping misdirected frame", "type", frame.Type)
			continue
		}

		switch frame.Type {
		case tunnelproto.TypePing:
			if err := writer.WriteFrame(tunnelproto.Frame{Type: tunnelproto.TypePong}); err != nil {
				return err
			}
		case tunnelproto.TypeRequest:
			t.forwardWG.Add(1)
			go t.forward(writer, frame.Request)
		case tunnelproto.TypeError:
			t.emit(Event{Kind: KindError, Err: fmt.Errorf("relay: %s", frame.Message)})
		case tunnelproto.TypeAssigned:
			t.setAssignment(frame.Subdomain, frame.URL)
		}
	}
}

// reconnect re-dials the control channel, asking for the subdomain the
// relay already assigned so the public URL stays stable across drops. It
// backs off exponentially and gives up after reconnectAttempts tries.
func (t *Tunnel) reconnect() bool {
	control, err := controlURL(t.cfg.ServerURL)
	if err != nil {
		t.emit(Event{Kind: KindError, Err: err})
		return false
	}

	b := &backoff.Backoff{Min: time.Second, Max: 16 * time.Second, Factor: 2}
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		delay := b.Duration()
		t.log.Info("reconnecting", "attempt", attempt, "delay", delay)

		select {
		case <-t.ctx.Done():
			return false
		case <-t.clock.After(delay):
		}

		conn, assigned, err := dialControl(control, t.cfg.APIKey, t.Subdomain())
		if err != nil {
			t.log.Warn("reconnect failed", "attempt", attempt, "err", err)
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.writer = tunnelproto.NewFrameWriter(conn, wsWriteTimeout)
		t.mu.Unlock()
		t.setAssignment(assigned.Subdomain, assigned.URL)

		if t.isClosed() {
			_ = conn.Close()
			return false
		}

		t.log.Info("tunnel reconnected", "url", t.URL())
		return true
	}

	t.log.Error("reconnect attempts exhausted")
	t.emit(Event{Kind: KindError, Err: domain.ErrReconnectExhausted})
	return false
}

// setAssignment records a relay assignment. The relay may mint a fresh
// label on reconnect when the old one was re-taken in the gap.
func (t *Tunnel) setAssignment(subdomain, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if subdomain != "" {
		t.subdomain = subdomain
	}
	if url != "" {
		t.url = url
	}
}
