package tunnelproto

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameWriter serializes frame writes on a shared websocket connection.
// Both peers funnel every outbound frame through one writer because
// gorilla/websocket permits only a single concurrent writer per
// connection.
type FrameWriter struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu sync.Mutex
}

// NewFrameWriter wraps conn with a write mutex and a per-write deadline.
func NewFrameWriter(conn *websocket.Conn, timeout time.Duration) *FrameWriter {
	return &FrameWriter{conn: conn, timeout: timeout}
}

// WriteFrame marshals f and writes it as one text message. The connection
// is closed on write failure so both sides observe the broken channel.
func (w *FrameWriter) WriteFrame(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		_ = w.conn.Close()
		return err
	}
	if err := w.conn.WriteJSON(f); err != nil {
		_ = w.conn.Close()
		return err
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once.
func (w *FrameWriter) Close() {
	_ = w.conn.Close()
}
