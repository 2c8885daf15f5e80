package tunnelproto

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newConnPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var up websocket.Upgrader
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		upgraded <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	select {
	case server = <-upgraded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server side of the pair")
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestFrameWriterConcurrentWrites(t *testing.T) {
	t.Parallel()

	client, server := newConnPair(t)
	w := NewFrameWriter(client, time.Second)

	const frames = 20
	var wg sync.WaitGroup
	for i := 0; i < frames; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.WriteFrame(Frame{Type: TypePing}); err != nil {
				t.Errorf("write: %v", err)
			}
		}()
	}

	_ = server.SetReadDeadline(time.Now().Add(5 * time.Second))
	for received := 0; received < frames; received++ {
		_, data, err := server.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", received, err)
		}
		f, err := ParseFrame(data)
		if err != nil {
			t.Fatalf("parse %d: %v", received, err)
		}
		if f.Type != TypePing {
			t.Fatalf("expected ping frame, got %s", f.Type)
		}
	}
	wg.Wait()
}

func TestFrameWriterFailsOnClosedConnection(t *testing.T) {
	t.Parallel()

	client, _ := newConnPair(t)
	w := NewFrameWriter(client, time.Second)

	_ = client.Close()
	if err := w.WriteFrame(Frame{Type: TypePing}); err == nil {
		t.Fatal("expected write on closed connection to fail")
	}
}
