package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/warrenhq/warren/internal/domain"
)

const labelAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// mintLabel returns a random 8-character tunnel id from [a-z0-9].
func mintLabel() string {
	b := make([]byte, domain.MintedLabelLen)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = labelAlphabet[int(b[i])%len(labelAlphabet)]
	}
	return string(b)
}

const minWSReadLimit = 1 << 20

// wsReadLimit sizes the control-channel read limit from the body cap,
// leaving headroom for the base64 expansion and the frame envelope.
func wsReadLimit(maxBodyBytes int64) int64 {
	limit := maxBodyBytes * 2
	if limit < minWSReadLimit {
		limit = minWSReadLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

func isBodyTooLargeError(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func shutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// waitGroupWait blocks until wg reaches zero or timeout elapses.
// Returns false if the timeout fired before all goroutines finished.
func waitGroupWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
