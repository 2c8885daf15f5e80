package relay

import (
	"sync"

	"github.com/warrenhq/warren/internal/tunnelproto"
)

// pendingEntry tracks one in-flight public request. ch is buffered so the
// channel read loop never blocks handing over a response; owner pins the
// entry to the tunnel it was created against.
type pendingEntry struct {
	owner *tunnelConn
	ch    chan tunnelproto.ResponseFrame
}

// pendingTable correlates tunnel-response frames back to blocked ingress
// handlers by request id. Entries are dismissed on response, timeout, or
// tunnel teardown, never by the ingress client going away.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: map[string]*pendingEntry{}}
}

func (t *pendingTable) add(id string, owner *tunnelConn) *pendingEntry {
	e := &pendingEntry{owner: owner, ch: make(chan tunnelproto.ResponseFrame, 1)}
	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()
	return e
}

// take claims the entry for id iff it belongs to owner, making the caller
// the only writer of e.ch. Responses arriving over any other tunnel, or
// after the first response won, leave nothing to claim.
func (t *pendingTable) take(id string, owner *tunnelConn) (*pendingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.owner != owner {
		return nil, false
	}
	delete(t.entries, id)
	return e, true
}

// remove dismisses id without resolving it (timeout and shutdown paths).
// A response that already claimed the entry is unaffected and simply goes
// unread.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// failConn dismisses every entry owned by c and closes its channel so
// blocked ingress handlers observe the disconnect.
func (t *pendingTable) failConn(c *tunnelConn) {
	t.mu.Lock()
	for id, e := range t.entries {
		if e.owner == c {
			delete(t.entries, id)
			close(e.ch)
		}
	}
	t.mu.Unlock()
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	n := len(t.entries)
	t.mu.Unlock()
	return n
}
