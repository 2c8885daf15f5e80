package relay

import (
	"sync"

	"github.com/warrenhq/warren/internal/domain"
)

// registry maps subdomain labels to live control channels. Reservations
// hold a slot between the cap check and the registry insert so concurrent
// handshakes cannot overshoot the tunnel limit.
type registry struct {
	mu       sync.RWMutex
	conns    map[string]*tunnelConn
	reserved int
	wg       sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{conns: map[string]*tunnelConn{}}
}

// tryReserve claims a slot against max. Every successful reservation must
// be paired with register or release.
func (r *registry) tryReserve(max int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns)+r.reserved >= max {
		return false
	}
	r.reserved++
	return true
}

func (r *registry) release() {
	r.mu.Lock()
	if r.reserved > 0 {
		r.reserved--
	}
	r.mu.Unlock()
}

// register consumes a reservation, resolves the tunnel's label, and
// inserts c under it. A syntactically valid unused preferred label is
// honored; anything else gets a minted id re-rolled until free. c must
// not be shared with other goroutines yet.
func (r *registry) register(preferred string, c *tunnelConn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved > 0 {
		r.reserved--
	}

	label := ""
	if domain.ValidLabel(preferred) {
		if _, taken := r.conns[preferred]; !taken {
			label = preferred
		}
	}
	for label == "" {
		candidate := mintLabel()
		if _, taken := r.conns[candidate]; !taken {
			label = candidate
		}
	}

	c.id = label
	r.conns[label] = c
	return label
}

func (r *registry) lookup(label string) (*tunnelConn, bool) {
	r.mu.RLock()
	c, ok := r.conns[label]
	r.mu.RUnlock()
	return c, ok
}

// remove drops label only while c still owns it, so a late disconnect
// cannot evict a newer tunnel that reclaimed the same label.
func (r *registry) remove(label string, c *tunnelConn) {
	r.mu.Lock()
	if cur, ok := r.conns[label]; ok && cur == c {
		delete(r.conns, label)
	}
	r.mu.Unlock()
}

func (r *registry) count() int {
	r.mu.RLock()
	n := len(r.conns)
	r.mu.RUnlock()
	return n
}

func (r *registry) snapshot() []*tunnelConn {
	r.mu.RLock()
	conns := make([]*tunnelConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}
