package approval

import (
	"sync"

	"github.com/agentdesk/actiongate/internal/pending"
)

type waiterKey struct {
	correlationID string
	requestedAt   int64
}

// Registry holds the in-process wake channels for suspended PreToolUse
// calls. The durable store decides who wins a resolution race; the
// registry only carries the winner's resolution back to the suspended
// goroutine. Take deletes before handing out the channel, so a key can
// be taken at most once.
type Registry struct {
	mu      sync.Mutex
	waiters map[waiterKey]chan pending.Resolution
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[waiterKey]chan pending.Resolution)}
}

// Register creates the wake channel for a key. The channel is buffered
// so the resolver never blocks on a waiter that already returned.
func (r *Registry) Register(correlationID string, requestedAt int64) <-chan pending.Resolution {
	ch := make(chan pending.Resolution, 1)
	r.mu.Lock()
	r.waiters[waiterKey{correlationID, requestedAt}] = ch
	r.mu.Unlock()
	return ch
}

// Take removes and returns the channel for a key. The second return is
// false when the key is unknown or was already taken.
func (r *Registry) Take(correlationID string, requestedAt int64) (chan<- pending.Resolution, bool) {
	key := waiterKey{correlationID, requestedAt}
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	return ch, ok
}

// Len reports how many waiters are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
