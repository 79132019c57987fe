package fleet

import (
	"sync"

	"github.com/tpeyrard/hivefuzz/pkg/transport"
)

// Registry holds every client of the campaign, keyed by transport network
// id, and allocates the monotonic uids behind client string identifiers.
type Registry struct {
	mu      sync.RWMutex
	clients map[transport.NetID]*Client
	order   []*Client
	nextUID int
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[transport.NetID]*Client)}
}

// NewUID allocates the next client uid. Uids are unique for the lifetime
// of the broker process.
func (r *Registry) NewUID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid := r.nextUID
	r.nextUID++
	return uid
}

// Add registers a client under its network id.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.NetID] = c
	r.order = append(r.order, c)
}

// Get resolves a network id to a client, or nil when unknown.
func (r *Registry) Get(id transport.NetID) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[id]
}

// All returns every known client in connection order.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, len(r.order))
	copy(out, r.order)
	return out
}

// Others returns every client except the one given, in connection order.
func (r *Registry) Others(c *Client) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.order))
	for _, other := range r.order {
		if other.NetID != c.NetID {
			out = append(out, other)
		}
	}
	return out
}

// Running returns every client currently holding an assignment.
func (r *Registry) Running() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.order))
	for _, c := range r.order {
		if c.IsRunning() {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of known clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
