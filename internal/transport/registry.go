package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sshvfs/sshvfs/pkg/sfmetrics"
)

// Registry is the process-wide map from endpoint to Transport. Lookup,
// liveness validation and eviction happen under a single mutex; dialing a
// freshly-constructed Transport happens outside the lock, so a slow
// connect to one endpoint never blocks lookups for others.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Transport
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{entries: make(map[string]*Transport), logger: logger}
}

// GetOrCreate returns the Transport for params.Endpoint, reusing a live
// entry or constructing and registering a new one. The returned Transport
// may not yet be connected; callers must check IsConnected and call
// Connect themselves. A Transport evicted from the registry after this
// call returns is unaffected: the caller's reference keeps it alive for as
// long as it is used, with no manual refcounting required.
func (r *Registry) GetOrCreate(params ConnectionParameters) *Transport {
	key := params.Endpoint.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.entries[key]; ok {
		if t.IsConnected() && t.ValidateConnection() {
			return t
		}
		r.logger.Debug("evicting stale transport", zap.String("endpoint", key))
		delete(r.entries, key)
		sfmetrics.ActiveTransports.Dec()
	}

	t := NewTransport(params, r.logger)
	r.entries[key] = t
	sfmetrics.ActiveTransports.Inc()
	return t
}

// Remove evicts the entry for endpoint key if it is still the given
// Transport. It does not disconnect it; callers holding a reference may
// continue to use it.
func (r *Registry) Remove(key string, t *Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[key]; ok && cur == t {
		delete(r.entries, key)
		sfmetrics.ActiveTransports.Dec()
	}
}

// Len reports how many entries the registry currently holds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
