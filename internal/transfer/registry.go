package transfer

import (
	"sort"
	"sync"

	"github.com/exposerver/exposerver/internal/ident"
)

// Registry maps identifiers to cancelable transfers. A record is present
// exactly while it can still be aborted. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[ident.Identifier]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ident.Identifier]*Record)}
}

// Register inserts or overwrites the entry for id.
func (r *Registry) Register(id ident.Identifier, rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = rec
}

// Cancel aborts the handle registered for id. The entry stays until the
// transfer's cancellation event releases it. Returns false when there is
// nothing to abort.
func (r *Registry) Cancel(id ident.Identifier) bool {
	r.mu.RLock()
	rec := r.entries[id]
	r.mu.RUnlock()

	if rec == nil {
		return false
	}
	return rec.abort()
}

// Unregister removes the entry for id; no-op if absent.
func (r *Registry) Unregister(id ident.Identifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Release removes the entry for id only if it still belongs to ticket, so
// a replaced transfer finishing late cannot evict its successor.
func (r *Registry) Release(id ident.Identifier, ticket Ticket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.entries[id]
	if !ok || rec.Ticket != ticket {
		return false
	}
	delete(r.entries, id)
	return true
}

// Get returns the record registered for id.
func (r *Registry) Get(id ident.Identifier) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entries[id]
	return rec, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id ident.Identifier) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of cancelable transfers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []ident.Identifier {
	r.mu.RLock()
	ids := make([]ident.Identifier, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
