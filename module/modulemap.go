// Package module implements spec.md's Module & Address Map (component C):
// per-tracee mapping from module name to load base, and lazy resolution of
// (module, offset) pairs to absolute addresses.
package module

import (
	"sync"

	"github.com/ptracelab/tracewright/tracerr"
)

// Map is one tracee's module-name-to-load-base table, plus the set of
// (module, offset) pairs callers have asked to resolve but which are not
// loaded yet. Resolution is retried lazily: on first use, and again every
// time Reload is called (spec.md's "re-tried on each Exec event").
type Map struct {
	mu      sync.Mutex
	bases   map[string]uint64
	pending map[pendingKey]struct{}
}

type pendingKey struct {
	module string
	offset uint64
}

// New returns an empty Map. Callers populate it via Reload before the first
// Resolve call; an empty Map resolves nothing.
func New() *Map {
	return &Map{
		bases:   make(map[string]uint64),
		pending: make(map[pendingKey]struct{}),
	}
}

// Reload replaces the module-to-base table wholesale, as happens on attach
// and on every Exec event (spec.md 4.C).
func (m *Map) Reload(bases map[string]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bases = make(map[string]uint64, len(bases))
	for k, v := range bases {
		m.bases[k] = v
	}
}

// Base returns the load address of module, if known.
func (m *Map) Base(module string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bases[module]
	return b, ok
}

// Resolve computes module's base + offset. If module is not currently
// loaded, the pair is recorded in the pending set and tracerr.Unresolved is
// returned; the caller (the Breakpoint Table) is expected to retry once
// Reload next runs, per spec.md 4.C: "A breakpoint with an unresolved
// address is held in a pending set and inserted as soon as the module
// loads."
func (m *Map) Resolve(module string, offset uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.bases[module]
	if !ok {
		m.pending[pendingKey{module, offset}] = struct{}{}
		return 0, tracerr.Unresolved{Module: module, Offset: offset}
	}
	delete(m.pending, pendingKey{module, offset})
	return base + offset, nil
}

// Pending returns a snapshot of every (module, offset) pair still awaiting
// resolution, for the caller to retry after a Reload.
func (m *Map) Pending() []struct {
	Module string
	Offset uint64
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]struct {
		Module string
		Offset uint64
	}, 0, len(m.pending))
	for k := range m.pending {
		out = append(out, struct {
			Module string
			Offset uint64
		}{k.module, k.offset})
	}
	return out
}
