// Package breakpoint implements spec.md's Breakpoint Table (component D):
// registration, lazy address resolution, trap install/restore, and the
// on_hit algorithm. Following the design notes in spec.md section 9, a
// breakpoint's definition (module, offset, handler, single-shot policy) is
// held in a shared Spec, while the "is it currently installed, and what
// bytes did it overwrite" state lives per-tracee in an Armed record — this
// is what makes fork inheritance (one Spec, two independent Armed records)
// work without the two tracees stepping on each other's saved bytes.
package breakpoint

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/logflags"
	"github.com/ptracelab/tracewright/module"
	"github.com/ptracelab/tracewright/procio"
	"github.com/ptracelab/tracewright/tracerr"
)

// Decision is what a breakpoint handler asks the event loop to do with the
// tracee after the handler returns.
type Decision int

const (
	Continue Decision = iota
	Detach
	Kill
)

// View is the read/write window into a tracee a breakpoint handler
// receives, per spec.md section 6. It never outlives the call to the
// handler.
type View interface {
	Pid() int
	Regs() arch.Regs
	SetRegs(arch.Regs)
	ReadMemory(addr uint64, len int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error
}

// Handler is invoked when its breakpoint fires.
type Handler func(t View) Decision

// Spec is the shared, immutable definition of a registered breakpoint.
type Spec struct {
	ID         int
	Module     string
	Offset     uint64
	Handler    Handler
	SingleShot bool
}

// Registry holds every Spec registered via add_breakpoint, independent of
// any one tracee. New tracees (attach, spawn, or fork-follow) adopt a copy
// of the current registry into their own Table.
type Registry struct {
	mu        sync.Mutex
	specs     []*Spec
	byKey     map[key]*Spec
	idCounter int
}

type key struct {
	module string
	offset uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[key]*Spec)}
}

// Add registers a new breakpoint at module+offset. Per spec.md's Open
// Question (i), registering a second breakpoint at the same (module,
// offset) is an error.
func (r *Registry) Add(mod string, offset uint64, handler Handler, singleShot bool) (*Spec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{mod, offset}
	if _, ok := r.byKey[k]; ok {
		return nil, tracerr.BreakpointExists{Module: mod, Offset: offset}
	}
	r.idCounter++
	spec := &Spec{ID: r.idCounter, Module: mod, Offset: offset, Handler: handler, SingleShot: singleShot}
	r.byKey[k] = spec
	r.specs = append(r.specs, spec)
	return spec, nil
}

// Remove drops spec from the registry so future tracees no longer adopt it.
// Tracees that already adopted it keep their Armed record until explicitly
// uninstalled.
func (r *Registry) Remove(spec *Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, key{spec.Module, spec.Offset})
	for i, s := range r.specs {
		if s == spec {
			r.specs = append(r.specs[:i], r.specs[i+1:]...)
			break
		}
	}
}

// All returns a snapshot of every currently registered Spec.
func (r *Registry) All() []*Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Armed is one tracee's mutable state for a Spec: whether the trap is
// currently written into the tracee's code, and if so what it overwrote.
// Invariant (spec.md 3): SavedBytes is non-empty iff Installed.
type Armed struct {
	Spec       *Spec
	Addr       uint64 // 0 until resolved
	Resolved   bool
	Installed  bool
	SavedBytes []byte
}

// Table is the per-tracee set of Armed records. One Table belongs to
// exactly one Tracee.
type Table struct {
	mu         sync.Mutex
	pid        int
	byAddr     map[uint64]*Armed
	unresolved []*Armed
	log        *logrus.Entry
}

// NewTable returns an empty Table for the tracee identified by pid.
func NewTable(pid int) *Table {
	return &Table{
		pid:    pid,
		byAddr: make(map[uint64]*Armed),
		log:    logflags.BreakpointLogger(),
	}
}

// Adopt creates an unresolved, uninstalled Armed record for every spec the
// table does not already track. Called when a Table is created (attach,
// spawn) and again on fork/clone so the child inherits the parent's
// breakpoint set (spec.md 4.D tie-breaks: installation state is per-tracee,
// each tracee carries its own saved bytes).
func (t *Table) Adopt(specs []*Spec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	have := make(map[*Spec]bool)
	for _, a := range t.byAddr {
		have[a.Spec] = true
	}
	for _, a := range t.unresolved {
		have[a.Spec] = true
	}
	for _, s := range specs {
		if have[s] {
			continue
		}
		t.unresolved = append(t.unresolved, &Armed{Spec: s})
	}
}

// AdoptInstalled is like Adopt, but used for fork/clone children that
// inherit an already-installed trap's exact byte state (the child's code
// image is a copy of the parent's, trap and all) instead of re-resolving
// and re-installing from scratch.
func (t *Table) AdoptInstalled(parent *Table) {
	parent.mu.Lock()
	armedCopies := make([]*Armed, 0, len(parent.byAddr))
	for _, a := range parent.byAddr {
		cp := *a
		cp.SavedBytes = append([]byte(nil), a.SavedBytes...)
		armedCopies = append(armedCopies, &cp)
	}
	parent.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range armedCopies {
		t.byAddr[a.Addr] = a
	}
}

// TryResolve attempts to resolve every pending Armed record's address
// against mods, moving newly-resolved records out of the unresolved set.
// Called lazily on first use and again on every Exec event (spec.md 4.C).
func (t *Table) TryResolve(mods *module.Map) []*Armed {
	t.mu.Lock()
	defer t.mu.Unlock()
	var resolved []*Armed
	remaining := t.unresolved[:0]
	for _, a := range t.unresolved {
		addr, err := mods.Resolve(a.Spec.Module, a.Spec.Offset)
		if err != nil {
			remaining = append(remaining, a)
			continue
		}
		a.Addr = addr
		a.Resolved = true
		t.byAddr[addr] = a
		resolved = append(resolved, a)
	}
	t.unresolved = remaining
	return resolved
}

// MarkUnresolvedAll moves every currently-resolved-but-not-yet-reinstalled
// record back to pending, e.g. after Exec invalidates the address space.
func (t *Table) MarkUnresolvedAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, a := range t.byAddr {
		a.Resolved = false
		a.Installed = false
		a.SavedBytes = nil
		delete(t.byAddr, addr)
		t.unresolved = append(t.unresolved, a)
	}
}

// Lookup returns the Armed record installed at addr, if any.
func (t *Table) Lookup(addr uint64) (*Armed, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byAddr[addr]
	return a, ok
}

// Install writes the trap instruction at a.Addr, saving the bytes it
// overwrites. Idempotent: installing an already-installed address is a
// no-op, per spec.md 4.D.
func (t *Table) Install(mem procio.Memory, a arch.Arch, armed *Armed) error {
	if armed.Installed {
		return nil
	}
	n := a.BreakpointSize()
	orig := make([]byte, n)
	if _, err := mem.ReadMemory(t.pid, armed.Addr, orig); err != nil {
		return tracerr.MemoryFault{Pid: t.pid, Addr: armed.Addr, Len: n, Err: err}
	}
	if _, err := mem.WriteMemory(t.pid, armed.Addr, a.BreakpointInstruction()); err != nil {
		return tracerr.TrapWriteFailed{Pid: t.pid, Addr: armed.Addr, Err: err}
	}
	armed.SavedBytes = orig
	armed.Installed = true
	if logflags.Breakpoint() {
		t.log.Debugf("installed trap at pid=%d addr=%#x", t.pid, armed.Addr)
	}
	return nil
}

// Uninstall writes armed's saved bytes back, restoring the original
// instruction.
func (t *Table) Uninstall(mem procio.Memory, armed *Armed) error {
	if !armed.Installed {
		return nil
	}
	if _, err := mem.WriteMemory(t.pid, armed.Addr, armed.SavedBytes); err != nil {
		return tracerr.TrapWriteFailed{Pid: t.pid, Addr: armed.Addr, Err: err}
	}
	armed.Installed = false
	armed.SavedBytes = nil
	return nil
}

// Drop removes armed from the table entirely, e.g. after a single-shot
// breakpoint fires.
func (t *Table) Drop(armed *Armed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byAddr, armed.Addr)
}

// HitResult reports what the event loop must do after OnHit runs.
type HitResult struct {
	Decision Decision
	// Restore is the address the caller must single-step past and
	// re-install the trap at, or 0 if no restoration is needed (the
	// breakpoint was single-shot and has been dropped).
	Restore uint64
}

// OnHit implements spec.md 4.D's on_hit algorithm: the caller has already
// rewound PC before constructing view; OnHit calls the handler, uninstalls
// the trap, then either drops the record (single-shot) or reports that the
// caller must single-step and re-arm it.
func (t *Table) OnHit(mem procio.Memory, a arch.Arch, armed *Armed, view View) (HitResult, error) {
	decision := armed.Spec.Handler(view)

	if err := t.Uninstall(mem, armed); err != nil {
		return HitResult{}, err
	}

	if armed.Spec.SingleShot {
		t.Drop(armed)
		return HitResult{Decision: decision, Restore: 0}, nil
	}
	return HitResult{Decision: decision, Restore: armed.Addr}, nil
}

// Reinstall re-arms a breakpoint after its restoring single-step has
// completed, per spec.md 4.D step 5 / the event loop's
// "single-step completion with PendingRestoration" row.
func (t *Table) Reinstall(mem procio.Memory, a arch.Arch, addr uint64) error {
	armed, ok := t.Lookup(addr)
	if !ok {
		return fmt.Errorf("breakpoint: no armed record at %#x to reinstall", addr)
	}
	return t.Install(mem, a, armed)
}
