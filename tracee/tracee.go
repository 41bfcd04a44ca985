// Package tracee implements spec.md's Tracee State (component G): the
// per-process record every other component reads and mutates — pid,
// architecture traits, current stop reason, syscall phase, pending
// breakpoint restoration, and the per-tracee breakpoint table and module
// map whose separation is what makes fork/clone siblings not step on each
// other's installed-trap state (spec.md 4.D's tie-break).
package tracee

import (
	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/breakpoint"
	"github.com/ptracelab/tracewright/inject"
	"github.com/ptracelab/tracewright/module"
	"github.com/ptracelab/tracewright/syscalltrace"
)

// StopKind names one of spec.md section 3's StopReason variants.
type StopKind int

const (
	StopNone StopKind = iota
	StopSignalDelivered
	StopBreakpointHit
	StopSyscallEnter
	StopSyscallExit
	StopForkChild
	StopCloneChild
	StopExec
	StopExited
	StopKilled
)

// StopReason is spec.md section 3's tagged union, flattened into one
// struct: only the fields relevant to Kind are meaningful for any given
// value.
type StopReason struct {
	Kind     StopKind
	Signal   int
	Addr     uint64
	NewPid   int
	ExitCode int
}

// Tracee is a live, attached process or thread under control (spec.md
// section 3). Exactly one owner — the engine's Loop; handlers are handed a
// read/write view that never outlives the call.
type Tracee struct {
	Pid           int
	Arch          arch.Arch
	ThreadGroupID int
	// IsThread marks a clone-created thread sharing its owning process's
	// address space: Mods and Breakpoints are adopted by reference from
	// the parent rather than given their own copy, matching real Linux
	// clone()-vs-fork() semantics (SPEC_FULL's supplemented
	// thread-awareness feature).
	IsThread bool

	Mods         *module.Map
	Breakpoints  *breakpoint.Table
	Injections   *inject.Queue
	SyscallPhase *syscalltrace.PhaseTracker

	StopReason StopReason

	// HasPendingRestore/PendingRestoration mirror spec.md section 3's
	// optional PendingRestoration: the address the event loop must
	// single-step past and re-arm once the restoring step completes.
	HasPendingRestore  bool
	PendingRestoration uint64

	// HasDeferredSignal/DeferredSignal hold a signal that arrived between
	// a breakpoint's PC rewind and its restoring single-step, per spec.md
	// 4.D's tie-break: "must be deferred, not lost."
	HasDeferredSignal bool
	DeferredSignal    int
}

// New creates a Tracee for pid. For a process (spawned, attached, or
// fork-created) it allocates its own Mods and Breakpoints table; for a
// clone-created thread the caller wires Mods/Breakpoints to the owning
// process's instances after construction.
func New(pid int, a arch.Arch, threadGroupID int, isThread bool) *Tracee {
	t := &Tracee{
		Pid:           pid,
		Arch:          a,
		ThreadGroupID: threadGroupID,
		IsThread:      isThread,
		Injections:    inject.NewQueue(),
		SyscallPhase:  syscalltrace.NewPhaseTracker(),
	}
	if !isThread {
		t.Mods = module.New()
		t.Breakpoints = breakpoint.NewTable(pid)
	}
	return t
}
