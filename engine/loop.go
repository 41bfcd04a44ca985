// Package engine implements spec.md's Event Loop (component H): the single
// blocking entry point that drains wait-for-child events across the whole
// tracee set, classifies each stop, dispatches to the breakpoint table,
// syscall dispatcher, or syscall injector, and resumes the tracee in the
// resume mode the stop calls for. Everything here runs on one goroutine,
// by design: spec.md section 5 requires it, since the underlying tracing
// API is tied to the tracer's thread identity.
package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/breakpoint"
	"github.com/ptracelab/tracewright/inject"
	"github.com/ptracelab/tracewright/logflags"
	"github.com/ptracelab/tracewright/procio"
	"github.com/ptracelab/tracewright/syscalltrace"
	"github.com/ptracelab/tracewright/tracee"
	"github.com/ptracelab/tracewright/tracerr"
)

// Diagnostic is one tracee-scoped error the loop could not recover from
// in-place. Per spec.md section 7, such an error detaches that tracee and
// lets the rest keep running instead of returning the error from Run.
type Diagnostic struct {
	Pid int
	Err error
}

// Loop holds the engine's entire state: every live tracee, the shared
// registries handlers register against, and the policy flags spec.md
// section 6 names (trace_syscalls, follow_fork).
type Loop struct {
	backend Backend
	io      procio.IO
	arch    arch.Arch

	tracees map[int]*tracee.Tracee

	// Breakpoints is the shared registry every new tracee's Table adopts
	// from, per spec.md section 9's split between "the handler registry
	// (shared)" and "per-tracee armed-state (owned by the Tracee)."
	Breakpoints *breakpoint.Registry
	Syscalls    *syscalltrace.Dispatcher

	TraceSyscalls bool
	FollowFork    bool

	ignoredSignals map[int]bool

	// Diagnostics reports tracee-scoped failures per spec.md section 7;
	// buffered so a slow or absent reader never blocks the loop.
	Diagnostics chan Diagnostic

	stopRequested bool

	log *logrus.Entry
}

// New constructs a Loop. backend drives the OS; io is the memory/register
// seam breakpoint install/restore and injection use; a is the target's
// architecture traits.
func New(backend Backend, io procio.IO, a arch.Arch, log *logrus.Entry) *Loop {
	if log == nil {
		log = logflags.EngineLogger()
	}
	return &Loop{
		backend:        backend,
		io:             io,
		arch:           a,
		tracees:        make(map[int]*tracee.Tracee),
		Breakpoints:    breakpoint.NewRegistry(),
		Syscalls:       syscalltrace.NewDispatcher(),
		ignoredSignals: make(map[int]bool),
		Diagnostics:    make(chan Diagnostic, 16),
		log:            log,
	}
}

// AddTracee registers pid as a newly attached or spawned tracee, adopts
// every currently registered breakpoint spec into its table, seeds its
// module map from the OS, and issues the first resume. The tracee arrives
// here parked in the ptrace-stop that attach/exec leaves it in (spec.md
// section 5: the caller has already consumed that bootstrap stop and set
// ptrace options but never continued it), so without this resume the next
// backend.Wait() in the event loop would block forever waiting for a stop
// nothing can ever produce.
func (l *Loop) AddTracee(pid int, threadGroupID int, isThread bool) *tracee.Tracee {
	t := tracee.New(pid, l.arch, threadGroupID, isThread)
	if !isThread {
		t.Breakpoints.Adopt(l.Breakpoints.All())
		l.reloadModules(t)
	}
	l.tracees[pid] = t
	l.resume(t)
	return t
}

// Tracees returns the number of currently live tracees, for callers that
// want to observe progress without reaching into the loop's internals.
func (l *Loop) Tracees() int { return len(l.tracees) }

// Lookup returns the Tracee tracked under pid, if any.
func (l *Loop) Lookup(pid int) (*tracee.Tracee, bool) {
	t, ok := l.tracees[pid]
	return t, ok
}

// Inject enqueues inj on pid's injection queue, per spec.md section 6's
// inject_syscall(pid, SyscallInjection).
func (l *Loop) Inject(pid int, inj *inject.Injection) error {
	t, ok := l.tracees[pid]
	if !ok {
		return tracerr.NoSuchProcess{Pid: pid}
	}
	t.Injections.Enqueue(inj)
	return nil
}

// Detach stops tracing pid, optionally killing it first, and forgets it.
func (l *Loop) Detach(pid int, kill bool) error {
	if _, ok := l.tracees[pid]; !ok {
		return tracerr.NoSuchProcess{Pid: pid}
	}
	err := l.backend.Detach(pid, kill)
	delete(l.tracees, pid)
	return err
}

// Halt asynchronously interrupts a free-running pid; the loop observes it
// as an ordinary signal stop on its next iteration.
func (l *Loop) Halt(pid int) error { return l.backend.Halt(pid) }

// IgnoreSignal marks sig as filtered: SignalDelivered stops for it resume
// with signal 0 instead of passing it back to the tracee.
func (l *Loop) IgnoreSignal(sig int) { l.ignoredSignals[sig] = true }

// PassSignal reverses IgnoreSignal.
func (l *Loop) PassSignal(sig int) { delete(l.ignoredSignals, sig) }

// Stop requests the loop exit after the in-flight iteration finishes, the
// "handler returns a stop-looping decision" cancellation spec.md section 5
// describes.
func (l *Loop) Stop() { l.stopRequested = true }

// Run blocks until every tracee has exited or Stop has been called, per
// spec.md section 6's event_loop() contract.
func (l *Loop) Run() error {
	for len(l.tracees) > 0 && !l.stopRequested {
		if err := l.step(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) step() error {
	ev, err := l.backend.Wait()
	if err != nil {
		return err
	}
	t, ok := l.tracees[ev.Pid]
	if !ok {
		// A stop for a pid the loop no longer tracks (e.g. a race between
		// a detach and an in-flight wakeup); nothing to dispatch it to.
		return nil
	}

	switch ev.Kind {
	case StopExited:
		t.StopReason = tracee.StopReason{Kind: tracee.StopExited, ExitCode: ev.ExitStatus}
		delete(l.tracees, t.Pid)
	case StopKilled:
		t.StopReason = tracee.StopReason{Kind: tracee.StopKilled, Signal: ev.Signal}
		delete(l.tracees, t.Pid)
	case StopForkChild, StopCloneChild:
		l.handleForkClone(t, ev)
	case StopExec:
		l.handleExec(t)
	case StopSyscallBoundary:
		l.handleSyscall(t)
	case StopTrap:
		l.handleTrap(t)
	case StopSignal:
		l.handleSignal(t, ev.Signal)
	}
	return nil
}

func (l *Loop) handleExec(t *tracee.Tracee) {
	t.StopReason = tracee.StopReason{Kind: tracee.StopExec}
	t.Breakpoints.MarkUnresolvedAll()
	l.reloadModules(t)
	t.SyscallPhase.Resync()
	l.resume(t)
}

func (l *Loop) reloadModules(t *tracee.Tracee) {
	bases, err := l.backend.ReadModules(t.Pid)
	if err != nil {
		l.log.Debugf("pid %d: reading module map: %v", t.Pid, err)
		return
	}
	t.Mods.Reload(bases)
	for _, armed := range t.Breakpoints.TryResolve(t.Mods) {
		if err := t.Breakpoints.Install(l.io, l.arch, armed); err != nil {
			l.reportFatal(t, err)
			return
		}
	}
}

func (l *Loop) handleForkClone(parent *tracee.Tracee, ev StopEvent) {
	isThread := ev.Kind == StopCloneChild
	kind := tracee.StopForkChild
	if isThread {
		kind = tracee.StopCloneChild
	}
	parent.StopReason = tracee.StopReason{Kind: kind, NewPid: ev.NewPid}

	if l.FollowFork && ev.NewPid != 0 {
		child := tracee.New(ev.NewPid, l.arch, parent.ThreadGroupID, isThread)
		if isThread {
			// A clone-created thread shares the owning process's address
			// space: its code image (and thus breakpoint install state) and
			// module map are the same as the parent's, not a copy.
			child.Mods = parent.Mods
			child.Breakpoints = parent.Breakpoints
		} else {
			l.reloadModules(child)
			// The forked child's code image is a byte-for-byte copy of the
			// parent's, trap and all: give it the same armed/installed state
			// instead of re-resolving and re-installing from scratch.
			child.Breakpoints.AdoptInstalled(parent.Breakpoints)
			child.Breakpoints.Adopt(l.Breakpoints.All())
			if parent.HasPendingRestore {
				// spec.md 4.D tie-break: a fork landing mid-restoration
				// copies the still-removed trap; the child must also
				// single-step past it before it can run free.
				child.HasPendingRestore = true
				child.PendingRestoration = parent.PendingRestoration
			}
		}
		l.tracees[child.Pid] = child
		l.resume(child)
	}
	l.resume(parent)
}

func (l *Loop) handleSyscall(t *tracee.Tracee) {
	regs, err := l.io.GetRegs(t.Pid)
	if err != nil {
		l.reportFatal(t, tracerr.RegisterIOFailed{Pid: t.Pid, Err: err})
		return
	}
	id := l.arch.SyscallNum(regs)

	if active := t.Injections.Active(); active != nil {
		l.advanceInjection(t, id)
		return
	}

	tag := t.SyscallPhase.Advance(id)
	switch tag {
	case syscalltrace.Enter:
		t.StopReason = tracee.StopReason{Kind: tracee.StopSyscallEnter}
		l.guard(t.Pid, "syscall enter", func() { l.Syscalls.DispatchEnter(l.arch, regs) })
	case syscalltrace.Exit:
		t.StopReason = tracee.StopReason{Kind: tracee.StopSyscallExit}
		l.guard(t.Pid, "syscall exit", func() {
			l.Syscalls.DispatchExit(l.arch, regs, t.SyscallPhase.LastSyscallID())
		})
	}
	if err := l.io.SetRegs(t.Pid, regs); err != nil {
		l.reportFatal(t, tracerr.RegisterIOFailed{Pid: t.Pid, Err: err})
		return
	}

	safe := tag == syscalltrace.Exit
	l.tryActivateInjection(t, safe)
	l.resume(t)
}

// advanceInjection routes a syscall-stop that belongs to the active
// injection's own synthetic enter/exit pair. Per spec.md 4.F's invariant,
// these two stops never reach the user-visible syscall dispatcher.
func (l *Loop) advanceInjection(t *tracee.Tracee, id uint64) {
	switch t.SyscallPhase.Advance(id) {
	case syscalltrace.Enter:
		t.StopReason = tracee.StopReason{Kind: tracee.StopSyscallEnter}
		t.Injections.AdvanceEnter()
		l.resume(t)
	case syscalltrace.Exit:
		t.StopReason = tracee.StopReason{Kind: tracee.StopSyscallExit}
		if err := t.Injections.AdvanceExit(l.io, l.io, l.arch, t.Pid); err != nil {
			l.reportFatal(t, err)
			return
		}
		l.tryActivateInjection(t, false)
		l.resume(t)
	}
}

func (l *Loop) tryActivateInjection(t *tracee.Tracee, safe bool) {
	if !t.Injections.HasWork() || t.Injections.Active() != nil {
		return
	}
	started, err := t.Injections.TryActivate(l.io, l.io, l.arch, t.Pid, safe)
	if err != nil {
		if _, notSafe := err.(tracerr.InjectionNotSafe); notSafe {
			return // left queued; retried at the tracee's next safe stop
		}
		l.reportFatal(t, err)
		return
	}
	if started {
		// The injector's own syscall stops consume a native enter/exit
		// pair the phase tracker never observed as such; resync so the
		// next real syscall-stop is treated as a fresh enter (spec.md
		// 4.E).
		t.SyscallPhase.Resync()
	}
}

func (l *Loop) handleTrap(t *tracee.Tracee) {
	if t.HasPendingRestore {
		l.completeRestoration(t)
		return
	}

	regs, err := l.io.GetRegs(t.Pid)
	if err != nil {
		l.reportFatal(t, tracerr.RegisterIOFailed{Pid: t.Pid, Err: err})
		return
	}
	addr := l.arch.PCAfterBreak(l.arch.PC(regs))

	armed, ok := t.Breakpoints.Lookup(addr)
	if !ok {
		// A genuine trap the breakpoint table does not own (e.g. the
		// tracee executed its own debug trap instruction); pass it through
		// as an ordinary signal rather than silently dropping it.
		l.handleSignal(t, int(sigTrap))
		return
	}

	l.arch.SetPC(regs, addr)
	if err := l.io.SetRegs(t.Pid, regs); err != nil {
		l.reportFatal(t, tracerr.RegisterIOFailed{Pid: t.Pid, Err: err})
		return
	}
	t.StopReason = tracee.StopReason{Kind: tracee.StopBreakpointHit, Addr: addr}

	view := newTraceeView(l.io, t.Pid, regs)
	var hit breakpoint.HitResult
	var hitErr error
	completed := false
	l.guard(t.Pid, "breakpoint handler", func() {
		hit, hitErr = t.Breakpoints.OnHit(l.io, l.arch, armed, view)
		completed = true
	})
	if !completed {
		// The handler panicked before OnHit could uninstall the trap: finish
		// the hit as a Continue decision.
		hitErr = t.Breakpoints.Uninstall(l.io, armed)
		if armed.Spec.SingleShot {
			t.Breakpoints.Drop(armed)
		} else {
			hit.Restore = armed.Addr
		}
	}
	if hitErr != nil {
		l.reportFatal(t, hitErr)
		return
	}

	switch hit.Decision {
	case breakpoint.Kill:
		_ = l.backend.Detach(t.Pid, true)
		delete(l.tracees, t.Pid)
		return
	case breakpoint.Detach:
		_ = l.backend.Detach(t.Pid, false)
		delete(l.tracees, t.Pid)
		return
	}

	if hit.Restore != 0 {
		t.HasPendingRestore = true
		t.PendingRestoration = hit.Restore
		if err := l.backend.SingleStep(t.Pid, 0); err != nil {
			l.reportFatal(t, tracerr.RegisterIOFailed{Pid: t.Pid, Err: err})
		}
		return
	}
	l.tryActivateInjection(t, true)
	l.resume(t)
}

func (l *Loop) completeRestoration(t *tracee.Tracee) {
	addr := t.PendingRestoration
	t.HasPendingRestore = false
	t.PendingRestoration = 0

	if err := t.Breakpoints.Reinstall(l.io, l.arch, addr); err != nil {
		// spec.md section 7: a failed restore leaves the tracee's code
		// image in a known-bad state, fatal for that tracee.
		l.killFatal(t, err)
		return
	}

	l.tryActivateInjection(t, true)

	if t.HasDeferredSignal {
		sig := t.DeferredSignal
		t.HasDeferredSignal = false
		l.resumeWithSignal(t, sig)
		return
	}
	l.resume(t)
}

func (l *Loop) handleSignal(t *tracee.Tracee, sig int) {
	t.StopReason = tracee.StopReason{Kind: tracee.StopSignalDelivered, Signal: sig}

	if t.HasPendingRestore {
		// spec.md 4.D: a signal delivered between a breakpoint's PC rewind
		// and its restoring single-step must be deferred, not lost.
		t.DeferredSignal = sig
		t.HasDeferredSignal = true
		if err := l.backend.SingleStep(t.Pid, 0); err != nil {
			l.reportFatal(t, tracerr.RegisterIOFailed{Pid: t.Pid, Err: err})
		}
		return
	}

	if l.ignoredSignals[sig] {
		sig = 0
	}
	l.resumeWithSignal(t, sig)
}

func (l *Loop) resume(t *tracee.Tracee) { l.resumeWithSignal(t, 0) }

func (l *Loop) resumeWithSignal(t *tracee.Tracee, sig int) {
	var err error
	if l.TraceSyscalls {
		err = l.backend.SyscallContinue(t.Pid, sig)
	} else {
		err = l.backend.Continue(t.Pid, sig)
	}
	if err != nil {
		l.reportFatal(t, err)
	}
}

// guard runs fn, recovering a handler panic so it is logged and treated as
// a pass-through decision rather than crashing the event loop, per spec.md
// section 7.
func (l *Loop) guard(pid int, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("recovered handler panic: pid %d during %s: %v", pid, what, r)
		}
	}()
	fn()
}

func (l *Loop) reportFatal(t *tracee.Tracee, err error) {
	l.emitDiagnostic(t.Pid, err)
	_ = l.backend.Detach(t.Pid, false)
	delete(l.tracees, t.Pid)
}

func (l *Loop) killFatal(t *tracee.Tracee, err error) {
	l.emitDiagnostic(t.Pid, err)
	_ = l.backend.Detach(t.Pid, true)
	delete(l.tracees, t.Pid)
}

func (l *Loop) emitDiagnostic(pid int, err error) {
	select {
	case l.Diagnostics <- Diagnostic{Pid: pid, Err: err}:
	default:
		l.log.Errorf("diagnostics channel full, dropping: pid %d: %v", pid, err)
	}
}

// sigTrap is SIGTRAP's numeric value (5 on every Unix this engine
// targets), used only to label a pass-through of a bare trap the
// breakpoint table did not recognize.
const sigTrap = 5
