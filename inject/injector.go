// Package inject implements spec.md's Syscall Injector (component F): the
// save -> overwrite regs -> step -> restore -> callback protocol that
// stages a synthetic syscall inside a tracee.
package inject

import (
	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/logflags"
	"github.com/ptracelab/tracewright/procio"
	"github.com/ptracelab/tracewright/tracerr"
)

// Injection is one queued or in-flight synthetic syscall, per spec.md
// section 3's SyscallInjection.
type Injection struct {
	SyscallID  uint64
	Args       [arch.MaxSyscallArgs]uint64
	Ret        uint64
	OnComplete func(ret uint64, err error)

	stage          stage
	savedRegs      arch.Regs
	savedBytes     []byte
	siteAddr       uint64
	overwroteBytes bool
}

type stage int

const (
	stageQueued stage = iota
	stageAwaitingEnter
	stageAwaitingExit
)

// Queue is the per-tracee sequence of pending and in-flight injections.
// Spec.md's ordering guarantee ("multiple queued injections on the same
// tracee run sequentially") falls out of Queue only ever activating one
// Injection at a time.
type Queue struct {
	pending []*Injection
	active  *Injection
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue adds inj to the back of the queue.
func (q *Queue) Enqueue(inj *Injection) {
	q.pending = append(q.pending, inj)
}

// Active returns the injection currently mid-protocol, or nil.
func (q *Queue) Active() *Injection {
	return q.active
}

// HasWork reports whether there is a queued or active injection.
func (q *Queue) HasWork() bool {
	return q.active != nil || len(q.pending) > 0
}

// TryActivate starts the next queued injection if none is currently active.
// Per spec.md's Open Question (ii), the caller (the event loop) must only
// call TryActivate when the tracee is at a safe stop (SyscallExit or a
// breakpoint stop, never a bare SyscallEnter); TryActivate itself has no
// way to observe the stop kind, so it trusts the caller's safe argument and
// returns tracerr.InjectionNotSafe if safe is false, leaving the injection
// queued for the next attempt.
func (q *Queue) TryActivate(mem procio.Memory, regio procio.Registers, a arch.Arch, pid int, safe bool) (started bool, err error) {
	if q.active != nil || len(q.pending) == 0 {
		return false, nil
	}
	if !safe {
		return false, tracerr.InjectionNotSafe{Pid: pid, Reason: "tracee is mid native syscall"}
	}

	inj := q.pending[0]

	regs, err := regio.GetRegs(pid)
	if err != nil {
		return false, tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	saved, err := cloneRegs(a, regs)
	if err != nil {
		return false, err
	}
	inj.savedRegs = saved

	pc := a.PC(regs)
	probe := make([]byte, len(a.SyscallInstruction()))
	if _, err := mem.ReadMemory(pid, pc, probe); err != nil {
		return false, tracerr.MemoryFault{Pid: pid, Addr: pc, Len: len(probe), Err: err}
	}

	inj.siteAddr = pc
	if !a.SyscallBoundary(probe) {
		if _, err := mem.WriteMemory(pid, pc, a.SyscallInstruction()); err != nil {
			return false, tracerr.TrapWriteFailed{Pid: pid, Addr: pc, Err: err}
		}
		inj.savedBytes = probe
		inj.overwroteBytes = true
	}

	a.SetSyscallNum(regs, inj.SyscallID)
	for i := 0; i < arch.MaxSyscallArgs; i++ {
		a.SetSyscallArg(regs, i, inj.Args[i])
	}
	if err := regio.SetRegs(pid, regs); err != nil {
		return false, tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}

	inj.stage = stageAwaitingEnter
	q.pending = q.pending[1:]
	q.active = inj

	if logflags.Inject() {
		logflags.InjectLogger().Debugf("activated injection pid=%d syscall=%d", pid, inj.SyscallID)
	}
	return true, nil
}

// AdvanceEnter is called by the event loop when the active injection's own
// synthetic SyscallEnter stop occurs. Per spec.md 4.F's invariant, this
// stop never reaches the user-visible syscall dispatcher.
func (q *Queue) AdvanceEnter() {
	if q.active == nil {
		return
	}
	q.active.stage = stageAwaitingExit
}

// AdvanceExit is called by the event loop when the active injection's
// synthetic SyscallExit stop occurs. It reads the return value, restores
// the pre-injection register file and code bytes, fires OnComplete, and
// clears the active slot so the next queued injection (if any) can be
// activated on a subsequent safe stop.
func (q *Queue) AdvanceExit(mem procio.Memory, regio procio.Registers, a arch.Arch, pid int) error {
	inj := q.active
	if inj == nil || inj.stage != stageAwaitingExit {
		return nil
	}

	regs, err := regio.GetRegs(pid)
	if err != nil {
		q.finish(inj, 0, tracerr.RegisterIOFailed{Pid: pid, Err: err})
		return err
	}
	ret := a.SyscallReturn(regs)

	if inj.overwroteBytes {
		if _, err := mem.WriteMemory(pid, inj.siteAddr, inj.savedBytes); err != nil {
			werr := tracerr.TrapWriteFailed{Pid: pid, Addr: inj.siteAddr, Err: err}
			q.finish(inj, ret, werr)
			return werr
		}
	}
	if err := regio.SetRegs(pid, inj.savedRegs); err != nil {
		rerr := tracerr.RegisterIOFailed{Pid: pid, Err: err}
		q.finish(inj, ret, rerr)
		return rerr
	}

	q.finish(inj, ret, nil)
	return nil
}

func (q *Queue) finish(inj *Injection, ret uint64, err error) {
	inj.Ret = ret
	q.active = nil
	if inj.OnComplete != nil {
		inj.OnComplete(ret, err)
	}
	if logflags.Inject() {
		logflags.InjectLogger().Debugf("completed injection syscall=%d ret=%#x err=%v", inj.SyscallID, ret, err)
	}
}

// cloneRegs takes a defensive copy of a register snapshot so later mutation
// of regs (writing the synthetic syscall id/args into it) does not corrupt
// the pre-injection state that must eventually be restored bit-for-bit.
func cloneRegs(a arch.Arch, regs arch.Regs) (arch.Regs, error) {
	_ = a
	if c, ok := regs.(interface{ Clone() arch.Regs }); ok {
		return c.Clone(), nil
	}
	return regs, nil
}
