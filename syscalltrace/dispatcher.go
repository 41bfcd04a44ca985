// Package syscalltrace implements spec.md's Syscall Dispatcher (component
// E): per-tracee enter/exit phase tracking and routing to handlers
// registered by syscall id.
package syscalltrace

import (
	"sync"

	"github.com/ptracelab/tracewright/arch"
)

// Phase is a tracee's position within one syscall's enter/exit pair.
type Phase int

const (
	Outside Phase = iota
	InsideKernel
)

// Tag distinguishes an enter stop from an exit stop in a TraceData
// snapshot.
type Tag int

const (
	Enter Tag = iota
	Exit
)

// TraceData is the snapshot passed to syscall handlers, per spec.md
// section 3: syscall id, up to six argument registers, a return value
// (valid only on Exit), and the enter/exit tag. Mutations a handler makes
// through SetArg and SetRet are written back to the tracee's registers
// before resumption; assigning to Args or Ret directly is not.
type TraceData struct {
	Tag       Tag
	SyscallID uint64
	Args      [arch.MaxSyscallArgs]uint64
	Ret       uint64

	argsDirty bool
	retDirty  bool
}

// SetArg mutates argument slot n and marks it for write-back.
func (d *TraceData) SetArg(n int, v uint64) {
	if n < 0 || n >= len(d.Args) {
		return
	}
	d.Args[n] = v
	d.argsDirty = true
}

// SetRet mutates the return value and marks it for write-back. Only
// meaningful when Tag == Exit.
func (d *TraceData) SetRet(v uint64) {
	d.Ret = v
	d.retDirty = true
}

// Handler receives syscall enter/exit events for the syscall ids it was
// registered under. The dispatcher does not use the bool either callback
// returns: arguments changed with SetArg, and on exit a return value set
// with SetRet, are written back whether the callback returns true or
// false, and returning true does not suppress the syscall.
type Handler interface {
	OnEnter(d *TraceData) bool
	OnExit(d *TraceData) bool
}

// HandlerFuncs adapts two plain functions to the Handler interface, the
// common case of a caller that only needs one of OnEnter/OnExit.
type HandlerFuncs struct {
	Enter func(d *TraceData) bool
	Exit  func(d *TraceData) bool
}

func (h HandlerFuncs) OnEnter(d *TraceData) bool {
	if h.Enter == nil {
		return false
	}
	return h.Enter(d)
}

func (h HandlerFuncs) OnExit(d *TraceData) bool {
	if h.Exit == nil {
		return false
	}
	return h.Exit(d)
}

// Dispatcher routes syscall stops to registered handlers. One Dispatcher is
// shared across every tracee; per-tracee phase state lives in
// syscalltrace.PhaseTracker, owned by each Tracee, since the same
// Dispatcher instance must serve many tracees concurrently-in-turn (spec.md
// section 5: single-threaded cooperative, but still one registry for every
// tracee).
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[uint64]Handler
}

// NewDispatcher returns an empty Dispatcher. Unregistered syscalls pass
// through untouched, per spec.md 4.E.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint64]Handler)}
}

// Register installs handler for syscallID. A second Register call for the
// same id replaces the previous handler.
func (d *Dispatcher) Register(syscallID uint64, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[syscallID] = handler
}

// Unregister removes any handler for syscallID.
func (d *Dispatcher) Unregister(syscallID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, syscallID)
}

func (d *Dispatcher) lookup(syscallID uint64) (Handler, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handlers[syscallID]
	return h, ok
}

// DispatchEnter builds a TraceData from regs via a, looks up a handler for
// the current syscall id, calls OnEnter if one is registered, and writes
// mutated arguments back to regs. It reports whether a handler ran.
func (d *Dispatcher) DispatchEnter(a arch.Arch, regs arch.Regs) (handled bool) {
	id := a.SyscallNum(regs)
	h, ok := d.lookup(id)
	if !ok {
		return false
	}
	data := &TraceData{Tag: Enter, SyscallID: id}
	for i := 0; i < arch.MaxSyscallArgs; i++ {
		data.Args[i] = a.SyscallArg(regs, i)
	}
	h.OnEnter(data)
	if data.argsDirty {
		for i := 0; i < arch.MaxSyscallArgs; i++ {
			a.SetSyscallArg(regs, i, data.Args[i])
		}
	}
	return true
}

// DispatchExit is DispatchEnter's exit-stop counterpart: it also reads the
// return-value register and writes it back if the handler mutated it.
func (d *Dispatcher) DispatchExit(a arch.Arch, regs arch.Regs, syscallID uint64) (handled bool) {
	h, ok := d.lookup(syscallID)
	if !ok {
		return false
	}
	data := &TraceData{Tag: Exit, SyscallID: syscallID, Ret: a.SyscallReturn(regs)}
	for i := 0; i < arch.MaxSyscallArgs; i++ {
		data.Args[i] = a.SyscallArg(regs, i)
	}
	h.OnExit(data)
	if data.retDirty {
		a.SetSyscallReturn(regs, data.Ret)
	}
	if data.argsDirty {
		for i := 0; i < arch.MaxSyscallArgs; i++ {
			a.SetSyscallArg(regs, i, data.Args[i])
		}
	}
	return true
}

// PhaseTracker is the per-tracee syscall-phase state spec.md 4.E
// describes: it flips on every syscall-stop, starting Outside. If the
// tracker's state is lost (e.g. after an injection steals a pair of
// syscall-stops), Resync forces the next stop to be treated as an Enter.
type PhaseTracker struct {
	phase           Phase
	lastSyscallID   uint64
}

// NewPhaseTracker returns a tracker starting in the Outside phase.
func NewPhaseTracker() *PhaseTracker {
	return &PhaseTracker{phase: Outside}
}

// Phase returns the tracker's current phase.
func (p *PhaseTracker) Phase() Phase { return p.phase }

// Advance flips the phase on a syscall-stop and returns the Tag the stop
// should be treated as (Enter when transitioning Outside->InsideKernel,
// Exit on the way back).
func (p *PhaseTracker) Advance(syscallID uint64) Tag {
	if p.phase == Outside {
		p.phase = InsideKernel
		p.lastSyscallID = syscallID
		return Enter
	}
	p.phase = Outside
	return Exit
}

// LastSyscallID returns the syscall id observed at the most recent Enter,
// so an exit stop is dispatched under the id its enter stop reported,
// whatever the syscall-number register holds by the time the exit stop is
// observed.
func (p *PhaseTracker) LastSyscallID() uint64 { return p.lastSyscallID }

// Resync forces the tracker back to Outside, so the next syscall-stop is
// treated as a fresh Enter. Used after a syscall injection, which consumes
// a native enter/exit pair without the tracker observing them (spec.md
// 4.E: "If a tracee's phase state is lost ... the event loop resynchronizes
// by assuming the next syscall-stop is an enter").
func (p *PhaseTracker) Resync() {
	p.phase = Outside
}
