// Package debugger is the top-level facade implementing spec.md section
// 6's programming surface: the Debugger type user code constructs,
// attaches or spawns tracees through, registers breakpoint/syscall/
// injection hooks on, and finally drives the event loop with. It is the
// one place every other component is wired together, mirroring
// service/debugger/debugger.go's role in the teacher — including holding
// its own *logrus.Entry rather than reaching for a package-global logger
// (SPEC_FULL section 2.1).
package debugger

import (
	"github.com/cosiner/argv"
	"github.com/sirupsen/logrus"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/breakpoint"
	"github.com/ptracelab/tracewright/config"
	"github.com/ptracelab/tracewright/coverage"
	"github.com/ptracelab/tracewright/engine"
	"github.com/ptracelab/tracewright/inject"
	"github.com/ptracelab/tracewright/logflags"
	"github.com/ptracelab/tracewright/native"
	"github.com/ptracelab/tracewright/syscalltrace"
	"github.com/ptracelab/tracewright/tracee"
	"github.com/ptracelab/tracewright/tracerr"
)

// Debugger is the engine's entry point: one instance per debugging
// session, targeting one instruction set architecture.
type Debugger struct {
	target  arch.TargetDescription
	a       arch.Arch
	backend native.LinuxBackend
	loop    *engine.Loop
	cfg     *config.Config
	log     *logrus.Entry

	coverage coverage.Sink

	nextGroupID int
}

// New constructs a Debugger for the given target architecture, per
// spec.md section 6's Debugger(target_description).
func New(target arch.TargetDescription) (*Debugger, error) {
	a, err := arch.For(target)
	if err != nil {
		return nil, err
	}
	log := logflags.EngineLogger()
	backend := native.LinuxBackend{}
	return &Debugger{
		target:   target,
		a:        a,
		backend:  backend,
		loop:     engine.New(backend, backend, a, log),
		log:      log,
		coverage: coverage.NopSink{},
	}, nil
}

// LoadConfig loads syscall-name aliases and tracing defaults from path
// (SPEC_FULL section 2.2), applying TraceSyscalls/FollowFork defaults
// immediately.
func (d *Debugger) LoadConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	d.cfg = cfg
	d.loop.TraceSyscalls = cfg.TraceSyscalls
	d.loop.FollowFork = cfg.FollowFork
	return nil
}

// SyscallID resolves name to a numeric syscall id for the debugger's own
// architecture via the loaded config's alias table. ok is false if no
// config was loaded, or name has no alias for this ISA.
func (d *Debugger) SyscallID(name string) (id uint64, ok bool) {
	if d.cfg == nil {
		return 0, false
	}
	return d.cfg.Lookup(string(d.target.ISA), name)
}

// SetCoverageSink wires the external coverage sink breakpoint handlers may
// call into; the core never calls it implicitly (spec.md section 6:
// "Persisted state: None owned by the core"). Passing nil restores the
// no-op default.
func (d *Debugger) SetCoverageSink(sink coverage.Sink) {
	if sink == nil {
		sink = coverage.NopSink{}
	}
	d.coverage = sink
}

// CoverageSink returns the currently wired sink, for handlers constructed
// outside the Debugger to close over.
func (d *Debugger) CoverageSink() coverage.Sink { return d.coverage }

// Attach begins tracing an already-running process, per spec.md section 6.
func (d *Debugger) Attach(pid int) error {
	if err := native.Attach(pid); err != nil {
		return err
	}
	d.nextGroupID++
	d.loop.AddTracee(pid, d.nextGroupID, false)
	return nil
}

// Spawn forks and execs commandLine under trace and returns the new pid,
// per spec.md section 6's spawn(command_line). The command line is split
// shell-style via cosiner/argv, the same splitting the teacher's terminal
// "trace"/"restart" commands use, instead of a naive strings.Fields that
// cannot handle quoting.
func (d *Debugger) Spawn(commandLine string, foreground bool) (int, error) {
	parsed, err := argv.Argv(commandLine, nil, nil)
	if err != nil || len(parsed) == 0 || len(parsed[0]) == 0 {
		return 0, tracerr.SpawnFailed{Command: []string{commandLine}, Err: err}
	}
	pid, err := native.Spawn(parsed[0], foreground)
	if err != nil {
		return 0, err
	}
	d.nextGroupID++
	d.loop.AddTracee(pid, d.nextGroupID, false)
	return pid, nil
}

// TraceSyscalls enables or disables the syscall-continue resume flavor,
// per spec.md section 6.
func (d *Debugger) TraceSyscalls(on bool) { d.loop.TraceSyscalls = on }

// FollowFork controls whether fork/clone events auto-attach a new Tracee,
// per spec.md section 6.
func (d *Debugger) FollowFork(on bool) { d.loop.FollowFork = on }

// AddBreakpoint registers a new breakpoint at module+offset, per spec.md
// section 6. Per Open Question (i), a second registration at the same
// (module, offset) returns tracerr.BreakpointExists.
func (d *Debugger) AddBreakpoint(module string, offset uint64, handler breakpoint.Handler, singleShot bool) (*breakpoint.Spec, error) {
	return d.loop.Breakpoints.Add(module, offset, handler, singleShot)
}

// AddSyscallHandler registers handler for syscallID, per spec.md section
// 6.
func (d *Debugger) AddSyscallHandler(syscallID uint64, handler syscalltrace.Handler) {
	d.loop.Syscalls.Register(syscallID, handler)
}

// InjectSyscall enqueues a synthetic syscall on pid, per spec.md section 6.
func (d *Debugger) InjectSyscall(pid int, inj *inject.Injection) error {
	return d.loop.Inject(pid, inj)
}

// IgnoreSignal marks sig as filtered: the event loop resumes a tracee
// stopped by sig without passing it back.
func (d *Debugger) IgnoreSignal(sig int) { d.loop.IgnoreSignal(sig) }

// PassSignal reverses IgnoreSignal.
func (d *Debugger) PassSignal(sig int) { d.loop.PassSignal(sig) }

// RequestManualStop asynchronously interrupts a free-running pid from
// outside the event-loop goroutine (SPEC_FULL's supplemented Halt
// feature).
func (d *Debugger) RequestManualStop(pid int) error {
	return d.loop.Halt(pid)
}

// Detach stops tracing pid, optionally killing it (SPEC_FULL's
// supplemented Detach-with-kill feature).
func (d *Debugger) Detach(pid int, kill bool) error {
	return d.loop.Detach(pid, kill)
}

// Lookup returns the live Tracee tracked under pid, if any, for callers
// that need to inspect state the handler contracts don't otherwise expose.
func (d *Debugger) Lookup(pid int) (*tracee.Tracee, bool) {
	return d.loop.Lookup(pid)
}

// Tracees reports how many tracees are currently live.
func (d *Debugger) Tracees() int { return d.loop.Tracees() }

// Diagnostics reports tracee-scoped errors the loop recovered from by
// detaching that tracee, per spec.md section 7.
func (d *Debugger) Diagnostics() <-chan engine.Diagnostic {
	return d.loop.Diagnostics
}

// EventLoop blocks until no tracees remain or Stop is called, per spec.md
// section 6's event_loop().
func (d *Debugger) EventLoop() error {
	return d.loop.Run()
}

// Stop requests the event loop exit after its in-flight iteration.
func (d *Debugger) Stop() { d.loop.Stop() }
