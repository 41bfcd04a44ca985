package engine

// StopKind classifies one OS-reported stop, independent of any particular
// tracing backend — the engine-facing counterpart of spec.md section 3's
// Tracee.StopReason, before the loop has attributed it to breakpoint,
// syscall, or lifecycle handling.
type StopKind int

const (
	// StopSignal is a signal delivered to the tracee that is not itself a
	// debug trap (e.g. SIGSEGV, SIGUSR1).
	StopSignal StopKind = iota
	// StopSyscallBoundary is a syscall-continue stop: either a syscall
	// enter or exit, disambiguated by the tracee's PhaseTracker.
	StopSyscallBoundary
	// StopTrap is a bare SIGTRAP: either a software breakpoint hit or the
	// completion of a restoring single-step, disambiguated by whether the
	// tracee has a PendingRestoration.
	StopTrap
	StopForkChild
	StopCloneChild
	StopExec
	StopExited
	StopKilled
)

// StopEvent is what a Backend reports for one wait-for-child wakeup.
type StopEvent struct {
	Pid        int
	Kind       StopKind
	Signal     int
	NewPid     int
	ExitStatus int
}

// Backend is the OS-facing seam component H (the event loop) is written
// against, per spec.md section 6: "the core consumes the host OS's
// process-tracing facility ... any OS with this capability set is
// portable." native.LinuxBackend is the only production implementation;
// tests substitute a fake to drive Loop.step without real ptrace.
type Backend interface {
	// Wait blocks for the next stop from any traced child.
	Wait() (StopEvent, error)
	Continue(pid, sig int) error
	SyscallContinue(pid, sig int) error
	SingleStep(pid, sig int) error
	Detach(pid int, kill bool) error
	// Halt asynchronously interrupts a free-running pid, per SPEC_FULL's
	// supplemented RequestManualStop feature.
	Halt(pid int) error
	// ReadModules returns pid's current module-name-to-load-base table,
	// the OS-specific half of spec.md 4.C's module resolution (on Linux,
	// /proc/<pid>/maps).
	ReadModules(pid int) (map[string]uint64, error)
}
