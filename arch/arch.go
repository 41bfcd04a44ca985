// Package arch isolates every ISA-specific constant and register accessor
// the tracee control engine needs. Adding a new architecture means adding
// one more implementation of Arch; nothing else in the engine encodes ISA
// specifics.
package arch

// Regs is an opaque, architecture-sized block of general purpose register
// state as returned by the native backend's register read. Only the Arch
// implementation for that ISA knows its internal layout.
type Regs interface {
	// Raw returns the architecture's native register struct, for passing
	// straight through to the native backend's set-registers call.
	Raw() any
}

// Arch is the per-ISA trait bundle described in spec.md 4.A.
type Arch interface {
	// Name identifies the architecture, e.g. "amd64", "arm64", "arm".
	Name() string

	// PtrSize is the pointer width in bytes.
	PtrSize() int

	// BreakpointInstruction returns the trap instruction bytes software
	// breakpoints overwrite code with.
	BreakpointInstruction() []byte

	// BreakpointSize is len(BreakpointInstruction()); also the number of
	// original bytes a Breakpoint record must save.
	BreakpointSize() int

	// BreakInstrMovesPC reports whether executing the trap instruction
	// advances the program counter past it (true on x86 and classic ARM
	// software traps) or leaves it pointing at the trap itself (true on
	// ARM64's BRK). PCAfterBreak uses this to compute the rewind.
	BreakInstrMovesPC() bool

	// PCAfterBreak returns the instruction-pointer value the tracee should
	// be rewound to after hitting a software breakpoint trap, given the PC
	// the OS reported at the trap stop.
	PCAfterBreak(trapPC uint64) uint64

	// SyscallInstruction returns the bytes of a bare syscall-entry
	// instruction for this ISA (used by the injector to scribble a
	// synthetic syscall at the current PC).
	SyscallInstruction() []byte

	// SyscallBoundary reports whether mem, read starting at the tracee's
	// current PC, already begins with a syscall-entry instruction. The
	// injector (spec.md 4.F step 3) uses this to skip overwriting code that
	// is already a valid syscall boundary.
	SyscallBoundary(mem []byte) bool

	// PC / SetPC read and write the instruction pointer in a register
	// snapshot.
	PC(regs Regs) uint64
	SetPC(regs Regs, pc uint64)

	// SP reads the stack pointer.
	SP(regs Regs) uint64

	// SyscallNum / SetSyscallNum read and write the syscall-number
	// register.
	SyscallNum(regs Regs) uint64
	SetSyscallNum(regs Regs, num uint64)

	// SyscallArg / SetSyscallArg read and write syscall argument slots
	// 0..5.
	SyscallArg(regs Regs, n int) uint64
	SetSyscallArg(regs Regs, n int, v uint64)

	// SyscallReturn / SetSyscallReturn read and write the syscall return
	// value register (valid only once the kernel has produced a result, on
	// the exit stop).
	SyscallReturn(regs Regs) uint64
	SetSyscallReturn(regs Regs, v uint64)
}

// MaxSyscallArgs is the number of argument slots spec.md's SyscallTraceData
// and SyscallInjection carry (0..5).
const MaxSyscallArgs = 6
