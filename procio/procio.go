// Package procio defines the narrow interfaces the engine's components
// program against for memory and register I/O (spec.md component B),
// without depending on the OS-specific backend that implements them. This
// mirrors the teacher's pkg/proc.Process/Thread interfaces being satisfied
// by pkg/proc/native's concrete types: the higher-level packages (arch
// aside) never import native directly, native is wired in once by the
// debugger package.
package procio

import "github.com/ptracelab/tracewright/arch"

// Memory reads and writes a tracee's address space. All operations require
// the tracee to be stopped; an implementation must return tracerr.NotStopped
// otherwise.
type Memory interface {
	ReadMemory(pid int, addr uint64, data []byte) (int, error)
	WriteMemory(pid int, addr uint64, data []byte) (int, error)
}

// Registers gets and sets a tracee's full register file as a single opaque
// snapshot, sized for the tracee's architecture.
type Registers interface {
	GetRegs(pid int) (arch.Regs, error)
	SetRegs(pid int, regs arch.Regs) error
}

// IO bundles Memory and Registers, the full surface component B exposes to
// every other component.
type IO interface {
	Memory
	Registers
}
