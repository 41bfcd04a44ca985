package arch

import "golang.org/x/arch/x86/x86asm"

// AMD64Regs mirrors the Linux kernel's x86_64 `user_regs_struct` layout so
// the native backend can fill it field-by-field from a ptrace GETREGS call
// without either package knowing the other's OS-specific register type.
type AMD64Regs struct {
	R15, R14, R13, R12   uint64
	Rbp, Rbx             uint64
	R11, R10, R9, R8     uint64
	Rax, Rcx, Rdx        uint64
	Rsi, Rdi             uint64
	OrigRax              uint64
	Rip                  uint64
	Cs                   uint64
	Eflags               uint64
	Rsp                  uint64
	Ss                   uint64
	FsBase, GsBase       uint64
	Ds, Es, Fs, Gs       uint64
}

func (r *AMD64Regs) Raw() any { return r }

// Clone returns a defensive copy, used by the syscall injector to take a
// pre-injection snapshot that later mutation of the live register file
// cannot corrupt.
func (r *AMD64Regs) Clone() Regs {
	cp := *r
	return &cp
}

var amd64BreakInstruction = []byte{0xCC} // INT3
var amd64SyscallInstruction = []byte{0x0F, 0x05}

// AMD64 implements Arch for the x86_64 instruction set.
type AMD64 struct{}

func (AMD64) Name() string                    { return "amd64" }
func (AMD64) PtrSize() int                    { return 8 }
func (AMD64) BreakpointInstruction() []byte   { return amd64BreakInstruction }
func (AMD64) BreakpointSize() int             { return len(amd64BreakInstruction) }
func (AMD64) BreakInstrMovesPC() bool         { return true }
func (AMD64) SyscallInstruction() []byte      { return amd64SyscallInstruction }

// PCAfterBreak rewinds RIP by the trap instruction's length: on x86 the
// INT3 trap leaves RIP pointing one byte past the instruction that faulted.
func (a AMD64) PCAfterBreak(trapPC uint64) uint64 {
	return trapPC - uint64(a.BreakpointSize())
}

func (AMD64) PC(regs Regs) uint64     { return regs.Raw().(*AMD64Regs).Rip }
func (AMD64) SetPC(regs Regs, pc uint64) { regs.Raw().(*AMD64Regs).Rip = pc }
func (AMD64) SP(regs Regs) uint64     { return regs.Raw().(*AMD64Regs).Rsp }

// SyscallNum reads Orig_rax, the register the kernel populates with the
// syscall number on syscall-enter (Rax is clobbered with the return value by
// syscall-exit, so Orig_rax is the only field that is stable across both
// stops).
func (AMD64) SyscallNum(regs Regs) uint64 {
	return regs.Raw().(*AMD64Regs).OrigRax
}

func (AMD64) SetSyscallNum(regs Regs, num uint64) {
	r := regs.Raw().(*AMD64Regs)
	r.OrigRax = num
	r.Rax = num
}

func (AMD64) SyscallArg(regs Regs, n int) uint64 {
	r := regs.Raw().(*AMD64Regs)
	switch n {
	case 0:
		return r.Rdi
	case 1:
		return r.Rsi
	case 2:
		return r.Rdx
	case 3:
		return r.R10
	case 4:
		return r.R8
	case 5:
		return r.R9
	}
	return 0
}

func (AMD64) SetSyscallArg(regs Regs, n int, v uint64) {
	r := regs.Raw().(*AMD64Regs)
	switch n {
	case 0:
		r.Rdi = v
	case 1:
		r.Rsi = v
	case 2:
		r.Rdx = v
	case 3:
		r.R10 = v
	case 4:
		r.R8 = v
	case 5:
		r.R9 = v
	}
}

func (AMD64) SyscallReturn(regs Regs) uint64     { return regs.Raw().(*AMD64Regs).Rax }
func (AMD64) SetSyscallReturn(regs Regs, v uint64) { regs.Raw().(*AMD64Regs).Rax = v }

// SyscallBoundary decodes the bytes at the tracee's current instruction
// pointer and reports whether they are already a `syscall` instruction, so
// the injector (spec.md 4.F step 3) does not need to overwrite code that is
// already a valid syscall entry point (e.g. a breakpoint placed on a libc
// syscall wrapper stub).
func (AMD64) SyscallBoundary(mem []byte) bool {
	inst, err := x86asm.Decode(mem, 64)
	if err != nil {
		return false
	}
	return inst.Op == x86asm.SYSCALL
}
