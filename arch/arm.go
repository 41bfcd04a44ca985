package arch

import "bytes"

// ARMRegs mirrors Linux's 32-bit ARM `user_regs` (struct pt_regs) layout.
type ARMRegs struct {
	Regs [16]uint32 // R0..R12, Sp, Lr, Pc
	Cpsr uint32
	Orig_r0 uint32
}

func (r *ARMRegs) Raw() any { return r }

// Clone returns a defensive copy.
func (r *ARMRegs) Clone() Regs {
	cp := *r
	return &cp
}

// armBreakInstruction is an ARM-mode undefined instruction trap (UDF #16),
// the same encoding gdb and delve's arm_arch.go use as a software
// breakpoint on this ISA.
var armBreakInstruction = []byte{0xf0, 0x01, 0xf0, 0xe7}
var armSyscallInstruction = []byte{0x00, 0x00, 0x00, 0xef} // SVC #0

// ARM implements Arch for the 32-bit ARM instruction set.
type ARM struct{}

func (ARM) Name() string                  { return "arm" }
func (ARM) PtrSize() int                  { return 4 }
func (ARM) BreakpointInstruction() []byte { return armBreakInstruction }
func (ARM) BreakpointSize() int           { return len(armBreakInstruction) }

// BreakInstrMovesPC is true: like x86, the undefined-instruction trap on
// classic ARM leaves the program counter one instruction past the faulting
// one.
func (ARM) BreakInstrMovesPC() bool { return true }

func (ARM) SyscallInstruction() []byte { return armSyscallInstruction }

func (a ARM) PCAfterBreak(trapPC uint64) uint64 {
	return trapPC - uint64(a.BreakpointSize())
}

func (ARM) PC(regs Regs) uint64        { return uint64(regs.Raw().(*ARMRegs).Regs[15]) }
func (ARM) SetPC(regs Regs, pc uint64) { regs.Raw().(*ARMRegs).Regs[15] = uint32(pc) }
func (ARM) SP(regs Regs) uint64        { return uint64(regs.Raw().(*ARMRegs).Regs[13]) }

// SyscallNum reads R7, the EABI syscall-number register.
func (ARM) SyscallNum(regs Regs) uint64 { return uint64(regs.Raw().(*ARMRegs).Regs[7]) }
func (ARM) SetSyscallNum(regs Regs, num uint64) {
	regs.Raw().(*ARMRegs).Regs[7] = uint32(num)
}

func (ARM) SyscallArg(regs Regs, n int) uint64 {
	if n < 0 || n > 5 {
		return 0
	}
	return uint64(regs.Raw().(*ARMRegs).Regs[n])
}

func (ARM) SetSyscallArg(regs Regs, n int, v uint64) {
	if n < 0 || n > 5 {
		return
	}
	regs.Raw().(*ARMRegs).Regs[n] = uint32(v)
}

func (ARM) SyscallReturn(regs Regs) uint64 { return uint64(regs.Raw().(*ARMRegs).Regs[0]) }
func (ARM) SetSyscallReturn(regs Regs, v uint64) {
	regs.Raw().(*ARMRegs).Regs[0] = uint32(v)
}

// SyscallBoundary compares the leading instruction word against SVC #0 in
// ARM encoding. Thumb mode (16-bit SVC) is not handled: the engine assumes
// ARM-mode code, consistent with spec.md's non-goal of sub-instruction/mode
// tracing complexity.
func (ARM) SyscallBoundary(mem []byte) bool {
	if len(mem) < len(armSyscallInstruction) {
		return false
	}
	return bytes.Equal(mem[:len(armSyscallInstruction)], armSyscallInstruction)
}
