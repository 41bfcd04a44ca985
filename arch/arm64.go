package arch

import "bytes"

// ARM64Regs mirrors Linux's aarch64 `user_pt_regs` layout.
type ARM64Regs struct {
	Regs   [31]uint64 // X0..X30
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

func (r *ARM64Regs) Raw() any { return r }

// Clone returns a defensive copy.
func (r *ARM64Regs) Clone() Regs {
	cp := *r
	return &cp
}

var arm64BreakInstruction = []byte{0x00, 0x00, 0x20, 0xd4} // BRK #0
var arm64SyscallInstruction = []byte{0x01, 0x00, 0x00, 0xd4} // SVC #0

// ARM64 implements Arch for the 64-bit ARM instruction set.
type ARM64 struct{}

func (ARM64) Name() string                  { return "arm64" }
func (ARM64) PtrSize() int                  { return 8 }
func (ARM64) BreakpointInstruction() []byte { return arm64BreakInstruction }
func (ARM64) BreakpointSize() int           { return len(arm64BreakInstruction) }

// BreakInstrMovesPC is false: ARM64's BRK exception leaves the program
// counter pointing at the BRK instruction itself, unlike x86's INT3.
func (ARM64) BreakInstrMovesPC() bool { return false }

func (ARM64) SyscallInstruction() []byte { return arm64SyscallInstruction }

func (ARM64) PCAfterBreak(trapPC uint64) uint64 { return trapPC }

func (ARM64) PC(regs Regs) uint64        { return regs.Raw().(*ARM64Regs).Pc }
func (ARM64) SetPC(regs Regs, pc uint64) { regs.Raw().(*ARM64Regs).Pc = pc }
func (ARM64) SP(regs Regs) uint64        { return regs.Raw().(*ARM64Regs).Sp }

// SyscallNum reads X8, the AArch64 Linux syscall-number register.
func (ARM64) SyscallNum(regs Regs) uint64 { return regs.Raw().(*ARM64Regs).Regs[8] }
func (ARM64) SetSyscallNum(regs Regs, num uint64) {
	regs.Raw().(*ARM64Regs).Regs[8] = num
}

func (ARM64) SyscallArg(regs Regs, n int) uint64 {
	if n < 0 || n > 5 {
		return 0
	}
	return regs.Raw().(*ARM64Regs).Regs[n]
}

func (ARM64) SetSyscallArg(regs Regs, n int, v uint64) {
	if n < 0 || n > 5 {
		return
	}
	regs.Raw().(*ARM64Regs).Regs[n] = v
}

func (ARM64) SyscallReturn(regs Regs) uint64 { return regs.Raw().(*ARM64Regs).Regs[0] }
func (ARM64) SetSyscallReturn(regs Regs, v uint64) {
	regs.Raw().(*ARM64Regs).Regs[0] = v
}

// SyscallBoundary compares the leading instruction word against SVC #0.
// ARM64 has no x86asm-equivalent decoder in the examples pack; all A64
// instructions are a fixed 4 bytes, so a direct comparison is exact (unlike
// x86's variable-length encoding, which needs a real decoder).
func (ARM64) SyscallBoundary(mem []byte) bool {
	if len(mem) < len(arm64SyscallInstruction) {
		return false
	}
	return bytes.Equal(mem[:len(arm64SyscallInstruction)], arm64SyscallInstruction)
}
