//go:build linux && arm

package native

import (
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/tracerr"
)

// Registers implements procio.Registers for 32-bit ARM Linux tracees via
// PTRACE_GETREGS/PTRACE_SETREGS. The kernel's struct pt_regs for ARM is 18
// uint32 words (r0..r15, cpsr, orig_r0); golang.org/x/sys/unix's
// PtraceRegs.Uregs is that same flat array.
type Registers struct{}

func (Registers) GetRegs(pid int) (arch.Regs, error) {
	var raw sys.PtraceRegs
	if err := sys.PtraceGetRegs(pid, &raw); err != nil {
		return nil, tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	var r arch.ARMRegs
	copy(r.Regs[:], raw.Uregs[:16])
	r.Cpsr = raw.Uregs[16]
	r.Orig_r0 = raw.Uregs[17]
	return &r, nil
}

func (Registers) SetRegs(pid int, regs arch.Regs) error {
	r, ok := regs.Raw().(*arch.ARMRegs)
	if !ok {
		return tracerr.RegisterIOFailed{Pid: pid, Err: fmt.Errorf("native: register snapshot is not arm")}
	}
	var raw sys.PtraceRegs
	copy(raw.Uregs[:16], r.Regs[:])
	raw.Uregs[16] = r.Cpsr
	raw.Uregs[17] = r.Orig_r0
	if err := sys.PtraceSetRegs(pid, &raw); err != nil {
		return tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	return nil
}
