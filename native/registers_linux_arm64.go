//go:build linux && arm64

package native

import (
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/tracerr"
)

// Registers implements procio.Registers for arm64 Linux tracees via
// PTRACE_GETREGSET(NT_PRSTATUS)/PTRACE_SETREGSET, which golang.org/x/sys/
// unix's PtraceGetRegs/PtraceSetRegs already wrap for this GOARCH, same as
// the teacher's registers_linux_arm64.go.
type Registers struct{}

func (Registers) GetRegs(pid int) (arch.Regs, error) {
	var raw sys.PtraceRegs
	if err := sys.PtraceGetRegs(pid, &raw); err != nil {
		return nil, tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	var r arch.ARM64Regs
	copy(r.Regs[:], raw.Regs[:])
	r.Sp = raw.Sp
	r.Pc = raw.Pc
	r.Pstate = raw.Pstate
	return &r, nil
}

func (Registers) SetRegs(pid int, regs arch.Regs) error {
	r, ok := regs.Raw().(*arch.ARM64Regs)
	if !ok {
		return tracerr.RegisterIOFailed{Pid: pid, Err: fmt.Errorf("native: register snapshot is not arm64")}
	}
	var raw sys.PtraceRegs
	copy(raw.Regs[:], r.Regs[:])
	raw.Sp = r.Sp
	raw.Pc = r.Pc
	raw.Pstate = r.Pstate
	if err := sys.PtraceSetRegs(pid, &raw); err != nil {
		return tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	return nil
}
