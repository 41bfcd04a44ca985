//go:build linux && amd64

package native

import (
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/tracerr"
)

// Registers implements procio.Registers for amd64 Linux tracees via
// PTRACE_GETREGS/PTRACE_SETREGS, mirroring native's registers() in the
// teacher's registers_linux_amd64.go but without the DWARF register-dwarf
// mapping layer delve needs and this engine does not.
type Registers struct{}

func (Registers) GetRegs(pid int) (arch.Regs, error) {
	var raw sys.PtraceRegs
	if err := sys.PtraceGetRegs(pid, &raw); err != nil {
		return nil, tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	return fromKernelRegs(&raw), nil
}

func (Registers) SetRegs(pid int, regs arch.Regs) error {
	r, ok := regs.Raw().(*arch.AMD64Regs)
	if !ok {
		return tracerr.RegisterIOFailed{Pid: pid, Err: fmt.Errorf("native: register snapshot is not amd64")}
	}
	raw := toKernelRegs(r)
	if err := sys.PtraceSetRegs(pid, &raw); err != nil {
		return tracerr.RegisterIOFailed{Pid: pid, Err: err}
	}
	return nil
}

func fromKernelRegs(raw *sys.PtraceRegs) *arch.AMD64Regs {
	return &arch.AMD64Regs{
		R15: raw.R15, R14: raw.R14, R13: raw.R13, R12: raw.R12,
		Rbp: raw.Rbp, Rbx: raw.Rbx,
		R11: raw.R11, R10: raw.R10, R9: raw.R9, R8: raw.R8,
		Rax: raw.Rax, Rcx: raw.Rcx, Rdx: raw.Rdx,
		Rsi: raw.Rsi, Rdi: raw.Rdi,
		OrigRax: raw.Orig_rax,
		Rip:     raw.Rip,
		Cs:      raw.Cs,
		Eflags:  raw.Eflags,
		Rsp:     raw.Rsp,
		Ss:      raw.Ss,
		FsBase:  raw.Fs_base, GsBase: raw.Gs_base,
		Ds: raw.Ds, Es: raw.Es, Fs: raw.Fs, Gs: raw.Gs,
	}
}

func toKernelRegs(r *arch.AMD64Regs) sys.PtraceRegs {
	return sys.PtraceRegs{
		R15: r.R15, R14: r.R14, R13: r.R13, R12: r.R12,
		Rbp: r.Rbp, Rbx: r.Rbx,
		R11: r.R11, R10: r.R10, R9: r.R9, R8: r.R8,
		Rax: r.Rax, Rcx: r.Rcx, Rdx: r.Rdx,
		Rsi: r.Rsi, Rdi: r.Rdi,
		Orig_rax: r.OrigRax,
		Rip:      r.Rip,
		Cs:       r.Cs,
		Eflags:   r.Eflags,
		Rsp:      r.Rsp,
		Ss:       r.Ss,
		Fs_base:  r.FsBase, Gs_base: r.GsBase,
		Ds: r.Ds, Es: r.Es, Fs: r.Fs, Gs: r.Gs,
	}
}
