package engine

import (
	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/procio"
)

// traceeView is the read/write window a breakpoint handler receives, per
// spec.md section 6's TraceeView. It never outlives the call: SetRegs
// writes straight through to the tracee's live register file instead of
// buffering, so design note (iii)'s rule holds for free — a handler's PC
// mutation takes effect on the next resume because the engine writes no
// register snapshot back after the handler returns.
type traceeView struct {
	io   procio.IO
	pid  int
	regs arch.Regs
}

func newTraceeView(io procio.IO, pid int, regs arch.Regs) *traceeView {
	return &traceeView{io: io, pid: pid, regs: regs}
}

func (v *traceeView) Pid() int        { return v.pid }
func (v *traceeView) Regs() arch.Regs { return v.regs }

func (v *traceeView) SetRegs(r arch.Regs) {
	v.regs = r
	_ = v.io.SetRegs(v.pid, r)
}

func (v *traceeView) ReadMemory(addr uint64, len int) ([]byte, error) {
	buf := make([]byte, len)
	if _, err := v.io.ReadMemory(v.pid, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (v *traceeView) WriteMemory(addr uint64, data []byte) error {
	_, err := v.io.WriteMemory(v.pid, addr, data)
	return err
}
