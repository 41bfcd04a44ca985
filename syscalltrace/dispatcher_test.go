package syscalltrace

import (
	"testing"

	"github.com/ptracelab/tracewright/arch"
)

func TestPhaseTrackerAlternates(t *testing.T) {
	p := NewPhaseTracker()
	if tag := p.Advance(257); tag != Enter {
		t.Fatalf("first Advance = %v, want Enter", tag)
	}
	if tag := p.Advance(257); tag != Exit {
		t.Fatalf("second Advance = %v, want Exit", tag)
	}
	if tag := p.Advance(9); tag != Enter {
		t.Fatalf("third Advance = %v, want Enter (fresh pair)", tag)
	}
}

func TestPhaseTrackerLastSyscallIDSurvivesExit(t *testing.T) {
	p := NewPhaseTracker()
	p.Advance(257)
	p.Advance(0) // exit stop may report a clobbered id register
	if got := p.LastSyscallID(); got != 257 {
		t.Errorf("LastSyscallID() = %d, want 257", got)
	}
}

func TestPhaseTrackerResync(t *testing.T) {
	p := NewPhaseTracker()
	p.Advance(1) // now InsideKernel
	p.Resync()
	if tag := p.Advance(2); tag != Enter {
		t.Errorf("Advance after Resync = %v, want Enter", tag)
	}
}

func TestDispatchEnterUnregisteredPassesThrough(t *testing.T) {
	d := NewDispatcher()
	regs := &arch.AMD64Regs{OrigRax: 999}
	if handled := d.DispatchEnter(arch.AMD64{}, regs); handled {
		t.Error("DispatchEnter() = true for an unregistered syscall id")
	}
}

func TestDispatchEnterMutatesArgs(t *testing.T) {
	d := NewDispatcher()
	a := arch.AMD64{}
	d.Register(257, HandlerFuncs{
		Enter: func(td *TraceData) bool {
			td.SetArg(0, 0xdeadbeef)
			return false
		},
	})
	regs := &arch.AMD64Regs{OrigRax: 257, Rdi: 1}
	if !d.DispatchEnter(a, regs) {
		t.Fatal("DispatchEnter() = false, want a handler to have run")
	}
	if got := a.SyscallArg(regs, 0); got != 0xdeadbeef {
		t.Errorf("arg 0 after DispatchEnter = %#x, want 0xdeadbeef", got)
	}
}

func TestDispatchExitMutatesReturn(t *testing.T) {
	d := NewDispatcher()
	a := arch.AMD64{}
	d.Register(0, HandlerFuncs{
		Exit: func(td *TraceData) bool {
			td.SetRet(42)
			return false
		},
	})
	regs := &arch.AMD64Regs{Rax: 7}
	d.DispatchExit(a, regs, 0)
	if got := a.SyscallReturn(regs); got != 42 {
		t.Errorf("return value after DispatchExit = %d, want 42", got)
	}
}

func TestUnregisterStopsDispatch(t *testing.T) {
	d := NewDispatcher()
	d.Register(1, HandlerFuncs{})
	d.Unregister(1)
	regs := &arch.AMD64Regs{OrigRax: 1}
	if handled := d.DispatchEnter(arch.AMD64{}, regs); handled {
		t.Error("DispatchEnter() = true after Unregister")
	}
}
