package tracee

import (
	"testing"

	"github.com/ptracelab/tracewright/arch"
)

func TestNewProcessAllocatesOwnState(t *testing.T) {
	tr := New(100, arch.AMD64{}, 1, false)
	if tr.Mods == nil || tr.Breakpoints == nil {
		t.Fatal("a process Tracee must allocate its own Mods and Breakpoints")
	}
	if tr.IsThread {
		t.Error("IsThread = true for a process Tracee")
	}
}

func TestNewThreadLeavesSharedStateForCaller(t *testing.T) {
	tr := New(101, arch.AMD64{}, 1, true)
	if tr.Mods != nil || tr.Breakpoints != nil {
		t.Error("a thread Tracee must not allocate its own Mods/Breakpoints; the caller wires the parent's")
	}
	if !tr.IsThread {
		t.Error("IsThread = false for a clone-created Tracee")
	}
}

func TestNewAllocatesIndependentInjectionsAndPhase(t *testing.T) {
	a := New(1, arch.AMD64{}, 1, false)
	b := New(2, arch.AMD64{}, 1, false)
	if a.Injections == b.Injections {
		t.Error("two Tracees share the same Injections queue")
	}
	if a.SyscallPhase == b.SyscallPhase {
		t.Error("two Tracees share the same SyscallPhase tracker")
	}
}
