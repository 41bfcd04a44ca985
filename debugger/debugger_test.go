package debugger

import (
	"path/filepath"
	"testing"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/breakpoint"
	"github.com/ptracelab/tracewright/config"
)

func newTestDebugger(t *testing.T) *Debugger {
	d, err := New(arch.TargetDescription{ISA: arch.AMD64ISA})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNewRejectsUnsupportedISA(t *testing.T) {
	if _, err := New(arch.TargetDescription{ISA: "riscv64"}); err == nil {
		t.Error("New() with an unsupported ISA returned nil error")
	}
}

func TestNewStartsWithNoTracees(t *testing.T) {
	d := newTestDebugger(t)
	if n := d.Tracees(); n != 0 {
		t.Errorf("Tracees() = %d, want 0 for a freshly constructed Debugger", n)
	}
}

func TestLoadConfigAppliesDefaultsAndAliases(t *testing.T) {
	d := newTestDebugger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	// Save a config with a syscall alias before loading it.
	cfg := &config.Config{
		SyscallAliases: map[string]config.SyscallAliases{
			"amd64": {"openat": 257},
		},
	}
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("config.Save: %v", err)
	}
	if err := d.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	id, ok := d.SyscallID("openat")
	if !ok || id != 257 {
		t.Errorf("SyscallID(openat) = %d,%v, want 257,true", id, ok)
	}
}

func TestSyscallIDWithoutLoadedConfig(t *testing.T) {
	d := newTestDebugger(t)
	if _, ok := d.SyscallID("openat"); ok {
		t.Error("SyscallID() succeeded with no config loaded")
	}
}

func TestAddBreakpointRejectsDuplicate(t *testing.T) {
	d := newTestDebugger(t)
	h := func(breakpoint.View) breakpoint.Decision { return breakpoint.Continue }
	if _, err := d.AddBreakpoint("main", 0x10, h, false); err != nil {
		t.Fatalf("first AddBreakpoint: %v", err)
	}
	if _, err := d.AddBreakpoint("main", 0x10, h, false); err == nil {
		t.Error("second AddBreakpoint at the same module+offset returned nil error")
	}
}

func TestSetCoverageSinkDefaultsToNop(t *testing.T) {
	d := newTestDebugger(t)
	if d.CoverageSink() == nil {
		t.Fatal("CoverageSink() = nil, want a NopSink default")
	}
	d.SetCoverageSink(nil)
	if d.CoverageSink() == nil {
		t.Error("SetCoverageSink(nil) left CoverageSink() nil instead of restoring the default")
	}
}

func TestIgnorePassSignalDoNotPanic(t *testing.T) {
	d := newTestDebugger(t)
	d.IgnoreSignal(17)
	d.PassSignal(17)
}

func TestStopAllowsEventLoopToReturn(t *testing.T) {
	d := newTestDebugger(t)
	d.Stop()
	if err := d.EventLoop(); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}
}
