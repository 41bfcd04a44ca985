package breakpoint

import (
	"testing"

	"github.com/ptracelab/tracewright/arch"
	"github.com/ptracelab/tracewright/module"
	"github.com/ptracelab/tracewright/tracerr"
)

// fakeMemory is an in-process stand-in for procio.Memory, backed by a map
// from start address to the bytes stored there; a write patches the stored
// bytes in place, like a real partial write, which is enough to exercise
// install/uninstall without a real tracee.
type fakeMemory struct {
	bytes map[uint64][]byte
}

func newFakeMemory() *fakeMemory { return &fakeMemory{bytes: make(map[uint64][]byte)} }

func (m *fakeMemory) put(addr uint64, data []byte) {
	cp := append([]byte(nil), data...)
	m.bytes[addr] = cp
}

func (m *fakeMemory) ReadMemory(pid int, addr uint64, data []byte) (int, error) {
	src, ok := m.bytes[addr]
	if !ok || len(src) < len(data) {
		return 0, tracerr.MemoryFault{Pid: pid, Addr: addr, Len: len(data)}
	}
	copy(data, src)
	return len(data), nil
}

func (m *fakeMemory) WriteMemory(pid int, addr uint64, data []byte) (int, error) {
	dst := m.bytes[addr]
	if len(dst) < len(data) {
		dst = append(dst, make([]byte, len(data)-len(dst))...)
	}
	copy(dst, data)
	m.bytes[addr] = dst
	return len(data), nil
}

func TestInstallUninstallRoundTrip(t *testing.T) {
	mem := newFakeMemory()
	original := []byte{0x55, 0x48, 0x89, 0xe5}
	mem.put(0x1000, original)

	tbl := NewTable(42)
	armed := &Armed{Spec: &Spec{Module: "main", Offset: 0}, Addr: 0x1000}
	a := arch.AMD64{}

	if err := tbl.Install(mem, a, armed); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !armed.Installed {
		t.Fatal("Installed = false after Install")
	}
	buf := make([]byte, 1)
	mem.ReadMemory(42, 0x1000, buf)
	if buf[0] != a.BreakpointInstruction()[0] {
		t.Errorf("trap byte = %#x, want %#x", buf[0], a.BreakpointInstruction()[0])
	}

	// Installing again is a no-op, per spec.md 4.D.
	if err := tbl.Install(mem, a, armed); err != nil {
		t.Fatalf("second Install: %v", err)
	}

	if err := tbl.Uninstall(mem, armed); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if armed.Installed {
		t.Error("Installed = true after Uninstall")
	}
	restored := make([]byte, len(original))
	mem.ReadMemory(42, 0x1000, restored)
	for i := range original {
		if restored[i] != original[i] {
			t.Fatalf("restored bytes = %v, want %v", restored, original)
		}
	}
}

func TestOnHitSingleShotDrops(t *testing.T) {
	mem := newFakeMemory()
	mem.put(0x2000, []byte{0x90})
	tbl := NewTable(1)
	a := arch.AMD64{}
	spec := &Spec{Module: "main", Offset: 0, SingleShot: true, Handler: func(View) Decision { return Continue }}
	armed := &Armed{Spec: spec, Addr: 0x2000}
	tbl.Install(mem, a, armed)
	tbl.byAddr[0x2000] = armed

	res, err := tbl.OnHit(mem, a, armed, nil)
	if err != nil {
		t.Fatalf("OnHit: %v", err)
	}
	if res.Restore != 0 {
		t.Errorf("Restore = %#x, want 0 for a single-shot breakpoint", res.Restore)
	}
	if _, ok := tbl.Lookup(0x2000); ok {
		t.Error("single-shot breakpoint still present after OnHit")
	}
}

func TestOnHitRecurringReportsRestore(t *testing.T) {
	mem := newFakeMemory()
	mem.put(0x3000, []byte{0x90})
	tbl := NewTable(1)
	a := arch.AMD64{}
	spec := &Spec{Module: "main", Offset: 0, SingleShot: false, Handler: func(View) Decision { return Continue }}
	armed := &Armed{Spec: spec, Addr: 0x3000}
	tbl.Install(mem, a, armed)
	tbl.byAddr[0x3000] = armed

	res, err := tbl.OnHit(mem, a, armed, nil)
	if err != nil {
		t.Fatalf("OnHit: %v", err)
	}
	if res.Restore != 0x3000 {
		t.Errorf("Restore = %#x, want 0x3000", res.Restore)
	}
	if _, ok := tbl.Lookup(0x3000); !ok {
		t.Error("recurring breakpoint record dropped after OnHit, should survive until Reinstall")
	}
}

func TestOnHitCallsHandlerBeforeUninstalling(t *testing.T) {
	mem := newFakeMemory()
	mem.put(0x4000, []byte{0x90})
	tbl := NewTable(1)
	a := arch.AMD64{}

	armed := &Armed{Addr: 0x4000}
	var sawInstalledInHandler bool
	armed.Spec = &Spec{Module: "main", Offset: 0, Handler: func(View) Decision {
		sawInstalledInHandler = armed.Installed
		return Continue
	}}
	tbl.Install(mem, a, armed)
	tbl.byAddr[0x4000] = armed

	if _, err := tbl.OnHit(mem, a, armed, nil); err != nil {
		t.Fatalf("OnHit: %v", err)
	}
	if !sawInstalledInHandler {
		t.Error("handler observed Installed = false; OnHit must call the handler before uninstalling")
	}
}

func TestAdoptSkipsAlreadyTracked(t *testing.T) {
	tbl := NewTable(1)
	spec := &Spec{Module: "main", Offset: 0x10}
	tbl.Adopt([]*Spec{spec})
	tbl.Adopt([]*Spec{spec})
	if len(tbl.unresolved) != 1 {
		t.Errorf("unresolved count = %d, want 1 (Adopt must not double-add)", len(tbl.unresolved))
	}
}

func TestTryResolveMovesAdoptedRecords(t *testing.T) {
	tbl := NewTable(1)
	spec := &Spec{Module: "main", Offset: 0x20}
	tbl.Adopt([]*Spec{spec})

	mods := module.New()
	if resolved := tbl.TryResolve(mods); len(resolved) != 0 {
		t.Fatalf("TryResolve before the module loads returned %d records, want 0", len(resolved))
	}

	mods.Reload(map[string]uint64{"main": 0x400000})
	resolved := tbl.TryResolve(mods)
	if len(resolved) != 1 {
		t.Fatalf("TryResolve after Reload returned %d records, want 1", len(resolved))
	}
	if resolved[0].Addr != 0x400020 {
		t.Errorf("resolved Addr = %#x, want 0x400020", resolved[0].Addr)
	}
}

func TestAdoptInstalledCopiesByteState(t *testing.T) {
	parentMem := newFakeMemory()
	parentMem.put(0x5000, []byte{0x90})
	parent := NewTable(1)
	a := arch.AMD64{}
	spec := &Spec{Module: "main", Offset: 0}
	parentArmed := &Armed{Spec: spec, Addr: 0x5000}
	parent.Install(parentMem, a, parentArmed)
	parent.byAddr[0x5000] = parentArmed

	child := NewTable(2)
	child.AdoptInstalled(parent)

	childArmed, ok := child.Lookup(0x5000)
	if !ok {
		t.Fatal("child did not inherit the parent's installed breakpoint")
	}
	if !childArmed.Installed {
		t.Error("child's inherited record is not marked Installed")
	}
	if len(childArmed.SavedBytes) != len(parentArmed.SavedBytes) {
		t.Errorf("child SavedBytes len = %d, want %d", len(childArmed.SavedBytes), len(parentArmed.SavedBytes))
	}

	// Mutating the child's saved bytes must not affect the parent's.
	childArmed.SavedBytes[0] = 0xff
	if parentArmed.SavedBytes[0] == 0xff {
		t.Error("child and parent share the same SavedBytes backing array")
	}
}

func TestRegistryAddRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("main", 0x10, nil, false); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	_, err := r.Add("main", 0x10, nil, false)
	if _, ok := err.(tracerr.BreakpointExists); !ok {
		t.Fatalf("second Add err = %v (%T), want tracerr.BreakpointExists", err, err)
	}
}
