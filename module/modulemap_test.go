//go:build linux

package module

import (
	"testing"

	"github.com/ptracelab/tracewright/tracerr"
)

func TestResolveUnloadedModuleMarksPending(t *testing.T) {
	m := New()
	_, err := m.Resolve("libfoo.so", 0x20)
	if _, ok := err.(tracerr.Unresolved); !ok {
		t.Fatalf("err = %v (%T), want tracerr.Unresolved", err, err)
	}
	pending := m.Pending()
	if len(pending) != 1 || pending[0].Module != "libfoo.so" || pending[0].Offset != 0x20 {
		t.Fatalf("Pending() = %+v, want one entry for libfoo.so+0x20", pending)
	}
}

func TestResolveAfterReload(t *testing.T) {
	m := New()
	m.Resolve("libfoo.so", 0x20)
	m.Reload(map[string]uint64{"libfoo.so": 0x7f0000000000})

	addr, err := m.Resolve("libfoo.so", 0x20)
	if err != nil {
		t.Fatalf("Resolve after Reload: %v", err)
	}
	if want := uint64(0x7f0000000020); addr != want {
		t.Errorf("Resolve() = %#x, want %#x", addr, want)
	}
	if pending := m.Pending(); len(pending) != 0 {
		t.Errorf("Pending() after a successful Resolve = %v, want empty", pending)
	}
}

func TestReloadReplacesWholesale(t *testing.T) {
	m := New()
	m.Reload(map[string]uint64{"a.so": 1})
	m.Reload(map[string]uint64{"b.so": 2})
	if _, ok := m.Base("a.so"); ok {
		t.Error("a.so still present after a Reload that omitted it")
	}
	if base, ok := m.Base("b.so"); !ok || base != 2 {
		t.Errorf("Base(b.so) = %d,%v, want 2,true", base, ok)
	}
}

func TestParseMapsLineSkipsAnonymous(t *testing.T) {
	start, end, path, ok, err := parseMapsLine("7f0000000000-7f0000001000 r-xp 00000000 00:00 0 ")
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	if ok {
		t.Errorf("ok = true for an anonymous mapping (start=%#x end=%#x path=%q)", start, end, path)
	}
}

func TestParseMapsLineExtractsFile(t *testing.T) {
	_, _, path, ok, err := parseMapsLine("7f0000000000-7f0000001000 r-xp 00000000 08:01 131 /usr/lib/x86_64-linux-gnu/libc.so.6")
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	if !ok {
		t.Fatal("ok = false for a file-backed mapping")
	}
	if path != "/usr/lib/x86_64-linux-gnu/libc.so.6" {
		t.Errorf("path = %q, want the libc path", path)
	}
}

func TestParseMapsLineRejectsMalformed(t *testing.T) {
	if _, _, _, _, err := parseMapsLine("not a maps line"); err == nil {
		t.Error("parseMapsLine() on garbage input returned nil error")
	}
}
