package config

import (
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TraceSyscalls {
		t.Error("fresh default Config has TraceSyscalls = true")
	}

	// The file should now exist and be loadable again.
	if _, err := Load(path); err != nil {
		t.Fatalf("second Load: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := &Config{
		TraceSyscalls: true,
		FollowFork:    true,
		SyscallAliases: map[string]SyscallAliases{
			"amd64": {"openat": 257, "mmap": 9},
		},
		ModuleSearchPaths: []string{"/usr/lib/debug"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.TraceSyscalls || !got.FollowFork {
		t.Errorf("got = %+v, want TraceSyscalls and FollowFork both true", got)
	}
	id, ok := got.Lookup("amd64", "openat")
	if !ok || id != 257 {
		t.Errorf("Lookup(amd64, openat) = %d,%v, want 257,true", id, ok)
	}
}

func TestLookupUnknownISAOrName(t *testing.T) {
	cfg := &Config{SyscallAliases: map[string]SyscallAliases{"amd64": {"openat": 257}}}
	if _, ok := cfg.Lookup("arm64", "openat"); ok {
		t.Error("Lookup found an alias for an ISA with no table")
	}
	if _, ok := cfg.Lookup("amd64", "nonexistent"); ok {
		t.Error("Lookup found an alias that was never registered")
	}
}

func TestLookupNilConfig(t *testing.T) {
	var cfg *Config
	if _, ok := cfg.Lookup("amd64", "openat"); ok {
		t.Error("Lookup on a nil *Config reported ok = true")
	}
}
