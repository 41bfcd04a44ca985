// Package config loads the engine's persisted configuration: syscall-id
// name aliases, default tracing policy, and module search paths. Format
// and load/save shape are grounded on pkg/config/config.go in the teacher.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDirName  = ".tracewright"
	configFileName = "config.yml"
)

// SyscallAliases maps a human-readable syscall name to its numeric id for
// one ISA, so a syscall handler can be registered by name instead of a
// magic number that changes across architectures.
type SyscallAliases map[string]uint64

// Config holds every setting the engine reads at startup.
type Config struct {
	// TraceSyscalls is the default passed to Debugger.TraceSyscalls if the
	// caller does not override it.
	TraceSyscalls bool `yaml:"trace-syscalls"`

	// FollowFork is the default passed to Debugger.FollowFork.
	FollowFork bool `yaml:"follow-fork"`

	// SyscallAliases is keyed by ISA name ("amd64", "arm64", "arm") so the
	// same alias table file can serve every architecture's numbering.
	SyscallAliases map[string]SyscallAliases `yaml:"syscall-aliases"`

	// ModuleSearchPaths is loaded and saved with the rest of the file. No
	// other package reads it: module resolution uses only the tracee's own
	// view of its loaded images.
	ModuleSearchPaths []string `yaml:"module-search-paths"`
}

// DefaultPath returns the default config file location, $HOME/.tracewright/config.yml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// Load reads and parses the config file at path. If the file does not
// exist, it is created with commented-out defaults and an empty Config is
// returned, mirroring LoadConfig's create-on-first-run behavior in the
// teacher.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := writeDefault(path); err != nil {
			return nil, fmt.Errorf("config: writing default %s: %w", path, err)
		}
		return &Config{}, nil
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &c, nil
}

// Save marshals c back to path as YAML.
func Save(path string, c *Config) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const body = `# Configuration file for tracewright.
#
# trace-syscalls: false
# follow-fork: false
#
# syscall-aliases:
#   amd64:
#     openat: 257
#     mmap: 9
#
# module-search-paths:
#   - /usr/lib/debug
`
	return os.WriteFile(path, []byte(body), 0o644)
}

// Lookup resolves a syscall alias for isa, returning ok=false if the name is
// not aliased for that architecture.
func (c *Config) Lookup(isa, name string) (uint64, bool) {
	if c == nil || c.SyscallAliases == nil {
		return 0, false
	}
	table, ok := c.SyscallAliases[isa]
	if !ok {
		return 0, false
	}
	id, ok := table[name]
	return id, ok
}
