// Package logflags controls which subsystems of the engine log, and hands
// out a *logrus.Entry bound to that subsystem's fields. Nothing here is a
// package-global logger reached for mid-call: Setup is expected to run once
// at startup, and every component stores the *logrus.Entry it is given at
// construction time.
package logflags

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	engine     = false
	breakpoint = false
	syscall    = false
	inject     = false
)

// Setup parses a comma-separated list of subsystem names (engine,
// breakpoint, syscall, inject, or "all") and enables logging for each.
func Setup(what string) {
	if what == "" {
		return
	}
	for _, f := range strings.Split(what, ",") {
		switch strings.TrimSpace(f) {
		case "all":
			engine, breakpoint, syscall, inject = true, true, true, true
		case "engine":
			engine = true
		case "breakpoint":
			breakpoint = true
		case "syscall":
			syscall = true
		case "inject":
			inject = true
		}
	}
}

func makeLogger(enabled bool, fields logrus.Fields) *logrus.Entry {
	l := logrus.New().WithFields(fields)
	l.Logger.Level = logrus.DebugLevel
	if !enabled {
		l.Logger.Level = logrus.PanicLevel
	}
	return l
}

// Engine returns true if the event loop should log.
func Engine() bool { return engine }

// EngineLogger returns a configured logger for the event loop.
func EngineLogger() *logrus.Entry {
	return makeLogger(engine, logrus.Fields{"layer": "engine"})
}

// Breakpoint returns true if the breakpoint table should log.
func Breakpoint() bool { return breakpoint }

// BreakpointLogger returns a configured logger for the breakpoint table.
func BreakpointLogger() *logrus.Entry {
	return makeLogger(breakpoint, logrus.Fields{"layer": "breakpoint"})
}

// Syscall returns true if the syscall dispatcher should log.
func Syscall() bool { return syscall }

// SyscallLogger returns a configured logger for the syscall dispatcher.
func SyscallLogger() *logrus.Entry {
	return makeLogger(syscall, logrus.Fields{"layer": "syscall"})
}

// Inject returns true if the syscall injector should log.
func Inject() bool { return inject }

// InjectLogger returns a configured logger for the syscall injector.
func InjectLogger() *logrus.Entry {
	return makeLogger(inject, logrus.Fields{"layer": "inject"})
}
