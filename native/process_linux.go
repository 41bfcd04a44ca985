//go:build linux

package native

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	isatty "github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"

	"github.com/ptracelab/tracewright/tracerr"
)

var errEmptyCommand = errors.New("native: empty command line")

// Spawn forks and execs argv under trace, mirroring native.Launch in the
// teacher trimmed to this engine's scope (no ASLR-disable flag, no DWARF
// debug-info-dir plumbing — those belong to an out-of-scope symbolic
// layer). If foreground is requested and stdin is a real terminal, the
// child is given a pty of its own, the same attachProcessToTTY-style
// accommodation the teacher makes for interactive targets.
func Spawn(argv []string, foreground bool) (pid int, err error) {
	if len(argv) == 0 {
		return 0, tracerr.SpawnFailed{Command: argv, Err: errEmptyCommand}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true, Setpgid: true}

	if foreground && !isatty.IsTerminal(os.Stdin.Fd()) {
		foreground = false
	}

	var ptmx *os.File
	if foreground {
		var tty *os.File
		ptmx, tty, err = pty.Open()
		if err != nil {
			return 0, tracerr.SpawnFailed{Command: argv, Err: err}
		}
		defer tty.Close()
		cmd.Stdin, cmd.Stdout, cmd.Stderr = tty, tty, tty
		cmd.SysProcAttr.Foreground = true
	} else {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	}

	if err = cmd.Start(); err != nil {
		if ptmx != nil {
			ptmx.Close()
		}
		return 0, tracerr.SpawnFailed{Command: argv, Err: err}
	}

	pid = cmd.Process.Pid
	// SysProcAttr.Ptrace makes the child PTRACE_TRACEME itself and raise
	// SIGTRAP right after execve; consume that stop and set tracing
	// options here so the caller's first Wait() sees an already-configured
	// tracee rather than this bootstrap stop.
	var ws sys.WaitStatus
	if _, err = sys.Wait4(pid, &ws, 0, nil); err != nil {
		return 0, tracerr.SpawnFailed{Command: argv, Err: err}
	}
	if err = ptraceSetOptions(pid); err != nil {
		return 0, tracerr.SpawnFailed{Command: argv, Err: err}
	}
	return pid, nil
}

// Attach begins tracing an already-running process, per spec.md section
// 6's attach(pid).
func Attach(pid int) error {
	if err := sys.PtraceAttach(pid); err != nil {
		if err == syscall.ESRCH {
			return tracerr.NoSuchProcess{Pid: pid}
		}
		return tracerr.AttachDenied{Pid: pid, Err: err}
	}
	var ws sys.WaitStatus
	if _, err := sys.Wait4(pid, &ws, 0, nil); err != nil {
		return tracerr.AttachDenied{Pid: pid, Err: err}
	}
	if err := ptraceSetOptions(pid); err != nil {
		return tracerr.AttachDenied{Pid: pid, Err: err}
	}
	return nil
}
