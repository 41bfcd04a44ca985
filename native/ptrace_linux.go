//go:build linux

package native

import (
	"syscall"

	sys "golang.org/x/sys/unix"
)

// ptraceOptions is set on every attached/spawned tracee so fork, vfork,
// clone and exec produce PTRACE_EVENT stops the event loop can classify
// instead of a bare SIGTRAP, and so syscall-stops are tagged with the
// signal's high bit set (PTRACE_O_TRACESYSGOOD) to tell them apart from a
// breakpoint trap without an extra PTRACE_GETSIGINFO round trip. Mirrors
// native.nativeProcess's ptraceOptionsFollowExec in the teacher.
const ptraceOptions = syscall.PTRACE_O_TRACECLONE |
	syscall.PTRACE_O_TRACEFORK |
	syscall.PTRACE_O_TRACEVFORK |
	syscall.PTRACE_O_TRACEEXEC |
	syscall.PTRACE_O_TRACESYSGOOD

func ptraceSetOptions(pid int) error {
	return syscall.PtraceSetOptions(pid, ptraceOptions)
}

func ptraceCont(pid, sig int) error {
	return sys.PtraceCont(pid, sig)
}

// ptraceSyscall resumes pid until the next syscall boundary (enter or
// exit), the resume flavor spec.md's glossary calls syscall-continue.
func ptraceSyscall(pid, sig int) error {
	return sys.PtraceSyscall(pid, sig)
}

func ptraceSingleStep(pid, sig int) error {
	_, _, errno := sys.Syscall6(sys.SYS_PTRACE, uintptr(sys.PTRACE_SINGLESTEP), uintptr(pid), uintptr(0), uintptr(sig), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceDetach(pid int) error {
	return sys.PtraceDetach(pid)
}
