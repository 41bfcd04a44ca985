// Package native is the Linux backend for spec.md's Process Memory &
// Registers (component B) and the OS glue the event loop (component H)
// rides on: spawning and attaching tracees, waiting for stop events,
// decoding ptrace wait-status into the shapes engine.Backend expects, and
// issuing the three resume verbs. This mirrors pkg/proc/native's role in
// the teacher, trimmed to the single-pid-per-Tracee model spec.md
// describes instead of delve's full thread-group/DWARF-aware process
// model.
package native
