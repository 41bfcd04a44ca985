// Package coverage defines the seam between the tracee control engine and
// an external coverage trace writer. Per spec.md section 6, the core does
// not own any persisted state and does not constrain the sink's file
// format beyond calling Record once per observed hit; the sink itself
// (stream layout, module_id assignment, buffering) is an external
// collaborator, out of scope for this repository.
package coverage

// Sink receives one Record call per breakpoint hit a caller wants treated
// as a coverage event. A breakpoint handler that wants coverage tracking
// calls Record itself; the engine never calls it implicitly, since not
// every breakpoint is a coverage probe.
type Sink interface {
	// Record reports that pid executed the address addr belonging to the
	// module identified by moduleID. moduleID assignment is entirely up to
	// the sink implementation; the engine does not allocate or interpret
	// module ids.
	Record(pid uint32, moduleID uint16, addr uint64)
}

// NopSink discards every record. Useful as a default when the caller has
// not wired a real sink, and in tests.
type NopSink struct{}

func (NopSink) Record(uint32, uint16, uint64) {}
