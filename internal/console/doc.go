// Package console implements the in-process developer-console session:
// a REPL with an editable multi-viewer command line, bounded history,
// sandboxed JavaScript evaluation, and a tail of the process's log
// events.
//
// The Store holds log history and fans events out to viewers; the
// Session renders the shared edit buffer onto every attached surface
// with incremental, cursor-accurate redraws. All buffer mutation is
// serialized through a bounded queue, and input past the bound is
// dropped rather than queued without limit.
package console
