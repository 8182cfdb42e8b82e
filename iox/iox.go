// Package iox holds small cleanup helpers used on teardown paths.
package iox

import "io"

// DiscardClose closes c and drops the error. For paths where a close
// failure changes nothing, like abandoning a peer connection that is
// already being torn down:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts a Closer to the zero-argument shape t.Cleanup and
// b.Cleanup take:
//
//	t.Cleanup(iox.CloseFunc(store))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr runs fn and drops its error. For deferred non-Close cleanup,
// like the final flush of a batcher whose receivers may already be gone:
//
//	defer iox.DiscardErr(batcher.Close)
func DiscardErr(fn func() error) { _ = fn() }
