package metrics

import (
	"sync"
	"testing"
)

func TestCollectorAccumulates(t *testing.T) {
	c := NewCollector(2, "ram")

	c.AddBatchReceived(10)
	c.AddBatchReceived(5)
	c.AddLocalStackHits(3)
	c.IncFlush()
	c.IncNodeAdded()
	c.IncUnionDone()
	c.IncUnionDone()
	c.IncFindDone()
	c.IncShutdownDone()
	c.IncFrameSent()
	c.IncFrameReceived()
	c.IncDecodeError()

	s := c.Snapshot()
	if s.BatchesReceived != 2 {
		t.Errorf("BatchesReceived = %d, want 2", s.BatchesReceived)
	}
	if s.MessagesProcessed != 18 {
		t.Errorf("MessagesProcessed = %d, want 18", s.MessagesProcessed)
	}
	if s.LocalStackHits != 3 {
		t.Errorf("LocalStackHits = %d, want 3", s.LocalStackHits)
	}
	if s.Flushes != 1 || s.NodesAdded != 1 || s.UnionsDone != 2 || s.FindsDone != 1 || s.ShutdownsDone != 1 {
		t.Errorf("operation counters = %+v", s)
	}
	if s.FramesSent != 1 || s.FramesReceived != 1 || s.DecodeErrors != 1 {
		t.Errorf("forwarder counters = %+v", s)
	}
	if s.PeerID != 2 || s.StorageBackend != "ram" {
		t.Errorf("dimensions = %d, %q", s.PeerID, s.StorageBackend)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.AddBatchReceived(1)
	c.AddLocalStackHits(1)
	c.IncFlush()
	c.IncNodeAdded()
	c.IncUnionDone()
	c.IncFindDone()
	c.IncShutdownDone()
	c.IncFrameSent()
	c.IncFrameReceived()
	c.IncDecodeError()

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil collector snapshot = %+v, want zero", s)
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector(0, "ram")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.AddBatchReceived(1)
			}
		}()
	}
	wg.Wait()

	if s := c.Snapshot(); s.MessagesProcessed != 8000 {
		t.Errorf("MessagesProcessed = %d, want 8000", s.MessagesProcessed)
	}
}
