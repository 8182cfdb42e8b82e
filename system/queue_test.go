package system

import (
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/coalesce/types"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for want := 0; want < 5; want++ {
		got, ok := q.TryRecv()
		if !ok || got != want {
			t.Fatalf("TryRecv() = %d, %v, want %d, true", got, ok, want)
		}
	}
	if _, ok := q.TryRecv(); ok {
		t.Fatal("TryRecv on empty queue should return false")
	}
}

func TestQueueRecvBlocksUntilPush(t *testing.T) {
	q := NewQueue[string]()

	done := make(chan string, 1)
	go func() {
		item, ok := q.Recv()
		if !ok {
			done <- "<closed>"
			return
		}
		done <- item
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("batch")

	select {
	case got := <-done:
		if got != "batch" {
			t.Fatalf("Recv() = %q, want %q", got, "batch")
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake after Push")
	}
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Close()

	if got, ok := q.Recv(); !ok || got != 1 {
		t.Fatalf("Recv() = %d, %v, want 1, true", got, ok)
	}
	if _, ok := q.Recv(); ok {
		t.Fatal("Recv after drain of closed queue should report closed")
	}

	// Pushes after close are dropped.
	q.Push(2)
	if _, ok := q.TryRecv(); ok {
		t.Fatal("Push after Close should be dropped")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 1000

	q := NewQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, producers*perProducer)
	for {
		v, ok := q.TryRecv()
		if !ok {
			break
		}
		if seen[v] {
			t.Fatalf("item %d delivered twice", v)
		}
		seen[v] = true
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("delivered %d items, want %d", len(seen), producers*perProducer)
	}
}

func TestLocalEndpointsDeliver(t *testing.T) {
	shard := NewLocalShard()
	drv := NewLocalDriver()
	sys := New([]ShardAccess{shard}, []DriverAccess{drv})

	req := types.NewReqID(0, 1)
	sys.Shard(0).SendShardMessages([]types.ShardMessage{types.AddNode(0, req)})
	sys.Driver(0).SendDriverMessages([]types.DriverMessage{types.AddNodeDone(req, types.NewKey(0, 0))})

	sb, ok := shard.Queue.TryRecv()
	if !ok || len(sb) != 1 || sb[0].Op != types.OpAddNode {
		t.Fatalf("shard endpoint delivered %v, %v", sb, ok)
	}
	db, ok := drv.Queue.TryRecv()
	if !ok || len(db) != 1 || db[0].Op != types.OpAddNodeDone {
		t.Fatalf("driver endpoint delivered %v, %v", db, ok)
	}
}
