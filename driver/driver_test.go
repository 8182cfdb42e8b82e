package driver

import (
	"testing"
	"time"

	"github.com/pithecene-io/coalesce/types"
)

// collect drains completions until n messages have arrived.
func collect(t *testing.T, d *Driver, n int) map[types.ReqID]types.DriverMessage {
	t.Helper()
	got := make(map[types.ReqID]types.DriverMessage, n)
	for len(got) < n {
		batch, ok := d.Recv()
		if !ok {
			t.Fatalf("completion stream closed after %d of %d messages", len(got), n)
		}
		for _, msg := range batch {
			if _, dup := got[msg.Req]; dup {
				t.Fatalf("duplicate completion for %v", msg.Req)
			}
			got[msg.Req] = msg
		}
	}
	if len(got) > n {
		t.Fatalf("received %d completions, want %d", len(got), n)
	}
	return got
}

func addNode(t *testing.T, d *Driver, seq uint64, shard uint16) types.Key {
	t.Helper()
	req := types.NewReqID(d.ID(), seq)
	d.AddNode(req, shard)
	d.Flush()
	msg := collect(t, d, 1)[req]
	if msg.Op != types.OpAddNodeDone {
		t.Fatalf("completion op = %d, want AddNodeDone", msg.Op)
	}
	return msg.Response
}

func union(t *testing.T, d *Driver, seq uint64, node, to types.Key) {
	t.Helper()
	req := types.NewReqID(d.ID(), seq)
	d.Union(req, node, to)
	d.Flush()
	if msg := collect(t, d, 1)[req]; msg.Op != types.OpUnionDone {
		t.Fatalf("completion op = %d, want UnionDone", msg.Op)
	}
}

func find(t *testing.T, d *Driver, seq uint64, node types.Key) types.Key {
	t.Helper()
	req := types.NewReqID(d.ID(), seq)
	d.Find(req, node)
	d.Flush()
	msg := collect(t, d, 1)[req]
	if msg.Op != types.OpFindDone {
		t.Fatalf("completion op = %d, want FindDone", msg.Op)
	}
	return msg.Response
}

// Two shards, one driver: add two nodes, union across shards, find the root.
func TestUnionAcrossShards(t *testing.T) {
	dep := NewLocal(LocalConfig{NumDrivers: 1, NumShards: 2})
	d := dep.Drivers[0]

	k0 := addNode(t, d, 0, 0)
	if k0 != types.NewKey(0, 0) {
		t.Fatalf("first allocation = %v, want Key(0,0)", k0)
	}
	k1 := addNode(t, d, 1, 1)
	if k1 != types.NewKey(1, 0) {
		t.Fatalf("second allocation = %v, want Key(1,0)", k1)
	}

	union(t, d, 2, k0, k1)

	if root := find(t, d, 3, k0); root != k1 {
		t.Errorf("find(k0) = %v, want %v", root, k1)
	}

	d.ShutdownAllAndWait()
	dep.Wait()
}

// Chain of unions: both ends resolve to the same root.
func TestUnionChain(t *testing.T) {
	dep := NewLocal(LocalConfig{NumDrivers: 1, NumShards: 2})
	d := dep.Drivers[0]

	k0 := addNode(t, d, 0, 0)
	k1 := addNode(t, d, 1, 1)
	k2 := addNode(t, d, 2, 0)

	union(t, d, 3, k0, k1)
	union(t, d, 4, k2, k1)

	r0 := find(t, d, 5, k0)
	r2 := find(t, d, 6, k2)
	if r0 != r2 {
		t.Errorf("find(k0) = %v, find(k2) = %v, want equal", r0, r2)
	}

	d.ShutdownAllAndWait()
	dep.Wait()
}

// Self-union completes and leaves the node its own root.
func TestSelfUnion(t *testing.T) {
	dep := NewLocal(LocalConfig{NumDrivers: 1, NumShards: 1})
	d := dep.Drivers[0]

	k := addNode(t, d, 0, 0)
	union(t, d, 1, k, k)
	if root := find(t, d, 2, k); root != k {
		t.Errorf("find(k) after union(k,k) = %v, want %v", root, k)
	}

	d.ShutdownAllAndWait()
	dep.Wait()
}

// Two drivers allocate concurrently across four shards; every key is
// distinct and every driver gets exactly its own completions.
func TestConcurrentAllocation(t *testing.T) {
	const perDriver = 1000

	dep := NewLocal(LocalConfig{NumDrivers: 2, NumShards: 4})

	results := make(chan []types.Key, 2)
	for _, d := range dep.Drivers {
		go func(d *Driver) {
			for i := 0; i < perDriver; i++ {
				d.AddNode(types.NewReqID(d.ID(), uint64(i)), uint16(i%4))
			}
			d.Flush()

			keys := make([]types.Key, 0, perDriver)
			for len(keys) < perDriver {
				batch, ok := d.Recv()
				if !ok {
					break
				}
				for _, msg := range batch {
					if msg.Op != types.OpAddNodeDone {
						t.Errorf("driver %d: op = %d, want AddNodeDone", d.ID(), msg.Op)
					}
					if msg.Req.Driver() != d.ID() {
						t.Errorf("driver %d: completion for driver %d", d.ID(), msg.Req.Driver())
					}
					keys = append(keys, msg.Response)
				}
			}
			results <- keys
		}(d)
	}

	distinct := make(map[types.Key]bool, 2*perDriver)
	for i := 0; i < 2; i++ {
		select {
		case keys := <-results:
			for _, k := range keys {
				if distinct[k] {
					t.Errorf("key %v allocated twice", k)
				}
				distinct[k] = true
			}
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for allocations")
		}
	}
	if len(distinct) != 2*perDriver {
		t.Fatalf("allocated %d distinct keys, want %d", len(distinct), 2*perDriver)
	}

	dep.Drivers[0].ShutdownAllAndWait()
	dep.Wait()
}

// Shutdown returns exactly one acknowledgement per shard, then workers
// terminate.
func TestShutdownAcknowledgements(t *testing.T) {
	const shards = 5

	dep := NewLocal(LocalConfig{NumDrivers: 1, NumShards: shards})
	d := dep.Drivers[0]

	// ShutdownAllAndWait counts exactly `shards` acks internally; reaching
	// Wait() proves both the count and worker termination.
	d.ShutdownAllAndWait()

	done := make(chan struct{})
	go func() {
		dep.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not terminate after shutdown")
	}
}

// A batched workload: many interleaved unions queued before a single
// flush, then verified by finds.
func TestBatchedUnions(t *testing.T) {
	const classes = 10
	const perClass = 20

	dep := NewLocal(LocalConfig{NumDrivers: 1, NumShards: 3})
	d := dep.Drivers[0]

	var seq uint64
	keys := make([][]types.Key, classes)
	for c := 0; c < classes; c++ {
		for i := 0; i < perClass; i++ {
			keys[c] = append(keys[c], addNode(t, d, seq, uint16(i%3)))
			seq++
		}
	}

	// Queue all unions, flush once, then collect all completions.
	n := 0
	for c := 0; c < classes; c++ {
		for i := 1; i < perClass; i++ {
			d.Union(types.NewReqID(0, seq), keys[c][i], keys[c][0])
			seq++
			n++
		}
	}
	d.Flush()
	collect(t, d, n)

	for c := 0; c < classes; c++ {
		root := find(t, d, seq, keys[c][0])
		seq++
		for i := 1; i < perClass; i++ {
			r := find(t, d, seq, keys[c][i])
			seq++
			if r != root {
				t.Fatalf("class %d: find(keys[%d]) = %v, want %v", c, i, r, root)
			}
		}
		for other := 0; other < c; other++ {
			otherRoot := find(t, d, seq, keys[other][0])
			seq++
			if otherRoot == root {
				t.Fatalf("classes %d and %d share root %v", c, other, root)
			}
		}
	}

	d.ShutdownAllAndWait()
	dep.Wait()
}
