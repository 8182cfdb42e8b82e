package types

import "testing"

func TestKeyPacking(t *testing.T) {
	cases := []struct {
		shard uint16
		local uint64
	}{
		{0, 0},
		{0, 1},
		{3, 42},
		{65535, MaxLocalID},
	}

	for _, tc := range cases {
		k := NewKey(tc.shard, tc.local)
		if k.Shard() != tc.shard {
			t.Errorf("NewKey(%d,%d).Shard() = %d, want %d", tc.shard, tc.local, k.Shard(), tc.shard)
		}
		if k.LocalID() != tc.local {
			t.Errorf("NewKey(%d,%d).LocalID() = %d, want %d", tc.shard, tc.local, k.LocalID(), tc.local)
		}
	}
}

func TestKeyOrdering(t *testing.T) {
	// Keys on a higher shard compare greater than any key on a lower shard.
	if !(NewKey(1, 0) > NewKey(0, MaxLocalID)) {
		t.Error("Key(1,0) should order after Key(0,max)")
	}
	if !(NewKey(0, 7) < NewKey(0, 8)) {
		t.Error("Key(0,7) should order before Key(0,8)")
	}
}

func TestNewKeyRejectsWideLocalID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewKey with 49-bit local id should panic")
		}
	}()
	NewKey(0, MaxLocalID+1)
}

func TestReqIDPacking(t *testing.T) {
	r := NewReqID(12, 900)
	if r.Driver() != 12 {
		t.Errorf("Driver() = %d, want 12", r.Driver())
	}
	if r.Seq() != 900 {
		t.Errorf("Seq() = %d, want 900", r.Seq())
	}
}

func TestTargetShard(t *testing.T) {
	node := NewKey(5, 1)
	to := NewKey(2, 9)

	cases := []struct {
		name string
		msg  ShardMessage
		want uint16
	}{
		{"add_node", AddNode(7, NewReqID(0, 1)), 7},
		{"union", Union(node, to, node, NewReqID(0, 2)), 5},
		{"set_child", SetChild(to, node, NewReqID(0, 3)), 2},
		{"set_sibling", SetSibling(node, to, NewReqID(0, 4)), 5},
		{"set_parent", SetParent(node, to), 5},
		{"find", Find(to, to, NewReqID(0, 5)), 2},
		{"shutdown", Shutdown(3, NewReqID(0, 6)), 3},
	}

	for _, tc := range cases {
		if got := tc.msg.TargetShard(); got != tc.want {
			t.Errorf("%s: TargetShard() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestTargetDriver(t *testing.T) {
	req := NewReqID(9, 77)
	for _, m := range []DriverMessage{
		AddNodeDone(req, NewKey(0, 0)),
		UnionDone(req),
		FindDone(req, NewKey(1, 0)),
		ShutdownDone(req),
	} {
		if m.TargetDriver() != 9 {
			t.Errorf("op %d: TargetDriver() = %d, want 9", m.Op, m.TargetDriver())
		}
	}
}
