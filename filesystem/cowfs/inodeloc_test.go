package cowfs

import "testing"

func TestLiveInodeLocTableRoundTrip(t *testing.T) {
	store := newTestStore(t, 4)
	table := NewInodeLocTable(store, 0, 2048)
	live := table.(*liveInodeLocTable)
	if err := live.FormatNull(2); err != nil {
		t.Fatalf("FormatNull failed: %v", err)
	}

	for _, num := range []uint32{0, 1, 1023, 1024, 2047} {
		slot, err := table.Get(num)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", num, err)
		}
		if slot != NullSlot {
			t.Errorf("Get(%d) = %d before any Set, want NullSlot", num, slot)
		}
	}

	if err := table.Set(1024, 77); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	slot, err := table.Get(1024)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if slot != 77 {
		t.Errorf("Get(1024) = %d, want 77", slot)
	}
	// the neighboring entry, the last one of the preceding block, must be untouched.
	if slot, err := table.Get(1023); err != nil || slot != NullSlot {
		t.Errorf("Get(1023) = %d, %v, want NullSlot, nil", slot, err)
	}
}

func TestLiveInodeLocTableOutOfRange(t *testing.T) {
	store := newTestStore(t, 4)
	table := NewInodeLocTable(store, 0, 16)
	if _, err := table.Get(16); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
	if err := table.Set(16, 0); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
}

func TestSnapshotInodeLocTableIsReadOnly(t *testing.T) {
	snap := newSnapshotInodeLocTable(8)
	if err := snap.Set(0, 5); err == nil {
		t.Fatalf("expected Set on a snapshot table to fail")
	}
	if err := snap.setDuringReplay(0, 5); err != nil {
		t.Fatalf("setDuringReplay failed: %v", err)
	}
	slot, err := snap.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if slot != 5 {
		t.Errorf("Get(0) = %d, want 5", slot)
	}
	if err := snap.setDuringReplay(8, 1); err == nil {
		t.Fatalf("expected an out-of-range error from setDuringReplay")
	}
}
