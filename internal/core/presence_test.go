package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

func meta(uid domain.UserID, ref domain.ConnRef) domain.PresenceMeta {
	return domain.PresenceMeta{
		UserID:  uid,
		ConnRef: ref,
		Name:    string(uid),
		Color:   domain.ColorFor(uid),
	}
}

func TestPresenceMultiDeviceMerge(t *testing.T) {
	table := NewPresenceTable()

	table.Track("r1", meta("alice", "d1"))
	snap := table.Track("r1", meta("alice", "d2"))
	if got := len(snap["alice"]); got != 2 {
		t.Fatalf("alice metas = %d, want 2", got)
	}

	// First device drops: user still present, no leave.
	diff := table.Untrack("r1", "d1")
	if len(diff.Leaves) != 0 {
		t.Errorf("unexpected leaves after first device untrack: %v", diff.Leaves)
	}
	if got := len(table.Snapshot("r1")["alice"]); got != 1 {
		t.Fatalf("alice metas after d1 untrack = %d, want 1", got)
	}

	// Last device drops: the user leaves.
	diff = table.Untrack("r1", "d2")
	if _, ok := diff.Leaves["alice"]; !ok {
		t.Error("expected alice in leaves after last device untrack")
	}
	if _, ok := table.Snapshot("r1")["alice"]; ok {
		t.Error("alice key must be gone after last device untrack")
	}
}

func TestPresenceTrackStampsJoinedAt(t *testing.T) {
	table := NewPresenceTable()

	snap := table.Track("r1", meta("alice", "d1"))
	if snap["alice"][0].JoinedAt.IsZero() {
		t.Error("JoinedAt not stamped on track")
	}
}

func TestPresenceDiffReplayReproducesSnapshot(t *testing.T) {
	table := NewPresenceTable()
	replayed := domain.PresenceSet{}

	record := func(d domain.PresenceDiff) { replayed.Apply(d) }
	trackDiff := func(m domain.PresenceMeta) {
		snap := table.Track("r1", m)
		d := domain.NewPresenceDiff()
		d.Joins[m.UserID] = snap[m.UserID]
		record(d)
	}

	trackDiff(meta("alice", "a1"))
	trackDiff(meta("bob", "b1"))
	trackDiff(meta("alice", "a2"))
	record(table.Untrack("r1", "b1"))
	record(table.Untrack("r1", "a1"))
	trackDiff(meta("carol", "c1"))
	record(table.Untrack("r1", "c1"))

	final := table.Snapshot("r1")
	if len(replayed) != len(final) {
		t.Fatalf("replayed users = %d, want %d", len(replayed), len(final))
	}
	for uid, metas := range final {
		got := replayed[uid]
		if len(got) != len(metas) {
			t.Errorf("user %s: replayed %d metas, want %d", uid, len(got), len(metas))
			continue
		}
		for i := range metas {
			if got[i].ConnRef != metas[i].ConnRef {
				t.Errorf("user %s meta %d: ref %s, want %s", uid, i, got[i].ConnRef, metas[i].ConnRef)
			}
		}
	}
}

func TestPresenceUpdateMeta(t *testing.T) {
	table := NewPresenceTable()
	table.Track("r1", meta("alice", "a1"))

	status := "typing"
	diff := table.UpdateMeta("r1", "a1", MetaUpdate{Status: &status})
	if len(diff.Leaves) != 0 {
		t.Error("update_meta must never produce leaves")
	}
	metas, ok := diff.Joins["alice"]
	if !ok || len(metas) != 1 {
		t.Fatalf("expected re-announce for alice, got %v", diff.Joins)
	}
	if metas[0].Status != "typing" {
		t.Errorf("status = %q, want %q", metas[0].Status, "typing")
	}
	// Untouched fields survive the merge.
	if metas[0].Name != "alice" {
		t.Errorf("name = %q, want alice", metas[0].Name)
	}
}

func TestPresenceUpdateMetaUnknownRef(t *testing.T) {
	table := NewPresenceTable()
	status := "away"
	diff := table.UpdateMeta("r1", "nope", MetaUpdate{Status: &status})
	if !diff.Empty() {
		t.Errorf("unknown ref must yield an empty diff, got %+v", diff)
	}
}

func TestPresenceUntrackUnknownRefIsNoop(t *testing.T) {
	table := NewPresenceTable()
	diff := table.Untrack("r1", "ghost")
	if !diff.Empty() {
		t.Errorf("expected empty diff, got %+v", diff)
	}
}

func TestPresenceRoomsIsolated(t *testing.T) {
	table := NewPresenceTable()
	table.Track("r1", meta("alice", "a1"))
	table.Track("r2", meta("alice", "a2"))

	table.DropRoom("r1")
	if len(table.Snapshot("r1")) != 0 {
		t.Error("r1 should be empty after drop")
	}
	if len(table.Snapshot("r2")) != 1 {
		t.Error("r2 must be unaffected by dropping r1")
	}
}

func TestPresenceSnapshotIsCopy(t *testing.T) {
	table := NewPresenceTable()
	table.Track("r1", meta("alice", "a1"))

	snap := table.Snapshot("r1")
	snap["alice"][0].Status = "mutated"
	delete(snap, "alice")

	fresh := table.Snapshot("r1")
	if len(fresh["alice"]) != 1 || fresh["alice"][0].Status != "" {
		t.Error("mutating a snapshot must not affect the table")
	}
}

func TestPresenceConcurrentTrackUntrack(t *testing.T) {
	table := NewPresenceTable()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := domain.ConnRef(fmt.Sprintf("c%d", i))
			uid := domain.UserID(fmt.Sprintf("u%d", i%10))
			table.Track("r1", meta(uid, ref))
			if i%2 == 0 {
				table.Untrack("r1", ref)
			}
		}(i)
	}
	wg.Wait()

	snap := table.Snapshot("r1")
	total := 0
	for _, metas := range snap {
		if len(metas) == 0 {
			t.Error("invariant violated: user key with empty device list")
		}
		total += len(metas)
	}
	if total != 25 {
		t.Errorf("live connections = %d, want 25", total)
	}
}
