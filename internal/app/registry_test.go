package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) countType(want string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(fr, &env)
		if env.Type == want {
			n++
		}
	}
	return n
}

func member(uid domain.UserID, ref domain.ConnRef, conn core.SignalConnection) core.MemberSession {
	return core.MemberSession{
		Ref:      ref,
		Identity: domain.Identity{UserID: uid, Name: string(uid), Role: domain.RoleMember},
		Role:     domain.RoleMember,
		Conn:     conn,
	}
}

func newHarness(maxParticipants int, interval time.Duration) (*Registry, *core.ThrottleGate, domain.Room) {
	presence := core.NewPresenceTable()
	gate := core.NewThrottleGate(interval)
	reg := NewRegistry(presence, gate, nil)
	room := domain.Room{ID: "R", Name: "whiteboard", MaxParticipants: maxParticipants}
	return reg, gate, room
}

// Mirrors the full protocol walkthrough: join, diff fan-out, capacity
// rejection, throttled cursor burst, leave diffs, room teardown.
func TestRegistryEndToEndScenario(t *testing.T) {
	reg, gate, room := newHarness(2, 50*time.Millisecond)
	connA, connB := &fakeConn{}, &fakeConn{}

	// A joins an empty room: snapshot holds only A.
	snapA, coordA, err := reg.Join(room, member("A", "ca", connA))
	if err != nil {
		t.Fatalf("A join: %v", err)
	}
	if len(snapA) != 1 {
		t.Fatalf("A snapshot = %d users, want 1 (self only)", len(snapA))
	}

	// B joins: A gets a join diff, B's snapshot holds A and B.
	snapB, coordB, err := reg.Join(room, member("B", "cb", connB))
	if err != nil {
		t.Fatalf("B join: %v", err)
	}
	if coordA != coordB {
		t.Fatal("A and B landed on different coordinators for one room")
	}
	if _, ok := snapB["A"]; !ok {
		t.Error("B's snapshot missing A")
	}
	if got := connA.countType(core.FramePresenceDiff); got != 1 {
		t.Errorf("A diff count after B join = %d, want 1", got)
	}

	// C bounces off the full room.
	if _, _, err := reg.Join(room, member("C", "cc", &fakeConn{})); err != core.ErrRoomFull {
		t.Fatalf("C join err = %v, want ErrRoomFull", err)
	}

	// A cursor burst: only the first sample within the interval fans out.
	coordA.Ephemeral("ca", core.FrameCursorMoved, json.RawMessage(`{"x":10,"y":20}`))
	coordA.Ephemeral("ca", core.FrameCursorMoved, json.RawMessage(`{"x":10,"y":20}`))
	coordA.Snapshot()
	if got := connB.countType(core.FrameCursorMoved); got != 1 {
		t.Errorf("B cursor:moved count = %d, want 1", got)
	}

	// B leaves: A sees the leave diff, a slot frees for C.
	coordB.Leave("cb")
	coordA.Snapshot()
	if got := connA.countType(core.FramePresenceDiff); got != 2 {
		t.Errorf("A diff count after B leave = %d, want 2", got)
	}
	if _, _, err := reg.Join(room, member("C", "cc", &fakeConn{})); err != nil {
		t.Fatalf("C join after slot freed: %v", err)
	}

	// Everyone out: the room closes and its throttle state is purged.
	coordA.Leave("ca")
	coordA.Leave("cc")
	waitFor(t, func() bool {
		_, live := reg.Get(room.ID)
		return !live
	})
	if got := gate.Entries(room.ID); got != 0 {
		t.Errorf("throttle entries after close = %d, want 0", got)
	}
}

func TestRegistryListsActiveRooms(t *testing.T) {
	reg, _, room := newHarness(0, 0)

	if got := len(reg.List()); got != 0 {
		t.Fatalf("initial room count = %d, want 0", got)
	}

	_, coord, err := reg.Join(room, member("A", "ca", &fakeConn{}))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rooms := reg.List()
	if len(rooms) != 1 || rooms[0].ID != room.ID || rooms[0].MemberCount != 1 {
		t.Fatalf("rooms = %+v", rooms)
	}

	coord.Leave("ca")
	waitFor(t, func() bool { return len(reg.List()) == 0 })
}

// A join racing the last leave must land on a fresh coordinator instead
// of the one that is shutting down.
func TestRegistryJoinLeaveRace(t *testing.T) {
	reg, _, room := newHarness(0, 0)

	for i := 0; i < 200; i++ {
		ref := domain.ConnRef(fmt.Sprintf("c%d", i))
		_, coord, err := reg.Join(room, member("A", ref, &fakeConn{}))
		if err != nil {
			t.Fatalf("iteration %d: join failed: %v", i, err)
		}
		done := make(chan struct{})
		go func() {
			coord.Leave(ref)
			close(done)
		}()
		// Overlap the next join with the leave.
		nextRef := domain.ConnRef(fmt.Sprintf("n%d", i))
		_, next, err := reg.Join(room, member("B", nextRef, &fakeConn{}))
		if err != nil {
			t.Fatalf("iteration %d: racing join failed: %v", i, err)
		}
		<-done
		next.Leave(nextRef)
	}

	waitFor(t, func() bool {
		_, live := reg.Get(room.ID)
		return !live
	})
}

func TestRegistryConcurrentJoins(t *testing.T) {
	reg, _, room := newHarness(0, 0)

	var wg sync.WaitGroup
	coords := make([]*core.Coordinator, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := domain.ConnRef(fmt.Sprintf("c%d", i))
			uid := domain.UserID(fmt.Sprintf("u%d", i))
			_, coord, err := reg.Join(room, member(uid, ref, &fakeConn{}))
			if err != nil {
				t.Errorf("join %d: %v", i, err)
				return
			}
			coords[i] = coord
		}(i)
	}
	wg.Wait()

	first := coords[0]
	for i, c := range coords {
		if c != first {
			t.Fatalf("join %d landed on a different coordinator", i)
		}
	}
	if got := first.MemberCount(); got != 32 {
		t.Errorf("member count = %d, want 32", got)
	}
	for i := 0; i < 32; i++ {
		first.Leave(domain.ConnRef(fmt.Sprintf("c%d", i)))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMemoryDirectoryAuthorization(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.PutRoom(domain.Room{ID: "private", OrgID: "acme", MaxParticipants: 10})
	dir.PutRoom(domain.Room{ID: "town-hall", OrgID: "acme", Public: true, MaxParticipants: 100})
	dir.PutMembership("acme", "alice", domain.RoleAdmin)

	ctx := context.Background()

	if _, err := dir.AuthorizeJoin(ctx, "nope", domain.Identity{UserID: "alice"}); err != core.ErrRoomNotFound {
		t.Errorf("unknown room err = %v, want ErrRoomNotFound", err)
	}
	if _, err := dir.AuthorizeJoin(ctx, "private", domain.Identity{UserID: "mallory"}); err != core.ErrAccessDenied {
		t.Errorf("outsider in private room err = %v, want ErrAccessDenied", err)
	}

	grant, err := dir.AuthorizeJoin(ctx, "private", domain.Identity{UserID: "alice"})
	if err != nil {
		t.Fatalf("member join: %v", err)
	}
	if grant.Role != domain.RoleAdmin {
		t.Errorf("role = %s, want admin", grant.Role)
	}

	// Outsiders may watch public rooms but only as viewers.
	grant, err = dir.AuthorizeJoin(ctx, "town-hall", domain.Identity{UserID: "mallory"})
	if err != nil {
		t.Fatalf("public join: %v", err)
	}
	if grant.Role != domain.RoleViewer {
		t.Errorf("public outsider role = %s, want viewer", grant.Role)
	}
	if grant.Role.CanWrite() {
		t.Error("viewer must not be able to write")
	}
}

func TestMemoryEventStore(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	rec, err := store.RecordWrite(ctx, domain.EventComment, domain.WriteRequest{
		RoomID: "R", UserID: "alice", Body: "looks good",
	})
	if err != nil {
		t.Fatalf("comment write: %v", err)
	}
	if rec.ID == "" || rec.Kind != domain.EventComment {
		t.Errorf("record = %+v", rec)
	}

	if _, err := store.RecordWrite(ctx, domain.EventKind("poke"), domain.WriteRequest{}); err == nil {
		t.Error("unknown kind must fail")
	}
	if got := len(store.Records()); got != 1 {
		t.Errorf("stored records = %d, want 1", got)
	}
}
