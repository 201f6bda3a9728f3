package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestRoleCanWrite(t *testing.T) {
	writers := []Role{RoleOwner, RoleAdmin, RoleMember}
	for _, r := range writers {
		if !r.CanWrite() {
			t.Errorf("%s.CanWrite() = false, want true", r)
		}
	}
	if RoleViewer.CanWrite() {
		t.Error("viewer must be read-only")
	}
	if Role("ghost").CanWrite() {
		t.Error("unknown role must not write")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer} {
		if !r.Valid() {
			t.Errorf("%s.Valid() = false", r)
		}
	}
	if Role("superuser").Valid() {
		t.Error("made-up role reported valid")
	}
}

func TestNewIdentityValidation(t *testing.T) {
	if _, err := NewIdentity("", "d1", "Ada", ""); !errors.Is(err, ErrUserIDEmpty) {
		t.Errorf("empty user id: err = %v, want ErrUserIDEmpty", err)
	}
	long := strings.Repeat("x", MaxNameLen+1)
	if _, err := NewIdentity("u1", "d1", long, ""); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("oversized name: err = %v, want ErrNameTooLong", err)
	}
	id, err := NewIdentity("u1", "d1", "Ada", "https://cdn/a.png")
	if err != nil {
		t.Fatalf("valid identity rejected: %v", err)
	}
	if id.UserID != "u1" || id.DeviceID != "d1" {
		t.Errorf("identity fields = %+v", id)
	}
}

func TestColorForStable(t *testing.T) {
	a := ColorFor("alice")
	for i := 0; i < 10; i++ {
		if got := ColorFor("alice"); got != a {
			t.Fatalf("color changed across calls: %s vs %s", got, a)
		}
	}
	if !strings.HasPrefix(a, "#") || len(a) != 7 {
		t.Errorf("color %q is not a hex triplet", a)
	}
}

func TestPresenceSetApplyRoundTrip(t *testing.T) {
	before := PresenceSet{
		"alice": {{UserID: "alice", ConnRef: "a1"}},
		"bob":   {{UserID: "bob", ConnRef: "b1"}},
	}
	diff := NewPresenceDiff()
	diff.Joins["carol"] = []PresenceMeta{{UserID: "carol", ConnRef: "c1"}}
	diff.Leaves["bob"] = []PresenceMeta{{UserID: "bob", ConnRef: "b1"}}

	after := before.Clone()
	after.Apply(diff)

	if _, ok := after["bob"]; ok {
		t.Error("bob survived a leave diff")
	}
	if len(after["carol"]) != 1 {
		t.Error("carol missing after join diff")
	}
	// Clone means the original is untouched.
	if _, ok := before["bob"]; !ok {
		t.Error("Apply on the clone mutated the source set")
	}
}
