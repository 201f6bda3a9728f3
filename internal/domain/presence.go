package domain

import "time"

// ConnRef uniquely identifies one live connection. Two tabs of the same
// user carry the same UserID but never the same ConnRef.
type ConnRef string

// PresenceMeta is one live connection's entry in a room's presence set.
type PresenceMeta struct {
	UserID    UserID    `json:"user_id"`
	DeviceID  DeviceID  `json:"device_id,omitempty"`
	ConnRef   ConnRef   `json:"-"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Color     string    `json:"color"`
	Status    string    `json:"status,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// PresenceSet maps a user to their live connections. A key exists iff the
// user has at least one live connection in the room.
type PresenceSet map[UserID][]PresenceMeta

// PresenceDiff is the delta between two successive presence snapshots.
// A user in Joins may already be known to the receiver (re-announce on
// metadata change); a user in Leaves is gone from the room entirely.
type PresenceDiff struct {
	Joins  PresenceSet `json:"joins"`
	Leaves PresenceSet `json:"leaves"`
}

func NewPresenceDiff() PresenceDiff {
	return PresenceDiff{Joins: PresenceSet{}, Leaves: PresenceSet{}}
}

func (d PresenceDiff) Empty() bool {
	return len(d.Joins) == 0 && len(d.Leaves) == 0
}

func (s PresenceSet) Clone() PresenceSet {
	out := make(PresenceSet, len(s))
	for uid, metas := range s {
		cp := make([]PresenceMeta, len(metas))
		copy(cp, metas)
		out[uid] = cp
	}
	return out
}

// Apply replays a diff onto the set, in place. Joins replace the user's
// device list wholesale (the diff always carries the full current list for
// that user); leaves drop the key. Replaying every broadcast diff against
// an empty set reproduces the live snapshot.
func (s PresenceSet) Apply(d PresenceDiff) {
	for uid, metas := range d.Joins {
		cp := make([]PresenceMeta, len(metas))
		copy(cp, metas)
		s[uid] = cp
	}
	for uid := range d.Leaves {
		delete(s, uid)
	}
}
