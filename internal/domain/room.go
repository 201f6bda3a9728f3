package domain

type (
	RoomID string
	OrgID  string
)

// Room is the directory's view of a room: enough to authorize a join.
// Membership itself lives in the coordinator, not here.
type Room struct {
	ID              RoomID `json:"id"`
	OrgID           OrgID  `json:"org_id"`
	Name            string `json:"name"`
	Public          bool   `json:"public"`
	MaxParticipants int    `json:"max_participants"`
}
