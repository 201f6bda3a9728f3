// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"hash/fnv"
)

const (
	MaxUserIDLen = 36
	MaxNameLen   = 64
)

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrUserIDEmpty = errors.New("user id empty")
)

type (
	UserID   string
	DeviceID string
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// CanWrite reports whether the role may produce durable writes
// (comments, reactions). Viewers are read-only.
func (r Role) CanWrite() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Identity is resolved once per connection from the client's token.
type Identity struct {
	UserID    UserID   `json:"user_id"`
	DeviceID  DeviceID `json:"device_id,omitempty"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Role      Role     `json:"role,omitempty"`
}

func NewIdentity(userID UserID, deviceID DeviceID, name, avatarURL string) (Identity, error) {
	if userID == "" {
		return Identity{}, ErrUserIDEmpty
	}
	if len(name) > MaxNameLen {
		return Identity{}, ErrNameTooLong
	}
	return Identity{
		UserID:    userID,
		DeviceID:  deviceID,
		Name:      name,
		AvatarURL: avatarURL,
	}, nil
}

// colorPalette matches the range the web client renders; assignment must be
// stable across reconnects, so it is derived from the user id alone.
var colorPalette = []string{
	"#f44336", "#e91e63", "#9c27b0", "#673ab7",
	"#3f51b5", "#2196f3", "#00bcd4", "#009688",
	"#4caf50", "#8bc34a", "#ffc107", "#ff9800",
}

// ColorFor returns the deterministic display color for a user.
func ColorFor(id UserID) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
