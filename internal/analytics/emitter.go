// Package analytics publishes engine signals for external consumers.
// Delivery is fire-and-forget: the room engine never depends on the
// consumer being reachable.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

const (
	SubjectMembership = "syncforge.room.membership_changed"
	SubjectHFAccepted = "syncforge.room.hf_event_accepted"
)

type MembershipChangedPayload struct {
	RoomID      domain.RoomID `json:"room_id"`
	UserID      domain.UserID `json:"user_id"`
	Joined      bool          `json:"joined"`
	MemberCount int           `json:"member_count"`
	At          time.Time     `json:"at"`
}

type EventAcceptedPayload struct {
	RoomID    domain.RoomID `json:"room_id"`
	UserID    domain.UserID `json:"user_id"`
	EventType string        `json:"event_type"`
	At        time.Time     `json:"at"`
}

type NatsEmitter struct {
	nc *nats.Conn
}

// Connect dials NATS with endless reconnects; a broker outage must not
// surface to the rooms.
func Connect(url string) (*NatsEmitter, error) {
	nc, err := nats.Connect(url,
		nats.Name("syncforge-room-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	return &NatsEmitter{nc: nc}, nil
}

func (e *NatsEmitter) Close() {
	if e == nil || e.nc == nil {
		return
	}
	_ = e.nc.Drain()
}

func (e *NatsEmitter) MembershipChanged(roomID domain.RoomID, userID domain.UserID, joined bool, memberCount int) {
	e.publish(SubjectMembership, MembershipChangedPayload{
		RoomID:      roomID,
		UserID:      userID,
		Joined:      joined,
		MemberCount: memberCount,
		At:          time.Now(),
	})
}

func (e *NatsEmitter) EventAccepted(roomID domain.RoomID, userID domain.UserID, eventType string) {
	e.publish(SubjectHFAccepted, EventAcceptedPayload{
		RoomID:    roomID,
		UserID:    userID,
		EventType: eventType,
		At:        time.Now(),
	})
}

func (e *NatsEmitter) publish(subject string, v any) {
	if e == nil || e.nc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "analytics").Str("subject", subject).Msg("marshal signal")
		return
	}
	if err := e.nc.Publish(subject, b); err != nil {
		log.Debug().Err(err).Str("module", "analytics").Str("subject", subject).Msg("publish dropped")
	}
}
