package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// PGDirectory resolves rooms and roles from the durable room/org store.
// It is consulted once per join; everything after that is in-memory.
type PGDirectory struct {
	pool *pgxpool.Pool
}

func NewPGDirectory(ctx context.Context, databaseURL string) (*PGDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Str("module", "app.directory").Msg("connected to database")
	return &PGDirectory{pool: pool}, nil
}

func (d *PGDirectory) Close() { d.pool.Close() }

func (d *PGDirectory) AuthorizeJoin(ctx context.Context, roomID domain.RoomID, identity domain.Identity) (core.JoinGrant, error) {
	var room domain.Room
	query := `SELECT id, org_id, name, public, max_participants FROM rooms WHERE id = $1`
	err := d.pool.QueryRow(ctx, query, string(roomID)).Scan(
		&room.ID, &room.OrgID, &room.Name, &room.Public, &room.MaxParticipants,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.JoinGrant{}, core.ErrRoomNotFound
	}
	if err != nil {
		return core.JoinGrant{}, fmt.Errorf("room lookup: %w", err)
	}

	query = `SELECT role FROM org_memberships WHERE org_id = $1 AND user_id = $2 AND active`
	var role domain.Role
	err = d.pool.QueryRow(ctx, query, string(room.OrgID), string(identity.UserID)).Scan(&role)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if !room.Public {
			return core.JoinGrant{}, core.ErrAccessDenied
		}
		// Outsiders in public rooms watch, they do not write.
		role = domain.RoleViewer
	case err != nil:
		return core.JoinGrant{}, fmt.Errorf("membership lookup: %w", err)
	}
	if !role.Valid() {
		role = domain.RoleViewer
	}
	return core.JoinGrant{Room: room, Role: role}, nil
}

// PGEventStore performs the durable writes behind comment/reaction events.
type PGEventStore struct {
	pool *pgxpool.Pool
}

func NewPGEventStore(d *PGDirectory) *PGEventStore {
	return &PGEventStore{pool: d.pool}
}

func (s *PGEventStore) RecordWrite(ctx context.Context, kind domain.EventKind, req domain.WriteRequest) (domain.Record, error) {
	rec := domain.Record{
		Kind:     kind,
		RoomID:   req.RoomID,
		UserID:   req.UserID,
		TargetID: req.TargetID,
		Body:     req.Body,
		Emoji:    req.Emoji,
	}
	var (
		query string
		args  []any
	)
	switch kind {
	case domain.EventComment:
		query = `INSERT INTO comments (room_id, user_id, target_id, body)
			VALUES ($1, $2, $3, $4) RETURNING id, created_at`
		args = []any{string(req.RoomID), string(req.UserID), req.TargetID, req.Body}
	case domain.EventReaction:
		query = `INSERT INTO reactions (room_id, user_id, target_id, emoji)
			VALUES ($1, $2, $3, $4) RETURNING id, created_at`
		args = []any{string(req.RoomID), string(req.UserID), req.TargetID, req.Emoji}
	default:
		return domain.Record{}, domain.ErrUnknownEventKind
	}
	var createdAt time.Time
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&rec.ID, &createdAt); err != nil {
		return domain.Record{}, fmt.Errorf("record %s: %w", kind, err)
	}
	rec.CreatedAt = createdAt.Format(time.RFC3339)
	return rec, nil
}
