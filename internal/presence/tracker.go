// Package presence owns the membership lifecycle of users in rooms and the
// room expiry rule derived from it.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

const DefaultExpiryWindow = 15 * time.Minute

// JoinResult describes the outcome of a successful join.
type JoinResult struct {
	Room *domain.Room
	// Created is true when the membership row did not exist before.
	Created bool
}

type Tracker struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	log         *slog.Logger
	window      time.Duration
	now         func() time.Time
	locks       *keyedMutex
}

type Option func(*Tracker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(
	rooms repository.RoomRepository,
	memberships repository.MembershipRepository,
	window time.Duration,
	log *slog.Logger,
	opts ...Option,
) *Tracker {
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		rooms:       rooms,
		memberships: memberships,
		log:         log,
		window:      window,
		now:         time.Now,
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Now returns the tracker's current time in UTC.
func (t *Tracker) Now() time.Time {
	return t.now().UTC()
}

// Join marks userID as an active member of room, creating the membership if
// needed, and refreshes the room's activity.
func (t *Tracker) Join(ctx context.Context, userID uuid.UUID, room *domain.Room) (JoinResult, error) {
	return t.Attach(ctx, userID, room, nil)
}

// Attach is Join with attach run inside the same per-(user, room) critical
// section. attach runs unless the room is gone, even when the membership
// write fails; the error is still returned.
func (t *Tracker) Attach(ctx context.Context, userID uuid.UUID, room *domain.Room, attach func()) (JoinResult, error) {
	const op = "presence.tracker.join"
	log := t.log.With(
		slog.String("op", op),
		slog.String("room", room.Code),
		slog.String("user_id", userID.String()),
	)

	unlock := t.locks.lock(lockKey{userID: userID, roomID: room.ID})
	defer unlock()

	created, err := t.memberships.Upsert(ctx, userID, room.ID, true)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return JoinResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if attach != nil {
		attach()
	}
	if err != nil {
		log.Error("failed to activate membership", sl.Err(err))
		return JoinResult{Room: room}, fmt.Errorf("%s: %w", op, err)
	}

	touched, err := t.TouchActivity(ctx, room.ID)
	if err != nil {
		log.Error("failed to touch room activity", sl.Err(err))
		return JoinResult{Room: room, Created: created}, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("member active", slog.Bool("created", created))
	return JoinResult{Room: touched, Created: created}, nil
}

// Leave marks userID inactive in room. A missing membership is created
// inactive. When the room no longer exists nothing is written and
// repository.ErrRoomNotFound is returned.
func (t *Tracker) Leave(ctx context.Context, userID uuid.UUID, room *domain.Room) (*domain.Room, error) {
	unlock := t.locks.lock(lockKey{userID: userID, roomID: room.ID})
	defer unlock()

	return t.leave(ctx, userID, room)
}

// Detach runs detach inside the per-(user, room) critical section. detach
// returns how many sessions the user still holds in the room; the membership
// is only marked inactive when none remain. The returned bool reports
// whether it was.
func (t *Tracker) Detach(ctx context.Context, userID uuid.UUID, room *domain.Room, detach func() int) (*domain.Room, bool, error) {
	unlock := t.locks.lock(lockKey{userID: userID, roomID: room.ID})
	defer unlock()

	if remaining := detach(); remaining > 0 {
		return room, false, nil
	}

	touched, err := t.leave(ctx, userID, room)
	if err != nil {
		return nil, false, err
	}
	return touched, true, nil
}

func (t *Tracker) leave(ctx context.Context, userID uuid.UUID, room *domain.Room) (*domain.Room, error) {
	const op = "presence.tracker.leave"
	log := t.log.With(
		slog.String("op", op),
		slog.String("room", room.Code),
		slog.String("user_id", userID.String()),
	)

	if _, err := t.memberships.Upsert(ctx, userID, room.ID, false); err != nil {
		log.Warn("failed to deactivate membership", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	touched, err := t.TouchActivity(ctx, room.ID)
	if err != nil {
		log.Warn("failed to touch room activity", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if touched.ExpiresAt != nil {
		log.Debug("room scheduled for expiry", slog.Time("expires_at", *touched.ExpiresAt))
	}
	return touched, nil
}

// TouchActivity records activity on the room and recomputes its expiry:
// null for the global room or while anyone is active, otherwise now plus the
// expiry window.
func (t *Tracker) TouchActivity(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	now := t.Now()
	return t.rooms.TouchActivity(ctx, roomID, now, now.Add(t.window))
}

// IsExpired reports whether room has passed its expiry deadline.
func (t *Tracker) IsExpired(room *domain.Room) bool {
	return room.IsExpired(t.Now())
}
