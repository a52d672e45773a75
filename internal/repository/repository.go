package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomCodeExists     = errors.New("room code already exists")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserEmailExists    = errors.New("user with email already exists")
)

// RoomFilter narrows room listings. Rooms expired at Now are never listed.
type RoomFilter struct {
	Now    time.Time
	Search string
}

// RoomSummary is a listed room with its number of active members.
type RoomSummary struct {
	Room          *domain.Room
	ActiveMembers int64
}

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	List(ctx context.Context, filter RoomFilter) ([]RoomSummary, error)
	// ListExpired returns rooms whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Room, error)
	// ListUnscheduledEmpty returns non-global rooms without an expiry and
	// without active members.
	ListUnscheduledEmpty(ctx context.Context) ([]*domain.Room, error)
	// TouchActivity sets last_activity to now and recomputes expires_at in a
	// single statement: NULL for the global room or a room with an active
	// membership, expiresAt otherwise.
	TouchActivity(ctx context.Context, id uuid.UUID, now, expiresAt time.Time) (*domain.Room, error)
	// DeleteIfExpired removes the room only if, at the moment of deletion, it
	// is non-global, expired at now and has no active membership. Memberships
	// and chat messages go with it.
	DeleteIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type MembershipRepository interface {
	// Upsert sets the membership's active flag, creating the row if needed.
	// created reports whether a new row was inserted.
	Upsert(ctx context.Context, userID, roomID uuid.UUID, active bool) (created bool, err error)
	Get(ctx context.Context, userID, roomID uuid.UUID) (*domain.Membership, error)
	CountActive(ctx context.Context, roomID uuid.UUID) (int64, error)
	ListActive(ctx context.Context, roomID uuid.UUID) ([]domain.ActiveMember, error)
	ListActiveRooms(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error)
}

type ChatRepository interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error
	// ListByRoom returns the latest limit messages, oldest first.
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
