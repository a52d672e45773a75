package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

var (
	ErrRoomExpired  = errors.New("room expired")
	ErrInvalidInput = errors.New("invalid input")
)

type RoomInteractor interface {
	CreateRoom(ctx context.Context, name, description string, owner *domain.User) (*domain.Room, error)
	ResolveRoom(ctx context.Context, code string) (*domain.Room, error)
	Visit(ctx context.Context, code string, user *domain.User) (*RoomDetail, error)
	VisitGlobal(ctx context.Context, user *domain.User) (*RoomDetail, error)
	ListRooms(ctx context.Context, search string) ([]RoomListing, error)
	RoomDetail(ctx context.Context, code string) (*RoomDetail, error)
	ChatHistory(ctx context.Context, code string, limit int) ([]*domain.ChatMessage, error)
	UserRooms(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error)
}

type UserInteractor interface {
	CreateUser(ctx context.Context, name string, email string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

type NotificationInteractor interface {
	ListNotifications(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error)
}

// NewMemberNotifier is told when a user joins a room for the first time.
type NewMemberNotifier interface {
	NotifyNewMember(room *domain.Room, member *domain.User)
}

type RoomListing struct {
	Room          *domain.Room
	ActiveMembers int64
}

type RoomDetail struct {
	Room    *domain.Room
	Members []domain.ActiveMember
	// Connections counts live websocket sessions in this process.
	Connections int
}
