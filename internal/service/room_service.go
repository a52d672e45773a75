package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/presence"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

const (
	maxCodeAttempts     = 5
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxDescriptionLen   = 2000
)

// ConnectionCounter reports live sessions per room.
type ConnectionCounter interface {
	Len(code string) int
}

type RoomService struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	chat        repository.ChatRepository
	tracker     *presence.Tracker
	connections ConnectionCounter
	notifier    NewMemberNotifier
	log         *slog.Logger
}

func NewRoomService(
	rooms repository.RoomRepository,
	memberships repository.MembershipRepository,
	chat repository.ChatRepository,
	tracker *presence.Tracker,
	connections ConnectionCounter,
	notifier NewMemberNotifier,
	log *slog.Logger,
) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		rooms:       rooms,
		memberships: memberships,
		chat:        chat,
		tracker:     tracker,
		connections: connections,
		notifier:    notifier,
		log:         log,
	}
}

// CreateRoom stores a new room owned by owner and makes owner its first
// active member.
func (s *RoomService) CreateRoom(ctx context.Context, name, description string, owner *domain.User) (*domain.Room, error) {
	const op = "service.room.create"
	log := s.log.With(slog.String("op", op))

	if owner == nil || owner.ID == uuid.Nil {
		return nil, fmt.Errorf("%s: %w: owner is required", op, ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if err := domain.ValidateRoomName(name); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidInput, err)
	}
	description = strings.TrimSpace(description)
	if len(description) > maxDescriptionLen {
		return nil, fmt.Errorf("%s: %w: description is too long", op, ErrInvalidInput)
	}

	var room *domain.Room
	for attempt := 0; ; attempt++ {
		room = domain.NewRoom(name, description, owner.ID)
		err := s.rooms.Create(ctx, room)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrRoomCodeExists) && attempt < maxCodeAttempts {
			log.Debug("room code taken, retrying", slog.String("room", room.Code))
			continue
		}
		log.Error("failed to create room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.tracker.Join(ctx, owner.ID, room)
	if err != nil {
		log.Error("failed to add owner as member", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("room created", slog.String("room", room.Code), slog.String("owner", owner.ID.String()))
	return res.Room, nil
}

// ResolveRoom looks a room up by code. A room found past its deadline is
// deleted and ErrRoomExpired returned.
func (s *RoomService) ResolveRoom(ctx context.Context, code string) (*domain.Room, error) {
	const op = "service.room.resolve"

	code = domain.NormalizeCode(code)
	if !domain.ValidCode(code) {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrRoomNotFound)
	}

	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !s.tracker.IsExpired(room) {
		return room, nil
	}

	log := s.log.With(slog.String("op", op), slog.String("room", code))
	deleted, err := s.rooms.DeleteIfExpired(ctx, room.ID, s.tracker.Now())
	if err != nil {
		log.Error("failed to delete expired room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if deleted {
		log.Info("expired room deleted on access")
		return nil, fmt.Errorf("%s: %w", op, ErrRoomExpired)
	}

	// someone became active after the deadline; the stale deadline is cleared
	touched, err := s.tracker.TouchActivity(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return touched, nil
}

// Visit is the page-load join: it resolves the room, makes user an active
// member and notifies the owner of first-time members.
func (s *RoomService) Visit(ctx context.Context, code string, user *domain.User) (*RoomDetail, error) {
	const op = "service.room.visit"

	room, err := s.ResolveRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.visit(ctx, op, room, user)
}

// VisitGlobal creates the global room on first use and joins user to it.
func (s *RoomService) VisitGlobal(ctx context.Context, user *domain.User) (*RoomDetail, error) {
	const op = "service.room.visit_global"

	owner := uuid.Nil
	if user != nil {
		owner = user.ID
	}
	room, err := s.EnsureGlobalRoom(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.visit(ctx, op, room, user)
}

func (s *RoomService) visit(ctx context.Context, op string, room *domain.Room, user *domain.User) (*RoomDetail, error) {
	if user == nil {
		return nil, fmt.Errorf("%s: %w: user is required", op, ErrInvalidInput)
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("room", room.Code),
		slog.String("user_id", user.ID.String()),
	)

	res, err := s.tracker.Join(ctx, user.ID, room)
	if err != nil {
		log.Error("failed to join room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res.Created && !room.IsGlobal() && room.OwnerID != user.ID && s.notifier != nil {
		s.notifier.NotifyNewMember(res.Room, user)
	}

	return s.detail(ctx, op, res.Room)
}

// EnsureGlobalRoom returns the global room, creating it if it does not exist.
func (s *RoomService) EnsureGlobalRoom(ctx context.Context, owner uuid.UUID) (*domain.Room, error) {
	const op = "service.room.ensure_global"

	room, err := s.rooms.GetByCode(ctx, domain.GlobalRoomCode)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	room = domain.NewGlobalRoom(owner)
	if err := s.rooms.Create(ctx, room); err != nil {
		if !errors.Is(err, repository.ErrRoomCodeExists) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// created concurrently
		existing, err := s.rooms.GetByCode(ctx, domain.GlobalRoomCode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return existing, nil
	}

	s.log.Info("global room created", slog.String("op", op))
	return room, nil
}

func (s *RoomService) ListRooms(ctx context.Context, search string) ([]RoomListing, error) {
	const op = "service.room.list"

	summaries, err := s.rooms.List(ctx, repository.RoomFilter{
		Now:    s.tracker.Now(),
		Search: strings.TrimSpace(search),
	})
	if err != nil {
		s.log.Error("failed to list rooms", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	listings := make([]RoomListing, 0, len(summaries))
	for _, summary := range summaries {
		listings = append(listings, RoomListing{Room: summary.Room, ActiveMembers: summary.ActiveMembers})
	}
	return listings, nil
}

func (s *RoomService) RoomDetail(ctx context.Context, code string) (*RoomDetail, error) {
	const op = "service.room.detail"

	room, err := s.ResolveRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, op, room)
}

func (s *RoomService) detail(ctx context.Context, op string, room *domain.Room) (*RoomDetail, error) {
	members, err := s.memberships.ListActive(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	detail := &RoomDetail{Room: room, Members: members}
	if s.connections != nil {
		detail.Connections = s.connections.Len(room.Code)
	}
	return detail, nil
}

// ChatHistory returns up to limit of the latest messages, oldest first.
func (s *RoomService) ChatHistory(ctx context.Context, code string, limit int) ([]*domain.ChatMessage, error) {
	const op = "service.room.chat_history"

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	room, err := s.ResolveRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	messages, err := s.chat.ListByRoom(ctx, room.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return messages, nil
}

// UserRooms lists the rooms userID is currently active in.
func (s *RoomService) UserRooms(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error) {
	const op = "service.room.user_rooms"

	rooms, err := s.memberships.ListActiveRooms(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rooms, nil
}
