package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

type membershipKey struct {
	userID uuid.UUID
	roomID uuid.UUID
}

// MemoryStore keeps every table behind one mutex, so each repository call is
// atomic with respect to the others just like a single SQL statement.
type MemoryStore struct {
	mu            sync.RWMutex
	rooms         map[uuid.UUID]*domain.Room
	codes         map[string]uuid.UUID
	memberships   map[membershipKey]*domain.Membership
	messages      []*domain.ChatMessage
	notifications []*domain.Notification
	users         map[uuid.UUID]*domain.User
	emails        map[string]uuid.UUID
	nextID        uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:       make(map[uuid.UUID]*domain.Room),
		codes:       make(map[string]uuid.UUID),
		memberships: make(map[membershipKey]*domain.Membership),
		users:       make(map[uuid.UUID]*domain.User),
		emails:      make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Rooms() *InMemoryRoomRepository { return &InMemoryRoomRepository{s: s} }

func (s *MemoryStore) Memberships() *InMemoryMembershipRepository {
	return &InMemoryMembershipRepository{s: s}
}

func (s *MemoryStore) Chat() *InMemoryChatRepository { return &InMemoryChatRepository{s: s} }

func (s *MemoryStore) Notifications() *InMemoryNotificationRepository {
	return &InMemoryNotificationRepository{s: s}
}

func (s *MemoryStore) Users() *InMemoryUserRepository { return &InMemoryUserRepository{s: s} }

func (s *MemoryStore) hasActiveMember(roomID uuid.UUID) bool {
	for key, m := range s.memberships {
		if key.roomID == roomID && m.Active {
			return true
		}
	}
	return false
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func copyRoom(room *domain.Room) *domain.Room {
	c := *room
	if room.ExpiresAt != nil {
		t := *room.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

type InMemoryRoomRepository struct {
	s *MemoryStore
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.codes[room.Code]; ok {
		return ErrRoomCodeExists
	}

	r.s.rooms[room.ID] = copyRoom(room)
	r.s.codes[room.Code] = room.ID
	return nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyRoom(room), nil
}

func (r *InMemoryRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.codes[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyRoom(r.s.rooms[id]), nil
}

func (r *InMemoryRoomRepository) List(ctx context.Context, filter RoomFilter) ([]RoomSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]RoomSummary, 0, len(r.s.rooms))
	for _, room := range r.s.rooms {
		if room.ExpiresAt != nil && !room.ExpiresAt.After(filter.Now) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(room.Name), search) &&
			!strings.Contains(strings.ToLower(room.Description), search) {
			continue
		}
		var active int64
		for key, m := range r.s.memberships {
			if key.roomID == room.ID && m.Active {
				active++
			}
		}
		result = append(result, RoomSummary{Room: copyRoom(room), ActiveMembers: active})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Room.CreatedAt.After(result[j].Room.CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRoomRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Room, error) {
	return r.filter(ctx, func(room *domain.Room) bool {
		return room.IsExpired(now)
	})
}

func (r *InMemoryRoomRepository) ListUnscheduledEmpty(ctx context.Context) ([]*domain.Room, error) {
	return r.filter(ctx, func(room *domain.Room) bool {
		return room.ExpiresAt == nil && !room.IsGlobal() && !r.s.hasActiveMember(room.ID)
	})
}

func (r *InMemoryRoomRepository) filter(ctx context.Context, keep func(*domain.Room) bool) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.Room, 0)
	for _, room := range r.s.rooms {
		if keep(room) {
			result = append(result, copyRoom(room))
		}
	}
	return result, nil
}

func (r *InMemoryRoomRepository) TouchActivity(ctx context.Context, id uuid.UUID, now, expiresAt time.Time) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.LastActivity = now.UTC()
	if room.IsGlobal() || r.s.hasActiveMember(id) {
		room.ExpiresAt = nil
	} else {
		t := expiresAt.UTC()
		room.ExpiresAt = &t
	}
	return copyRoom(room), nil
}

func (r *InMemoryRoomRepository) DeleteIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok || room.IsGlobal() || !room.IsExpired(now) || r.s.hasActiveMember(id) {
		return false, nil
	}
	r.s.deleteRoom(room)
	return true, nil
}

func (r *InMemoryRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	r.s.deleteRoom(room)
	return nil
}

// deleteRoom must be called with mu held.
func (s *MemoryStore) deleteRoom(room *domain.Room) {
	delete(s.codes, room.Code)
	delete(s.rooms, room.ID)
	for key := range s.memberships {
		if key.roomID == room.ID {
			delete(s.memberships, key)
		}
	}
	kept := s.messages[:0]
	for _, msg := range s.messages {
		if msg.RoomID != room.ID {
			kept = append(kept, msg)
		}
	}
	s.messages = kept
}

type InMemoryMembershipRepository struct {
	s *MemoryStore
}

func (r *InMemoryMembershipRepository) Upsert(ctx context.Context, userID, roomID uuid.UUID, active bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[roomID]; !ok {
		return false, ErrRoomNotFound
	}

	key := membershipKey{userID, roomID}
	if m, ok := r.s.memberships[key]; ok {
		m.Active = active
		return false, nil
	}

	r.s.memberships[key] = &domain.Membership{
		UserID:   userID,
		RoomID:   roomID,
		JoinedAt: time.Now().UTC(),
		Active:   active,
	}
	return true, nil
}

func (r *InMemoryMembershipRepository) Get(ctx context.Context, userID, roomID uuid.UUID) (*domain.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.memberships[membershipKey{userID, roomID}]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	c := *m
	return &c, nil
}

func (r *InMemoryMembershipRepository) CountActive(ctx context.Context, roomID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var total int64
	for key, m := range r.s.memberships {
		if key.roomID == roomID && m.Active {
			total++
		}
	}
	return total, nil
}

func (r *InMemoryMembershipRepository) ListActive(ctx context.Context, roomID uuid.UUID) ([]domain.ActiveMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	members := make([]domain.ActiveMember, 0)
	for key, m := range r.s.memberships {
		if key.roomID != roomID || !m.Active {
			continue
		}
		member := domain.ActiveMember{UserID: m.UserID, JoinedAt: m.JoinedAt}
		if user, ok := r.s.users[m.UserID]; ok {
			member.Username = user.Name
		}
		members = append(members, member)
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.After(members[j].JoinedAt)
	})
	return members, nil
}

func (r *InMemoryMembershipRepository) ListActiveRooms(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rooms := make([]*domain.Room, 0)
	for key, m := range r.s.memberships {
		if key.userID != userID || !m.Active {
			continue
		}
		if room, ok := r.s.rooms[key.roomID]; ok {
			rooms = append(rooms, copyRoom(room))
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

type InMemoryChatRepository struct {
	s *MemoryStore
}

func (r *InMemoryChatRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("chat message is nil")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msg.ID = r.s.id()
	c := *msg
	r.s.messages = append(r.s.messages, &c)
	return nil
}

func (r *InMemoryChatRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.ChatMessage, 0)
	for _, msg := range r.s.messages {
		if msg.RoomID == roomID {
			c := *msg
			result = append(result, &c)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

type InMemoryNotificationRepository struct {
	s *MemoryStore
}

func (r *InMemoryNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n == nil {
		return errors.New("notification is nil")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n.ID = r.s.id()
	c := *n
	r.s.notifications = append(r.s.notifications, &c)
	return nil
}

func (r *InMemoryNotificationRepository) ListByRecipient(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.Notification, 0)
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.RecipientID == userID {
			c := *n
			result = append(result, &c)
		}
	}
	return result, nil
}

type InMemoryUserRepository struct {
	s *MemoryStore
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if user.Email != "" {
		if _, ok := r.s.emails[user.Email]; ok {
			return ErrUserEmailExists
		}
		r.s.emails[user.Email] = user.ID
	}

	c := *user
	r.s.users[user.ID] = &c
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *user
	return &c, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; !ok {
		return ErrUserNotFound
	}

	c := *user
	r.s.users[user.ID] = &c
	if user.Email != "" {
		r.s.emails[user.Email] = user.ID
	}
	return nil
}
