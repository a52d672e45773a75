// Package registry tracks which live sessions are connected to which room.
// It is in-memory only and never treated as membership truth.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
)

// Subscriber is a live session able to receive room events.
type Subscriber interface {
	ID() string
	UserID() uuid.UUID
	// Enqueue hands the event to the subscriber's outbound queue without
	// blocking. It reports false when the event was dropped.
	Enqueue(event domain.Event) bool
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber
}

func New() *Registry {
	return &Registry{rooms: make(map[string]map[string]Subscriber)}
}

// Add inserts sub into the room's set. Adding the same session twice is a no-op.
func (r *Registry) Add(code string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[code]
	if !ok {
		set = make(map[string]Subscriber)
		r.rooms[code] = set
	}
	set[sub.ID()] = sub
}

// Remove deletes sub from the room and prunes the room when it becomes empty.
func (r *Registry) Remove(code string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[code]
	if !ok {
		return
	}
	delete(set, sub.ID())
	if len(set) == 0 {
		delete(r.rooms, code)
	}
}

// Members returns a snapshot of the sessions in a room.
func (r *Registry) Members(code string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[code]
	members := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		members = append(members, sub)
	}
	return members
}

// UserSessions counts the live sessions userID holds in a room.
func (r *Registry) UserSessions(code string, userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sub := range r.rooms[code] {
		if sub.UserID() == userID {
			n++
		}
	}
	return n
}

func (r *Registry) Len(code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[code])
}

// Rooms lists the codes that currently have at least one session.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	return codes
}
