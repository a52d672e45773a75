package domain

import (
	"time"

	"github.com/google/uuid"
)

// Membership is the durable record of a user's relationship to a room.
// There is at most one per (user, room).
type Membership struct {
	UserID   uuid.UUID
	RoomID   uuid.UUID
	JoinedAt time.Time
	Active   bool
}

// ActiveMember is a membership joined with the member's display name.
type ActiveMember struct {
	UserID   uuid.UUID
	Username string
	JoinedAt time.Time
}
