package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationNewMember NotificationType = "new_member"
)

type Notification struct {
	ID          uint
	RecipientID uuid.UUID
	SenderID    uuid.UUID
	Type        NotificationType
	Title       string
	Message     string
	Link        string
	IsRead      bool
	CreatedAt   time.Time
}

// NewMemberNotification tells a room owner that someone joined their room.
func NewMemberNotification(room *Room, member *User) *Notification {
	return &Notification{
		RecipientID: room.OwnerID,
		SenderID:    member.ID,
		Type:        NotificationNewMember,
		Title:       fmt.Sprintf("%s joined your room", member.Name),
		Message:     fmt.Sprintf("%s is now studying in '%s'", member.Name, room.Name),
		Link:        fmt.Sprintf("/rooms/%s/", room.Code),
		CreatedAt:   time.Now().UTC(),
	}
}
