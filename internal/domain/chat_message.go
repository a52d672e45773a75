package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID        uint
	RoomID    uuid.UUID
	UserID    uuid.UUID
	Username  string
	Content   string
	CreatedAt time.Time
}

func NewChatMessage(roomID uuid.UUID, author *User, content string, at time.Time) *ChatMessage {
	msg := &ChatMessage{
		RoomID:    roomID,
		Content:   content,
		CreatedAt: at.UTC(),
	}
	if author != nil {
		msg.UserID = author.ID
		msg.Username = author.Name
	}
	return msg
}
