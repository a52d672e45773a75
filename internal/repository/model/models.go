package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Code         string        `gorm:"size:10;uniqueIndex;not null"`
	Name         string        `gorm:"size:200;not null"`
	Description  string        `gorm:"type:text"`
	OwnerID      uuid.UUID     `gorm:"type:uuid;index;not null"`
	IsPublic     bool          `gorm:"not null"`
	CreatedAt    time.Time     `gorm:"not null"`
	LastActivity time.Time     `gorm:"not null"`
	ExpiresAt    *time.Time    `gorm:"index"`
	Memberships  []Membership  `gorm:"constraint:OnDelete:CASCADE"`
	Messages     []ChatMessage `gorm:"constraint:OnDelete:CASCADE"`
}

type Membership struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_room"`
	RoomID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_room;index"`
	JoinedAt  time.Time `gorm:"not null"`
	Active    bool      `gorm:"not null;index"`
	UpdatedAt time.Time
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uuid.UUID `gorm:"type:uuid;index;not null"`
	UserID    uuid.UUID `gorm:"type:uuid;not null"`
	Username  string    `gorm:"size:255;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index;not null"`
}

type Notification struct {
	ID          uint      `gorm:"primaryKey"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index:idx_notifications_recipient_read"`
	SenderID    uuid.UUID `gorm:"type:uuid"`
	Type        string    `gorm:"size:20;not null"`
	Title       string    `gorm:"size:200;not null"`
	Message     string    `gorm:"type:text"`
	Link        string    `gorm:"size:500"`
	IsRead      bool      `gorm:"not null;index:idx_notifications_recipient_read"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Email     *string   `gorm:"size:255;uniqueIndex:idx_users_email,where:email IS NOT NULL"`
	IsGuest   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// All lists every model in migration order.
func All() []any {
	return []any{&User{}, &Room{}, &Membership{}, &ChatMessage{}, &Notification{}}
}
