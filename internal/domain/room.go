package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
)

const (
	// GlobalRoomCode identifies the public room that never expires.
	GlobalRoomCode = "GLOBAL"

	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var generateCode = mustCodeGenerator()

// Room is a study room addressed by its short code.
type Room struct {
	ID           uuid.UUID
	Code         string
	Name         string
	Description  string
	OwnerID      uuid.UUID
	IsPublic     bool
	CreatedAt    time.Time
	LastActivity time.Time
	// ExpiresAt is nil while the room has active members or is global.
	ExpiresAt *time.Time
}

// NewRoom constructs a room with a freshly generated code.
func NewRoom(name, description string, owner uuid.UUID) *Room {
	now := time.Now().UTC()
	return &Room{
		ID:           uuid.New(),
		Code:         generateCode(),
		Name:         name,
		Description:  description,
		OwnerID:      owner,
		IsPublic:     true,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// NewGlobalRoom constructs the distinguished global room.
func NewGlobalRoom(owner uuid.UUID) *Room {
	room := NewRoom("Global Chat Room", "A public space where everyone can chat and study together!", owner)
	room.Code = GlobalRoomCode
	return room
}

func (r *Room) IsGlobal() bool {
	return r != nil && r.Code == GlobalRoomCode
}

// IsExpired reports whether the room's expiry deadline has been reached.
func (r *Room) IsExpired(now time.Time) bool {
	if r == nil || r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// NormalizeCode upper-cases and trims a user supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code looks like a room code: six uppercase
// alphanumerics, or the global room code.
func ValidCode(code string) bool {
	if code == GlobalRoomCode {
		return true
	}
	if len(code) != codeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return false
		}
	}
	return true
}

// ValidateRoomName checks the user supplied display name.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("room name is required")
	}
	if len(name) > 200 {
		return errors.New("room name is too long")
	}
	return nil
}

func mustCodeGenerator() func() string {
	gen, err := nanoid.CustomASCII(codeAlphabet, codeLength)
	if err != nil {
		panic("room code generator: " + err.Error())
	}
	return gen
}
