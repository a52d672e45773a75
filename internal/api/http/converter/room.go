package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/service"
)

type RoomResponse struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Owner        uuid.UUID  `json:"owner"`
	IsPublic     bool       `json:"is_public"`
	IsGlobal     bool       `json:"is_global"`
	Link         string     `json:"link"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type RoomListingResponse struct {
	RoomResponse
	MembersCount int64 `json:"members_count"`
}

type MemberResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type RoomDetailResponse struct {
	Room         *RoomResponse    `json:"room"`
	Members      []MemberResponse `json:"members"`
	MembersCount int              `json:"members_count"`
	Connections  int              `json:"connections"`
	IsOwner      bool             `json:"is_owner"`
}

type MessageResponse struct {
	ID        uint      `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	return &RoomResponse{
		ID:           r.ID,
		Code:         r.Code,
		Name:         r.Name,
		Description:  r.Description,
		Owner:        r.OwnerID,
		IsPublic:     r.IsPublic,
		IsGlobal:     r.IsGlobal(),
		Link:         "/rooms/" + r.Code + "/",
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		ExpiresAt:    r.ExpiresAt,
	}
}

func RoomsToApi(rooms []*domain.Room) []*RoomResponse {
	out := make([]*RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomToApi(r))
	}
	return out
}

func ListingsToApi(listings []service.RoomListing) []RoomListingResponse {
	out := make([]RoomListingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, RoomListingResponse{RoomResponse: *RoomToApi(l.Room), MembersCount: l.ActiveMembers})
	}
	return out
}

// DetailToApi renders a room detail as seen by viewer, which may be nil.
func DetailToApi(d *service.RoomDetail, viewer *domain.User) *RoomDetailResponse {
	members := make([]MemberResponse, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, MemberResponse{
			UserID:   m.UserID,
			Username: m.Username,
			JoinedAt: m.JoinedAt,
		})
	}

	return &RoomDetailResponse{
		Room:         RoomToApi(d.Room),
		Members:      members,
		MembersCount: len(members),
		Connections:  d.Connections,
		IsOwner:      viewer != nil && viewer.ID == d.Room.OwnerID,
	}
}

func MessagesToApi(messages []*domain.ChatMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{
			ID:        m.ID,
			UserID:    m.UserID,
			Username:  m.Username,
			Message:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return out
}
