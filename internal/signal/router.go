// Package signal decodes client frames and fans the resulting events out to
// the sessions of a room.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/registry"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

var ErrRoomGone = errors.New("room no longer exists")

// Sender is the session a frame arrived on.
type Sender interface {
	registry.Subscriber
	User() *domain.User
	RoomCode() string
}

type RoomLookup interface {
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
}

type ChatWriter interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error
}

type Router struct {
	registry *registry.Registry
	rooms    RoomLookup
	chat     ChatWriter
	log      *slog.Logger
	now      func() time.Time
}

func NewRouter(reg *registry.Registry, rooms RoomLookup, chat ChatWriter, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		registry: reg,
		rooms:    rooms,
		chat:     chat,
		log:      log,
		now:      time.Now,
	}
}

// Handle decodes raw and delivers the resulting event. Frames that cannot be
// decoded are dropped and the error returned for the caller to log; the
// session is never closed because of them.
func (r *Router) Handle(ctx context.Context, from Sender, raw []byte) error {
	const op = "signal.router.handle"

	frame, err := DecodeFrame(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user := from.User()
	code := from.RoomCode()
	everyone := func(registry.Subscriber) bool { return false }
	// webrtc negotiation is never echoed back to any tab of the sending user
	othersOnly := func(sub registry.Subscriber) bool { return sub.UserID() == user.ID }

	switch f := frame.(type) {
	case ChatFrame:
		at := r.now().UTC()
		if err := r.persistChat(ctx, code, user, f.Message, at); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		r.Broadcast(code, domain.NewChatEvent(user.Name, f.Message, at), everyone)
	case OfferFrame:
		r.Broadcast(code, domain.NewOfferEvent(user.Name, f.Offer), othersOnly)
	case AnswerFrame:
		r.Broadcast(code, domain.NewAnswerEvent(user.Name, f.Answer), othersOnly)
	case ICEFrame:
		r.Broadcast(code, domain.NewICEEvent(user.Name, f.Candidate), othersOnly)
	case TimerFrame:
		r.Broadcast(code, domain.NewTimerEvent(user.Name, f.Action, f.Minutes), everyone)
	}
	return nil
}

// persistChat stores the message. Only a missing room is reported; storage
// failures are logged and the message is still delivered.
func (r *Router) persistChat(ctx context.Context, code string, user *domain.User, text string, at time.Time) error {
	log := r.log.With(
		slog.String("op", "signal.router.persist_chat"),
		slog.String("room", code),
	)

	room, err := r.rooms.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return ErrRoomGone
	}
	if err != nil {
		log.Error("failed to resolve room", sl.Err(err))
		return nil
	}

	if err := r.chat.Save(ctx, domain.NewChatMessage(room.ID, user, text, at)); err != nil {
		log.Error("failed to save chat message", sl.Err(err))
	}
	return nil
}

// Broadcast enqueues event on every session of the room for which exclude
// returns false. It returns the number of sessions that accepted the event.
func (r *Router) Broadcast(code string, event domain.Event, exclude func(registry.Subscriber) bool) int {
	delivered := 0
	for _, sub := range r.registry.Members(code) {
		if exclude != nil && exclude(sub) {
			continue
		}
		if !sub.Enqueue(event) {
			r.log.Debug("outbound queue full, event dropped",
				slog.String("room", code),
				slog.String("session", sub.ID()),
				slog.String("type", string(event.EventType())),
			)
			continue
		}
		delivered++
	}
	return delivered
}
