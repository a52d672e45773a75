// Package session runs one websocket connection inside a room: it owns the
// connection's registry entry, its membership side effects and its outbound
// queue.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// leaveTimeout bounds the storage writes made while closing, which must run
// even when the serving context is already cancelled.
const leaveTimeout = 5 * time.Second

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Transport is the subset of *websocket.Conn a session needs.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Session struct {
	id   string
	user *domain.User
	room *domain.Room
	conn Transport
	m    *Manager
	log  *slog.Logger

	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	attached  atomic.Bool
}

func (s *Session) ID() string            { return s.id }
func (s *Session) User() *domain.User    { return s.user }
func (s *Session) RoomCode() string      { return s.room.Code }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) UserID() uuid.UUID {
	if s.user == nil {
		return uuid.Nil
	}
	return s.user.ID
}

// Enqueue offers event to the writer without blocking. Events are dropped
// once the queue is full or the session has closed.
func (s *Session) Enqueue(event domain.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

// Run drives the session until the connection ends or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if s.user == nil {
		s.Close()
		return ErrUnauthenticated
	}

	if err := s.connect(ctx); err != nil {
		s.Close()
		return err
	}

	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	s.readLoop(ctx)
	s.Close()
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	res, err := s.m.tracker.Attach(ctx, s.user.ID, s.room, func() {
		s.m.registry.Add(s.room.Code, s)
		s.attached.Store(true)
	})
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		s.log.Info("room gone before join", sl.Err(err))
		return err
	case err != nil:
		// storage failed but Attach still registered the socket
		s.log.Error("failed to record membership", sl.Err(err))
	}
	s.state.Store(int32(StateActive))

	s.m.router.Broadcast(s.room.Code, domain.NewJoinEvent(s.user.Name), nil)

	if err == nil && res.Created && !s.room.IsGlobal() && s.room.OwnerID != s.user.ID && s.m.notifier != nil {
		s.m.notifier.NotifyNewMember(res.Room, s.user)
	}

	s.log.Info("session active")
	return nil
}

// Close moves the session to closed. Only the first call has any effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)

		if s.attached.Load() {
			s.disconnect()
		}

		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.m.cfg.WriteWait),
		)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("close transport", sl.Err(err))
		}
		s.m.forget(s)
		s.log.Info("session closed")
	})
}

func (s *Session) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	_, left, err := s.m.tracker.Detach(ctx, s.user.ID, s.room, func() int {
		s.m.registry.Remove(s.room.Code, s)
		return s.m.registry.UserSessions(s.room.Code, s.user.ID)
	})
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		s.log.Debug("room deleted before leave")
	case err != nil:
		s.log.Warn("failed to leave room", sl.Err(err))
	case left:
		s.log.Debug("membership inactive")
	}

	s.m.router.Broadcast(s.room.Code, domain.NewLeaveEvent(s.user.Name), nil)
}

func (s *Session) readLoop(ctx context.Context) {
	cfg := s.m.cfg
	s.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		mt, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read failed", sl.Err(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := s.m.router.Handle(ctx, s, raw); err != nil {
			s.log.Debug("frame dropped", sl.Err(err))
		}
	}
}

func (s *Session) writeLoop() {
	cfg := s.m.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case event := <-s.send:
			data, err := domain.EncodeEvent(event)
			if err != nil {
				s.log.Error("failed to encode event", sl.Err(err))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("write failed", sl.Err(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("ping failed", sl.Err(err))
				return
			}
		case <-s.done:
			return
		}
	}
}
