package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/presence"
	"github.com/immxrtalbeast/studyroom/internal/registry"
	"github.com/immxrtalbeast/studyroom/internal/signal"
)

// NewMemberNotifier is told when a user becomes a member of a room for the
// first time. Implementations must not block.
type NewMemberNotifier interface {
	NotifyNewMember(room *domain.Room, member *domain.User)
}

type Config struct {
	SendQueueSize  int
	MaxMessageSize int64
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// Manager creates sessions and keeps track of the live ones.
type Manager struct {
	registry *registry.Registry
	tracker  *presence.Tracker
	router   *signal.Router
	notifier NewMemberNotifier
	cfg      Config
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewManager(
	reg *registry.Registry,
	tracker *presence.Tracker,
	router *signal.Router,
	notifier NewMemberNotifier,
	cfg Config,
	log *slog.Logger,
) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		registry: reg,
		tracker:  tracker,
		router:   router,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// NewSession prepares a session for conn. user may be nil, in which case Run
// closes the connection without touching any room state.
func (m *Manager) NewSession(conn Transport, user *domain.User, room *domain.Room) *Session {
	s := &Session{
		id:   uuid.NewString(),
		user: user,
		room: room,
		conn: conn,
		m:    m,
		send: make(chan domain.Event, m.cfg.SendQueueSize),
		done: make(chan struct{}),
	}

	attrs := []any{
		slog.String("session", s.id),
		slog.String("room", room.Code),
	}
	if user != nil {
		attrs = append(attrs, slog.String("user", user.Name))
	}
	s.log = m.log.With(attrs...)
	s.state.Store(int32(StateConnecting))

	m.mu.Lock()
	m.sessions[s.id] = s
	m.wg.Add(1)
	m.mu.Unlock()
	return s
}

// Serve runs a new session for conn and blocks until it closes.
func (m *Manager) Serve(ctx context.Context, conn Transport, user *domain.User, room *domain.Room) error {
	return m.NewSession(conn, user, room).Run(ctx)
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.id]; ok {
		delete(m.sessions, s.id)
		m.wg.Done()
	}
}

// Active returns the number of sessions that have not closed yet.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session and waits for their leave transitions
// to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	m.log.Info("closing sessions", slog.Int("count", len(live)))
	for _, s := range live {
		go s.Close()
	}

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
