package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *repository.MemoryStore
	tracker *Tracker
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.tracker = NewTracker(
		f.store.Rooms(),
		f.store.Memberships(),
		15*time.Minute,
		slogdiscard.NewDiscardLogger(),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) room(t *testing.T, code string) *domain.Room {
	t.Helper()
	room := domain.NewRoom("Room "+code, "", uuid.New())
	room.Code = code
	require.NoError(t, f.store.Rooms().Create(context.Background(), room))
	return room
}

func TestJoinCreatesThenReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	user := uuid.New()

	res, err := f.tracker.Join(ctx, user, room)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Nil(t, res.Room.ExpiresAt)

	_, err = f.tracker.Leave(ctx, user, room)
	require.NoError(t, err)

	res, err = f.tracker.Join(ctx, user, room)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Nil(t, res.Room.ExpiresAt)

	m, err := f.store.Memberships().Get(ctx, user, room.ID)
	require.NoError(t, err)
	assert.True(t, m.Active)
}

func TestLeaveSchedulesExpiryWhenEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	u1, u2 := uuid.New(), uuid.New()

	_, err := f.tracker.Join(ctx, u1, room)
	require.NoError(t, err)
	_, err = f.tracker.Join(ctx, u2, room)
	require.NoError(t, err)

	touched, err := f.tracker.Leave(ctx, u1, room)
	require.NoError(t, err)
	assert.Nil(t, touched.ExpiresAt, "u2 is still active")

	f.now = f.now.Add(time.Minute)
	touched, err = f.tracker.Leave(ctx, u2, room)
	require.NoError(t, err)
	require.NotNil(t, touched.ExpiresAt)
	assert.Equal(t, f.now.Add(15*time.Minute), *touched.ExpiresAt)
	assert.Equal(t, f.now, touched.LastActivity)
}

func TestLeaveWithoutMembershipCreatesInactiveRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	user := uuid.New()

	_, err := f.tracker.Leave(ctx, user, room)
	require.NoError(t, err)

	m, err := f.store.Memberships().Get(ctx, user, room.ID)
	require.NoError(t, err)
	assert.False(t, m.Active)
}

func TestLeaveDeletedRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	user := uuid.New()
	_, err := f.tracker.Join(ctx, user, room)
	require.NoError(t, err)

	require.NoError(t, f.store.Rooms().Delete(ctx, room.ID))

	_, err = f.tracker.Leave(ctx, user, room)
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	_, err = f.store.Memberships().Get(ctx, user, room.ID)
	assert.ErrorIs(t, err, repository.ErrMembershipNotFound, "nothing written for a deleted room")
}

func TestGlobalRoomNeverExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	global := domain.NewGlobalRoom(uuid.New())
	require.NoError(t, f.store.Rooms().Create(ctx, global))
	user := uuid.New()

	_, err := f.tracker.Join(ctx, user, global)
	require.NoError(t, err)
	touched, err := f.tracker.Leave(ctx, user, global)
	require.NoError(t, err)
	assert.Nil(t, touched.ExpiresAt)
	assert.False(t, f.tracker.IsExpired(touched))
}

func TestIsExpired(t *testing.T) {
	f := newFixture(t)
	deadline := f.now

	room := &domain.Room{Code: "ABC123"}
	assert.False(t, f.tracker.IsExpired(room))

	room.ExpiresAt = &deadline
	assert.True(t, f.tracker.IsExpired(room), "deadline equal to now counts as expired")

	later := f.now.Add(time.Second)
	room.ExpiresAt = &later
	assert.False(t, f.tracker.IsExpired(room))
}

func TestDetachKeepsMembershipWhileOtherTabsRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	user := uuid.New()

	sessions := 0
	for i := 0; i < 2; i++ {
		_, err := f.tracker.Attach(ctx, user, room, func() { sessions++ })
		require.NoError(t, err)
	}
	require.Equal(t, 2, sessions)

	_, left, err := f.tracker.Detach(ctx, user, room, func() int { sessions--; return sessions })
	require.NoError(t, err)
	assert.False(t, left)
	m, err := f.store.Memberships().Get(ctx, user, room.ID)
	require.NoError(t, err)
	assert.True(t, m.Active)

	touched, left, err := f.tracker.Detach(ctx, user, room, func() int { sessions--; return sessions })
	require.NoError(t, err)
	assert.True(t, left)
	assert.NotNil(t, touched.ExpiresAt)
}

type brokenMemberships struct {
	repository.MembershipRepository
}

func (brokenMemberships) Upsert(context.Context, uuid.UUID, uuid.UUID, bool) (bool, error) {
	return false, errors.New("db unavailable")
}

func TestAttachRunsWhenMembershipWriteFails(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, "ABC123")
	tracker := NewTracker(f.store.Rooms(), brokenMemberships{f.store.Memberships()}, 0, slogdiscard.NewDiscardLogger())

	attached := false
	res, err := tracker.Attach(context.Background(), uuid.New(), room, func() { attached = true })
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrRoomNotFound)
	assert.True(t, attached)
	assert.Equal(t, room, res.Room)
}

func TestAttachSkippedWhenRoomGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	require.NoError(t, f.store.Rooms().Delete(ctx, room.ID))

	attached := false
	_, err := f.tracker.Attach(ctx, uuid.New(), room, func() { attached = true })
	require.ErrorIs(t, err, repository.ErrRoomNotFound)
	assert.False(t, attached)
}

func TestConcurrentTransitionsKeepSingleRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := users[i%len(users)]
			if i%2 == 0 {
				_, _ = f.tracker.Join(ctx, user, room)
			} else {
				_, _ = f.tracker.Leave(ctx, user, room)
			}
		}(i)
	}
	wg.Wait()

	for _, user := range users {
		_, err := f.tracker.Leave(ctx, user, room)
		require.NoError(t, err)
	}

	count, err := f.store.Memberships().CountActive(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := f.store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ExpiresAt, "empty room must carry a deadline")
	assert.Zero(t, f.tracker.locks.size())
}
