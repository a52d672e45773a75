package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/presence"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *repository.MemoryStore
	tracker *presence.Tracker
	janitor *Janitor
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	log := slogdiscard.NewDiscardLogger()
	f.tracker = presence.NewTracker(f.store.Rooms(), f.store.Memberships(), 15*time.Minute, log,
		presence.WithClock(func() time.Time { return f.now }))
	f.janitor = New(f.store.Rooms(), f.tracker, "", 0, log)
	return f
}

func (f *fixture) room(t *testing.T, code string) *domain.Room {
	t.Helper()
	room := domain.NewRoom("Room "+code, "", uuid.New())
	room.Code = code
	require.NoError(t, f.store.Rooms().Create(context.Background(), room))
	return room
}

func (f *fixture) exists(t *testing.T, room *domain.Room) bool {
	t.Helper()
	_, err := f.store.Rooms().GetByID(context.Background(), room.ID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestSweepDeletesOnlyExpiredRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.room(t, "PAST01")
	_, err := f.store.Rooms().TouchActivity(ctx, past.ID, f.now, f.now.Add(-15*time.Minute))
	require.NoError(t, err)

	future := f.room(t, "FUTR01")
	_, err = f.store.Rooms().TouchActivity(ctx, future.ID, f.now, f.now.Add(time.Minute))
	require.NoError(t, err)

	res, err := f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.False(t, f.exists(t, past))
	assert.True(t, f.exists(t, future))
}

func TestSweepSchedulesEmptyRoomsWithoutDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idle := f.room(t, "IDLE01")

	busy := f.room(t, "BUSY01")
	_, err := f.tracker.Join(ctx, uuid.New(), busy)
	require.NoError(t, err)

	global := domain.NewGlobalRoom(uuid.New())
	require.NoError(t, f.store.Rooms().Create(ctx, global))

	res, err := f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)

	got, err := f.store.Rooms().GetByID(ctx, idle.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, f.now.Add(15*time.Minute), *got.ExpiresAt)

	got, err = f.store.Rooms().GetByCode(ctx, domain.GlobalRoomCode)
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)

	f.now = f.now.Add(time.Hour)
	res, err = f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.False(t, f.exists(t, idle))
	assert.True(t, f.exists(t, busy))
	assert.True(t, f.exists(t, global))
}

func TestExpiredRoomWithReturningMemberSurvives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "BACK01")
	user := uuid.New()

	_, err := f.tracker.Join(ctx, user, room)
	require.NoError(t, err)
	_, err = f.tracker.Leave(ctx, user, room)
	require.NoError(t, err)

	f.now = f.now.Add(16 * time.Minute)
	expired, err := f.store.Rooms().ListExpired(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	// the member returns after the scan but before the delete
	_, err = f.store.Memberships().Upsert(ctx, user, room.ID, true)
	require.NoError(t, err)

	deleted, err := f.store.Rooms().DeleteIfExpired(ctx, room.ID, f.now)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, f.exists(t, room))
}

func TestRoomLifecycleAfterLastLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "ABC123")
	u1 := domain.NewUser("U1", "")

	_, err := f.tracker.Join(ctx, u1.ID, room)
	require.NoError(t, err)
	require.NoError(t, f.store.Chat().Save(ctx, domain.NewChatMessage(room.ID, u1, "hello", f.now)))
	_, err = f.tracker.Leave(ctx, u1.ID, room)
	require.NoError(t, err)

	res, err := f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.True(t, f.exists(t, room))

	f.now = f.now.Add(16 * time.Minute)
	res, err = f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.False(t, f.exists(t, room))

	msgs, err := f.store.Chat().ListByRoom(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	_, err = f.store.Memberships().Get(ctx, u1.ID, room.ID)
	assert.ErrorIs(t, err, repository.ErrMembershipNotFound)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	j := New(f.store.Rooms(), f.tracker, "not a schedule", time.Second, slogdiscard.NewDiscardLogger())
	assert.Error(t, j.Start())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	j := New(f.store.Rooms(), f.tracker, "@every 1h", time.Second, slogdiscard.NewDiscardLogger())

	require.NoError(t, j.Start())
	assert.Error(t, j.Start(), "second start")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))
	require.NoError(t, j.Stop(ctx), "stopping twice is a no-op")
}
