package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	_ RoomRepository         = (*GormRoomRepository)(nil)
	_ MembershipRepository   = (*GormMembershipRepository)(nil)
	_ ChatRepository         = (*GormChatRepository)(nil)
	_ NotificationRepository = (*GormNotificationRepository)(nil)
	_ UserRepository         = (*GormUserRepository)(nil)
	_ RoomRepository         = (*InMemoryRoomRepository)(nil)
	_ MembershipRepository   = (*InMemoryMembershipRepository)(nil)
	_ ChatRepository         = (*InMemoryChatRepository)(nil)
	_ NotificationRepository = (*InMemoryNotificationRepository)(nil)
	_ UserRepository         = (*InMemoryUserRepository)(nil)
)

type stores struct {
	rooms         RoomRepository
	memberships   MembershipRepository
	chat          ChatRepository
	notifications NotificationRepository
	users         UserRepository
}

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would otherwise get its own empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func implementations() map[string]func(t *testing.T) stores {
	return map[string]func(t *testing.T) stores{
		"gorm": func(t *testing.T) stores {
			db := setupTestDB(t)
			return stores{
				rooms:         NewGormRoomRepository(db),
				memberships:   NewGormMembershipRepository(db),
				chat:          NewGormChatRepository(db),
				notifications: NewGormNotificationRepository(db),
				users:         NewGormUserRepository(db),
			}
		},
		"memory": func(t *testing.T) stores {
			s := NewMemoryStore()
			return stores{
				rooms:         s.Rooms(),
				memberships:   s.Memberships(),
				chat:          s.Chat(),
				notifications: s.Notifications(),
				users:         s.Users(),
			}
		},
	}
}

func forEach(t *testing.T, fn func(t *testing.T, s stores)) {
	for name, open := range implementations() {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func createRoom(t *testing.T, s stores, name string) *domain.Room {
	t.Helper()
	room := domain.NewRoom(name, "", uuid.New())
	require.NoError(t, s.rooms.Create(context.Background(), room))
	return room
}

func TestRoomCreateAndLookup(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		room := createRoom(t, s, "Linear Algebra")

		byCode, err := s.rooms.GetByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.Equal(t, room.ID, byCode.ID)
		assert.Nil(t, byCode.ExpiresAt)

		byID, err := s.rooms.GetByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.Code, byID.Code)

		dup := domain.NewRoom("Other", "", uuid.New())
		dup.Code = room.Code
		assert.ErrorIs(t, s.rooms.Create(ctx, dup), ErrRoomCodeExists)

		_, err = s.rooms.GetByCode(ctx, "NOPE00")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestMembershipUpsertKeepsSingleRow(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		room := createRoom(t, s, "Chemistry")
		user := uuid.New()

		created, err := s.memberships.Upsert(ctx, user, room.ID, true)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.memberships.Upsert(ctx, user, room.ID, false)
		require.NoError(t, err)
		assert.False(t, created)

		m, err := s.memberships.Get(ctx, user, room.ID)
		require.NoError(t, err)
		assert.False(t, m.Active)

		created, err = s.memberships.Upsert(ctx, user, room.ID, true)
		require.NoError(t, err)
		assert.False(t, created, "rejoining reuses the existing row")

		count, err := s.memberships.CountActive(ctx, room.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func TestMembershipUpsertUnknownRoom(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		_, err := s.memberships.Upsert(context.Background(), uuid.New(), uuid.New(), false)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestGormMembershipRowCount(t *testing.T) {
	db := setupTestDB(t)
	rooms := NewGormRoomRepository(db)
	memberships := NewGormMembershipRepository(db)
	ctx := context.Background()

	room := domain.NewRoom("Biology", "", uuid.New())
	require.NoError(t, rooms.Create(ctx, room))
	user := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := memberships.Upsert(ctx, user, room.ID, i%2 == 0)
		require.NoError(t, err)
	}

	var rows int64
	require.NoError(t, db.Model(&model.Membership{}).Where("user_id = ? AND room_id = ?", user, room.ID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestTouchActivity(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		room := createRoom(t, s, "History")
		now := time.Now().UTC().Truncate(time.Second)
		deadline := now.Add(15 * time.Minute)

		touched, err := s.rooms.TouchActivity(ctx, room.ID, now, deadline)
		require.NoError(t, err)
		require.NotNil(t, touched.ExpiresAt, "empty room gets a deadline")
		assert.True(t, touched.ExpiresAt.Equal(deadline))
		assert.True(t, touched.LastActivity.Equal(now))

		_, err = s.memberships.Upsert(ctx, uuid.New(), room.ID, true)
		require.NoError(t, err)

		touched, err = s.rooms.TouchActivity(ctx, room.ID, now, deadline)
		require.NoError(t, err)
		assert.Nil(t, touched.ExpiresAt, "active member clears the deadline")

		_, err = s.rooms.TouchActivity(ctx, uuid.New(), now, deadline)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestTouchActivityGlobalRoomNeverExpires(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		global := domain.NewGlobalRoom(uuid.New())
		require.NoError(t, s.rooms.Create(ctx, global))

		now := time.Now().UTC()
		touched, err := s.rooms.TouchActivity(ctx, global.ID, now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Nil(t, touched.ExpiresAt)
	})
}

func TestDeleteIfExpired(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		now := time.Now().UTC()

		room := createRoom(t, s, "Geometry")
		user := uuid.New()
		_, err := s.memberships.Upsert(ctx, user, room.ID, false)
		require.NoError(t, err)
		require.NoError(t, s.chat.Save(ctx, domain.NewChatMessage(room.ID, &domain.User{ID: user, Name: "U1"}, "hi", now)))

		_, err = s.rooms.TouchActivity(ctx, room.ID, now, now.Add(15*time.Minute))
		require.NoError(t, err)

		deleted, err := s.rooms.DeleteIfExpired(ctx, room.ID, now)
		require.NoError(t, err)
		assert.False(t, deleted, "deadline in the future")

		deleted, err = s.rooms.DeleteIfExpired(ctx, room.ID, now.Add(16*time.Minute))
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = s.rooms.GetByID(ctx, room.ID)
		assert.ErrorIs(t, err, ErrRoomNotFound)
		_, err = s.memberships.Get(ctx, user, room.ID)
		assert.ErrorIs(t, err, ErrMembershipNotFound)
		msgs, err := s.chat.ListByRoom(ctx, room.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestDeleteIfExpiredRechecksActiveMembers(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		now := time.Now().UTC()

		room := createRoom(t, s, "Art")
		_, err := s.rooms.TouchActivity(ctx, room.ID, now, now.Add(-time.Minute))
		require.NoError(t, err)

		// a member arrives between the scan and the delete
		_, err = s.memberships.Upsert(ctx, uuid.New(), room.ID, true)
		require.NoError(t, err)

		deleted, err := s.rooms.DeleteIfExpired(ctx, room.ID, now)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestListExpiredAndUnscheduled(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		now := time.Now().UTC()

		expired := createRoom(t, s, "Expired")
		_, err := s.rooms.TouchActivity(ctx, expired.ID, now, now.Add(-time.Minute))
		require.NoError(t, err)

		pending := createRoom(t, s, "Pending")
		_, err = s.rooms.TouchActivity(ctx, pending.ID, now, now.Add(time.Minute))
		require.NoError(t, err)

		unscheduled := createRoom(t, s, "Unscheduled")

		busy := createRoom(t, s, "Busy")
		_, err = s.memberships.Upsert(ctx, uuid.New(), busy.ID, true)
		require.NoError(t, err)

		require.NoError(t, s.rooms.Create(ctx, domain.NewGlobalRoom(uuid.New())))

		rooms, err := s.rooms.ListExpired(ctx, now)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, expired.ID, rooms[0].ID)

		rooms, err = s.rooms.ListUnscheduledEmpty(ctx)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, unscheduled.ID, rooms[0].ID)
	})
}

func TestListRooms(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		now := time.Now().UTC()

		algebra := domain.NewRoom("Algebra night", "proofs and coffee", uuid.New())
		require.NoError(t, s.rooms.Create(ctx, algebra))
		_, err := s.memberships.Upsert(ctx, uuid.New(), algebra.ID, true)
		require.NoError(t, err)
		_, err = s.memberships.Upsert(ctx, uuid.New(), algebra.ID, true)
		require.NoError(t, err)

		poetry := domain.NewRoom("Poetry", "Quiet ALGEBRA-free zone", uuid.New())
		require.NoError(t, s.rooms.Create(ctx, poetry))

		gone := createRoom(t, s, "Algebra archive")
		_, err = s.rooms.TouchActivity(ctx, gone.ID, now, now.Add(-time.Second))
		require.NoError(t, err)

		all, err := s.rooms.List(ctx, RoomFilter{Now: now})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		found, err := s.rooms.List(ctx, RoomFilter{Now: now, Search: "algebra"})
		require.NoError(t, err)
		require.Len(t, found, 2)

		counts := map[uuid.UUID]int64{}
		for _, summary := range found {
			counts[summary.Room.ID] = summary.ActiveMembers
		}
		assert.EqualValues(t, 2, counts[algebra.ID])
		assert.EqualValues(t, 0, counts[poetry.ID])
	})
}

func TestActiveMembersAndRooms(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		user := domain.NewUser("ada", "")
		require.NoError(t, s.users.Create(ctx, user))

		room := createRoom(t, s, "Compilers")
		other := createRoom(t, s, "Databases")
		_, err := s.memberships.Upsert(ctx, user.ID, room.ID, true)
		require.NoError(t, err)
		_, err = s.memberships.Upsert(ctx, user.ID, other.ID, false)
		require.NoError(t, err)

		members, err := s.memberships.ListActive(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "ada", members[0].Username)

		rooms, err := s.memberships.ListActiveRooms(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
	})
}

func TestChatHistoryOldestFirst(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		room := createRoom(t, s, "Music")
		author := &domain.User{ID: uuid.New(), Name: "U1"}
		base := time.Now().UTC().Truncate(time.Second)

		for i, text := range []string{"one", "two", "three"} {
			msg := domain.NewChatMessage(room.ID, author, text, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, s.chat.Save(ctx, msg))
			assert.NotZero(t, msg.ID)
		}

		msgs, err := s.chat.ListByRoom(ctx, room.ID, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "two", msgs[0].Content)
		assert.Equal(t, "three", msgs[1].Content)
		assert.Equal(t, "U1", msgs[1].Username)
	})
}

func TestNotifications(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		room := domain.NewRoom("Owner room", "", uuid.New())
		member := domain.NewUser("grace", "")

		n := domain.NewMemberNotification(room, member)
		require.NoError(t, s.notifications.Create(ctx, n))

		list, err := s.notifications.ListByRecipient(ctx, room.OwnerID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, domain.NotificationNewMember, list[0].Type)
		assert.Equal(t, "/rooms/"+room.Code+"/", list[0].Link)
	})
}

func TestUsers(t *testing.T) {
	forEach(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		user := domain.NewUser("linus", "linus@example.com")
		require.NoError(t, s.users.Create(ctx, user))

		got, err := s.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "linus", got.Name)

		_, err = s.users.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)

		got.Name = "torvalds"
		require.NoError(t, s.users.Update(ctx, got))
		got, err = s.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "torvalds", got.Name)
	})
}
