package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const activeMemberExists = "EXISTS (SELECT 1 FROM memberships WHERE memberships.room_id = rooms.id AND memberships.active = ?)"

type GormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	roomModel := toModelRoom(room)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&model.Room{}).Where("code = ?", roomModel.Code).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrRoomCodeExists
		}
		return tx.Omit(clause.Associations).Create(roomModel).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrRoomCodeExists
	}
	return err
}

func (r *GormRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *GormRoomRepository) first(ctx context.Context, query string, args ...any) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).Where(query, args...).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *GormRoomRepository) List(ctx context.Context, filter RoomFilter) ([]RoomSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).
		Where("(expires_at IS NULL OR expires_at > ?)", filter.Now.UTC()).
		Order("created_at DESC")
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", pattern, pattern)
	}

	var rooms []model.Room
	if err := q.Find(&rooms).Error; err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []RoomSummary{}, nil
	}

	ids := make([]uuid.UUID, 0, len(rooms))
	for i := range rooms {
		ids = append(ids, rooms[i].ID)
	}

	var counts []struct {
		RoomID uuid.UUID
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Membership{}).
		Select("room_id, COUNT(*) AS total").
		Where("room_id IN ? AND active = ?", ids, true).
		Group("room_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	byRoom := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		byRoom[c.RoomID] = c.Total
	}

	result := make([]RoomSummary, 0, len(rooms))
	for i := range rooms {
		result = append(result, RoomSummary{
			Room:          toDomainRoom(&rooms[i]),
			ActiveMembers: byRoom[rooms[i].ID],
		})
	}
	return result, nil
}

func (r *GormRoomRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Room, error) {
	return r.find(ctx, "expires_at IS NOT NULL AND expires_at <= ?", now.UTC())
}

func (r *GormRoomRepository) ListUnscheduledEmpty(ctx context.Context) ([]*domain.Room, error) {
	return r.find(ctx, "expires_at IS NULL AND code <> ? AND NOT "+activeMemberExists, domain.GlobalRoomCode, true)
}

func (r *GormRoomRepository) find(ctx context.Context, query string, args ...any) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.Room
	if err := r.db.WithContext(ctx).Where(query, args...).Find(&rooms).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}
	return result, nil
}

func (r *GormRoomRepository) TouchActivity(ctx context.Context, id uuid.UUID, now, expiresAt time.Time) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Room{}).Where("id = ?", id).Updates(map[string]any{
			"last_activity": now.UTC(),
			"expires_at": gorm.Expr(
				"CASE WHEN code = ? OR "+activeMemberExists+" THEN NULL ELSE ? END",
				domain.GlobalRoomCode, true, expiresAt.UTC(),
			),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return tx.First(&room, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *GormRoomRepository) DeleteIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(
			"id = ? AND code <> ? AND expires_at IS NOT NULL AND expires_at <= ? AND NOT "+activeMemberExists,
			id, domain.GlobalRoomCode, now.UTC(), true,
		).Delete(&model.Room{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return deleteRoomChildren(tx, id)
	})
	return deleted, err
}

func (r *GormRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Room{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return deleteRoomChildren(tx, id)
	})
}

// deleteRoomChildren runs the cascade explicitly; sqlite only enforces
// foreign keys when the pragma is on.
func deleteRoomChildren(tx *gorm.DB, roomID uuid.UUID) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&model.Membership{}).Error; err != nil {
		return err
	}
	return tx.Where("room_id = ?", roomID).Delete(&model.ChatMessage{}).Error
}

type GormMembershipRepository struct {
	db *gorm.DB
}

func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

func (r *GormMembershipRepository) Upsert(ctx context.Context, userID, roomID uuid.UUID, active bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rooms int64
		if err := tx.Model(&model.Room{}).Where("id = ?", roomID).Count(&rooms).Error; err != nil {
			return err
		}
		if rooms == 0 {
			return ErrRoomNotFound
		}

		res := tx.Model(&model.Membership{}).
			Where("user_id = ? AND room_id = ?", userID, roomID).
			Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		membership := model.Membership{
			UserID:   userID,
			RoomID:   roomID,
			JoinedAt: time.Now().UTC(),
			Active:   active,
		}
		res = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "updated_at"}),
		}).Create(&membership)
		if res.Error != nil {
			return res.Error
		}
		created = true
		return nil
	})
	return created, err
}

func (r *GormMembershipRepository) Get(ctx context.Context, userID, roomID uuid.UUID) (*domain.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.Membership
	err := r.db.WithContext(ctx).First(&m, "user_id = ? AND room_id = ?", userID, roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}

	return &domain.Membership{
		UserID:   m.UserID,
		RoomID:   m.RoomID,
		JoinedAt: m.JoinedAt.UTC(),
		Active:   m.Active,
	}, nil
}

func (r *GormMembershipRepository) CountActive(ctx context.Context, roomID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var total int64
	err := r.db.WithContext(ctx).Model(&model.Membership{}).
		Where("room_id = ? AND active = ?", roomID, true).
		Count(&total).Error
	return total, err
}

func (r *GormMembershipRepository) ListActive(ctx context.Context, roomID uuid.UUID) ([]domain.ActiveMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []struct {
		UserID   uuid.UUID
		Username string
		JoinedAt time.Time
	}
	err := r.db.WithContext(ctx).Model(&model.Membership{}).
		Select("memberships.user_id, COALESCE(users.name, '') AS username, memberships.joined_at").
		Joins("LEFT JOIN users ON users.id = memberships.user_id").
		Where("memberships.room_id = ? AND memberships.active = ?", roomID, true).
		Order("memberships.joined_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	members := make([]domain.ActiveMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, domain.ActiveMember{
			UserID:   row.UserID,
			Username: row.Username,
			JoinedAt: row.JoinedAt.UTC(),
		})
	}
	return members, nil
}

func (r *GormMembershipRepository) ListActiveRooms(ctx context.Context, userID uuid.UUID) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.Room
	err := r.db.WithContext(ctx).
		Select("rooms.*").
		Joins("JOIN memberships ON memberships.room_id = rooms.id").
		Where("memberships.user_id = ? AND memberships.active = ?", userID, true).
		Order("rooms.created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}
	return result, nil
}

type GormChatRepository struct {
	db *gorm.DB
}

func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

func (r *GormChatRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("chat message is nil")
	}

	m := model.ChatMessage{
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	msg.ID = m.ID
	return nil
}

func (r *GormChatRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// newest were fetched first; replay wants oldest first
	result := make([]*domain.ChatMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		result = append(result, &domain.ChatMessage{
			ID:        rows[i].ID,
			RoomID:    rows[i].RoomID,
			UserID:    rows[i].UserID,
			Username:  rows[i].Username,
			Content:   rows[i].Content,
			CreatedAt: rows[i].CreatedAt.UTC(),
		})
	}
	return result, nil
}

type GormNotificationRepository struct {
	db *gorm.DB
}

func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

func (r *GormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n == nil {
		return errors.New("notification is nil")
	}

	m := model.Notification{
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	n.ID = m.ID
	return nil
}

func (r *GormNotificationRepository) ListByRecipient(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.Notification
	if err := r.db.WithContext(ctx).Where("recipient_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, &domain.Notification{
			ID:          row.ID,
			RecipientID: row.RecipientID,
			SenderID:    row.SenderID,
			Type:        domain.NotificationType(row.Type),
			Title:       row.Title,
			Message:     row.Message,
			Link:        row.Link,
			IsRead:      row.IsRead,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return result, nil
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *GormUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	updateData := map[string]any{
		"name":       userModel.Name,
		"is_guest":   userModel.IsGuest,
		"updated_at": userModel.UpdatedAt,
	}

	if userModel.Email == nil {
		updateData["email"] = gorm.Expr("NULL")
	} else {
		updateData["email"] = userModel.Email
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updateData)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func toModelRoom(room *domain.Room) *model.Room {
	var expiresAt *time.Time
	if room.ExpiresAt != nil {
		t := room.ExpiresAt.UTC()
		expiresAt = &t
	}

	lastActivity := room.LastActivity
	if lastActivity.IsZero() {
		lastActivity = room.CreatedAt
	}

	return &model.Room{
		ID:           room.ID,
		Code:         room.Code,
		Name:         room.Name,
		Description:  room.Description,
		OwnerID:      room.OwnerID,
		IsPublic:     room.IsPublic,
		CreatedAt:    room.CreatedAt.UTC(),
		LastActivity: lastActivity.UTC(),
		ExpiresAt:    expiresAt,
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	var expiresAt *time.Time
	if room.ExpiresAt != nil {
		t := room.ExpiresAt.UTC()
		expiresAt = &t
	}

	return &domain.Room{
		ID:           room.ID,
		Code:         room.Code,
		Name:         room.Name,
		Description:  room.Description,
		OwnerID:      room.OwnerID,
		IsPublic:     room.IsPublic,
		CreatedAt:    room.CreatedAt.UTC(),
		LastActivity: room.LastActivity.UTC(),
		ExpiresAt:    expiresAt,
	}
}

func toModelUser(user *domain.User) *model.User {
	var email *string
	if user.Email != "" {
		e := user.Email
		email = &e
	}
	return &model.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}

	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}
