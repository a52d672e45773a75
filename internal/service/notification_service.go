package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

type NotificationService struct {
	notifications repository.NotificationRepository
	log           *slog.Logger
}

func NewNotificationService(notifications repository.NotificationRepository, log *slog.Logger) *NotificationService {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationService{notifications: notifications, log: log}
}

// ListNotifications returns the user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error) {
	const op = "service.notification.list"

	list, err := s.notifications.ListByRecipient(ctx, userID)
	if err != nil {
		s.log.Error("failed to list notifications", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}
