// Package notifications persists in-app notifications and fans them out to
// registered devices and the event stream.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
	"github.com/crewcall/crewcall/pkg/pagination"
)

// NotificationService defines notification operations used by the API layer.
type NotificationService interface {
	Notify(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{})
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, cursor string, limit int) (*models.Page[models.Notification], error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) (*models.Device, error)
	UnregisterDevice(ctx context.Context, userID uuid.UUID, token string) error
}

// Service implements NotificationService.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	pusher    Pusher
	publisher EventPublisher
}

// NewService creates the notification service. pusher and publisher may be
// nil; persistence always happens, delivery is best effort.
func NewService(logger *zap.Logger, db *gorm.DB, pusher Pusher, publisher EventPublisher) (*Service, error) {
	return &Service{
		logger:    logger,
		db:        db,
		pusher:    pusher,
		publisher: publisher,
	}, nil
}

// Notify persists the notification and delivers it to the user's devices and
// the event stream. Delivery failures are logged, never surfaced: the row is
// the source of truth and the client catches up on next poll.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{}) {
	encoded := "{}"
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("marshal notification payload", zap.Error(err))
			return
		}
		encoded = string(raw)
	}

	notification := models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Payload:   encoded,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logger.Error("store notification",
			zap.String("user_id", userID.String()),
			zap.String("type", typ),
			zap.Error(err))
		return
	}

	if s.pusher != nil {
		var devices []models.Device
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error; err != nil {
			s.logger.Warn("load devices", zap.Error(err))
		}
		for _, device := range devices {
			if err := s.pusher.Push(ctx, device.Token, device.Platform, typ, payload); err != nil {
				s.logger.Warn("push delivery",
					zap.String("platform", device.Platform),
					zap.Error(err))
			}
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, userID, typ, payload)
	}
}

// List pages through the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, cursor string, limit int) (*models.Page[models.Notification], error) {
	limit = pagination.ClampLimit(limit)
	filterKey := fmt.Sprintf("user=%s&unread=%t", userID, unreadOnly)

	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	if cursor != "" {
		c, err := pagination.Decode(cursor)
		if err != nil {
			return nil, apierrors.Invalid("bad cursor: %v", err)
		}
		if err := pagination.ValidateFilter(c, filterKey); err != nil {
			return nil, apierrors.Invalid("%v", err)
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var notifications []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	page := &models.Page[models.Notification]{Items: notifications}
	if len(notifications) == limit {
		last := notifications[len(notifications)-1]
		page.NextCursor = pagination.NextToken(last.CreatedAt, last.ID, filterKey, true)
	}
	return page, nil
}

// MarkRead marks the given notifications as read, or all of the user's
// unread ones when ids is empty. Returns the number of rows flipped.
func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RegisterDevice upserts a push target. A token re-registered by a different
// user moves to the new user (phone handed down, app reinstalled).
func (s *Service) RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) (*models.Device, error) {
	if token == "" {
		return nil, apierrors.Invalid("device token is required")
	}
	if platform != "ios" && platform != "android" {
		return nil, apierrors.Invalid("platform must be ios or android")
	}

	var device models.Device
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&device).Error
	switch {
	case err == nil:
		device.UserID = userID
		device.Platform = platform
		if err := s.db.WithContext(ctx).Save(&device).Error; err != nil {
			return nil, fmt.Errorf("update device: %w", err)
		}
		return &device, nil
	case err == gorm.ErrRecordNotFound:
		device = models.Device{
			ID:       uuid.New(),
			UserID:   userID,
			Token:    token,
			Platform: platform,
		}
		if err := s.db.WithContext(ctx).Create(&device).Error; err != nil {
			return nil, fmt.Errorf("register device: %w", err)
		}
		return &device, nil
	default:
		return nil, fmt.Errorf("load device: %w", err)
	}
}

// UnregisterDevice removes the user's push target. Idempotent.
func (s *Service) UnregisterDevice(ctx context.Context, userID uuid.UUID, token string) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&models.Device{}).Error; err != nil {
		return fmt.Errorf("unregister device: %w", err)
	}
	return nil
}
