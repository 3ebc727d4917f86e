// Package chat implements the conversation store and the WebSocket gateway
// that fans messages out to connected clients.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
	"github.com/crewcall/crewcall/pkg/pagination"
)

// Notifier emits message notifications for offline recipients. Implemented
// by the notifications service.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{})
}

// ChatService defines the store-side chat operations. The gateway sits on
// top of it.
type ChatService interface {
	EnsureConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	PeerOf(ctx context.Context, conversationID, userID uuid.UUID) (uuid.UUID, error)
	ListConversations(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*models.Page[models.ConversationSummary], error)
	History(ctx context.Context, callerID, conversationID uuid.UUID, cursor string, limit int) (*models.Page[models.Message], error)
	SaveMessage(ctx context.Context, conversationID, senderID uuid.UUID, body, clientMsgID string) (*models.Message, bool, error)
	MarkRead(ctx context.Context, conversationID, readerID, upToMessageID uuid.UUID) (int64, error)
}

// Service implements ChatService.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	notifier  Notifier
	sanitizer *bluemonday.Policy
}

// NewService creates the chat store service. notifier may be nil in tests.
func NewService(logger *zap.Logger, db *gorm.DB, notifier Notifier) (*Service, error) {
	return &Service{
		logger:    logger,
		db:        db,
		notifier:  notifier,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// EnsureConversation returns the thread between two users, creating it if
// absent. The pair is stored ordered so the unique index deduplicates
// concurrent creates.
func (s *Service) EnsureConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	if a == b {
		return nil, apierrors.Invalid("cannot open a conversation with yourself")
	}
	userA, userB := orderPair(a, b)

	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("user_a = ? AND user_b = ?", userA, userB).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	conv = models.Conversation{
		ID:            uuid.New(),
		UserA:         userA,
		UserB:         userB,
		LastMessageAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the race; the other writer's row wins.
			if err := s.db.WithContext(ctx).Where("user_a = ? AND user_b = ?", userA, userB).First(&conv).Error; err != nil {
				return nil, fmt.Errorf("reload conversation: %w", err)
			}
			return &conv, nil
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// IsMember reports whether the user is one of the two parties.
func (s *Service) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND (user_a = ? OR user_b = ?)", conversationID, userID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return count > 0, nil
}

// PeerOf returns the other party of a conversation.
func (s *Service) PeerOf(ctx context.Context, conversationID, userID uuid.UUID) (uuid.UUID, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", conversationID).First(&conv).Error
	if err == gorm.ErrRecordNotFound {
		return uuid.Nil, apierrors.NotFound("conversation not found")
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load conversation: %w", err)
	}
	switch userID {
	case conv.UserA:
		return conv.UserB, nil
	case conv.UserB:
		return conv.UserA, nil
	default:
		return uuid.Nil, apierrors.Forbidden("not a member of this conversation")
	}
}

// ListConversations pages through the user's threads ordered by latest
// activity, attaching the last message and unread count to each.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*models.Page[models.ConversationSummary], error) {
	limit = pagination.ClampLimit(limit)
	filterKey := "member=" + userID.String()

	q := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("user_a = ? OR user_b = ?", userID, userID)
	if cursor != "" {
		c, err := pagination.Decode(cursor)
		if err != nil {
			return nil, apierrors.Invalid("bad cursor: %v", err)
		}
		if err := pagination.ValidateFilter(c, filterKey); err != nil {
			return nil, apierrors.Invalid("%v", err)
		}
		q = q.Where("last_message_at < ? OR (last_message_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var convs []models.Conversation
	if err := q.Order("last_message_at DESC, id DESC").Limit(limit).Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	items := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := models.ConversationSummary{Conversation: conv}
		if conv.UserA == userID {
			summary.PeerID = conv.UserB
		} else {
			summary.PeerID = conv.UserA
		}

		var last models.Message
		err := s.db.WithContext(ctx).Where("conversation_id = ?", conv.ID).
			Order("created_at DESC, id DESC").First(&last).Error
		if err == nil {
			summary.LastMessage = &last
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("load last message: %w", err)
		}

		if err := s.db.WithContext(ctx).Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conv.ID, userID).
			Count(&summary.UnreadCount).Error; err != nil {
			return nil, fmt.Errorf("unread count: %w", err)
		}

		items = append(items, summary)
	}

	page := &models.Page[models.ConversationSummary]{Items: items}
	if len(convs) == limit {
		last := convs[len(convs)-1]
		page.NextCursor = pagination.NextToken(last.LastMessageAt, last.ID, filterKey, true)
	}
	return page, nil
}

// History pages through a conversation's messages, newest first. The caller
// must be a member.
func (s *Service) History(ctx context.Context, callerID, conversationID uuid.UUID, cursor string, limit int) (*models.Page[models.Message], error) {
	member, err := s.IsMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apierrors.Forbidden("not a member of this conversation")
	}

	limit = pagination.ClampLimit(limit)
	filterKey := "conversation=" + conversationID.String()

	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("conversation_id = ?", conversationID)
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

	var messages []models.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	page := &models.Page[models.Message]{Items: messages}
	if len(messages) == limit {
		last := messages[len(messages)-1]
		page.NextCursor = pagination.NextToken(last.CreatedAt, last.ID, filterKey, true)
	}
	return page, nil
}

// SaveMessage persists a message idempotently. A redelivery of the same
// (conversation, client_msg_id) returns the stored row with created=false.
func (s *Service) SaveMessage(ctx context.Context, conversationID, senderID uuid.UUID, body, clientMsgID string) (*models.Message, bool, error) {
	member, err := s.IsMember(ctx, conversationID, senderID)
	if err != nil {
		return nil, false, err
	}
	if !member {
		return nil, false, apierrors.Forbidden("not a member of this conversation")
	}

	body = strings.TrimSpace(s.sanitizer.Sanitize(body))
	if body == "" {
		return nil, false, apierrors.Invalid("empty message body")
	}
	if clientMsgID == "" {
		return nil, false, apierrors.Invalid("client_msg_id is required")
	}

	var existing models.Message
	err = s.db.WithContext(ctx).
		Where("conversation_id = ? AND client_msg_id = ?", conversationID, clientMsgID).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	message := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		ClientMsgID:    clientMsgID,
		CreatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		if isUniqueViolation(err) {
			// Concurrent redelivery: return whichever insert won.
			if err := s.db.WithContext(ctx).
				Where("conversation_id = ? AND client_msg_id = ?", conversationID, clientMsgID).
				First(&existing).Error; err != nil {
				return nil, false, fmt.Errorf("reload message: %w", err)
			}
			return &existing, false, nil
		}
		return nil, false, fmt.Errorf("store message: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).Update("last_message_at", message.CreatedAt).Error; err != nil {
		s.logger.Warn("bump conversation activity", zap.Error(err))
	}

	if s.notifier != nil {
		if peer, err := s.PeerOf(ctx, conversationID, senderID); err == nil {
			s.notifier.Notify(ctx, peer, models.NotificationTypeMessage, map[string]interface{}{
				"conversation_id": conversationID.String(),
				"message_id":      message.ID.String(),
				"sender_id":       senderID.String(),
			})
		}
	}

	return &message, true, nil
}

// MarkRead sets read_at on the reader's unread messages up to and including
// the referenced message, in one bulk update. If the bulk update matches
// nothing (e.g. the boundary sits before already-read rows after a clock
// skew), it falls back to marking the single referenced message.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID, upToMessageID uuid.UUID) (int64, error) {
	member, err := s.IsMember(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, apierrors.Forbidden("not a member of this conversation")
	}

	var boundary models.Message
	err = s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", upToMessageID, conversationID).
		First(&boundary).Error
	if err == gorm.ErrRecordNotFound {
		return 0, apierrors.NotFound("message not found in this conversation")
	}
	if err != nil {
		return 0, fmt.Errorf("load boundary message: %w", err)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, readerID).
		Where("created_at < ? OR (created_at = ? AND id <= ?)", boundary.CreatedAt, boundary.CreatedAt, boundary.ID).
		Update("read_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("mark read: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return res.RowsAffected, nil
	}

	// Fallback: best-effort single-row receipt.
	if boundary.SenderID == readerID || boundary.ReadAt != nil {
		return 0, nil
	}
	res = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read_at IS NULL", boundary.ID).
		Update("read_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("mark read fallback: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
