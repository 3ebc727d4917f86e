// Package applications manages role-post applications and their lifecycle.
package applications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
	"github.com/crewcall/crewcall/pkg/pagination"
)

// Notifier emits notifications when applications move. Implemented by the
// notifications service.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{})
}

// ConversationEnsurer opens a chat thread between two users. Implemented by
// the chat service.
type ConversationEnsurer interface {
	EnsureConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
}

// ApplicationService defines application operations.
type ApplicationService interface {
	Apply(ctx context.Context, applicantID, postID uuid.UUID, note string) (*models.Application, error)
	SetStatus(ctx context.Context, callerID, applicationID uuid.UUID, status string) (*models.Application, error)
	Withdraw(ctx context.Context, applicantID, applicationID uuid.UUID) (*models.Application, error)
	ListMine(ctx context.Context, applicantID uuid.UUID, cursor string, limit int) (*models.Page[models.Application], error)
	ListForPost(ctx context.Context, callerID, postID uuid.UUID, cursor string, limit int) (*models.Page[models.Application], error)
	AcceptedUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
}

// Service implements ApplicationService.
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	notifier Notifier
	chat     ConversationEnsurer
}

// NewService creates the application service. notifier and chat may be nil
// in tests; side effects are skipped.
func NewService(logger *zap.Logger, db *gorm.DB, notifier Notifier, chat ConversationEnsurer) (*Service, error) {
	return &Service{logger: logger, db: db, notifier: notifier, chat: chat}, nil
}

// Apply submits an application to an open post. Duplicate applications are
// rejected by the unique (post, applicant) index.
func (s *Service) Apply(ctx context.Context, applicantID, postID uuid.UUID, note string) (*models.Application, error) {
	var post models.RolePost
	err := s.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("post not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if post.Status != models.PostStatusOpen {
		return nil, apierrors.Conflict("post is closed")
	}

	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", post.ProjectID).First(&project).Error; err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apierrors.Conflict("project is not open")
	}
	if project.OwnerID == applicantID {
		return nil, apierrors.Invalid("cannot apply to your own post")
	}

	application := models.Application{
		ID:          uuid.New(),
		PostID:      postID,
		ApplicantID: applicantID,
		Note:        note,
		Status:      models.ApplicationStatusSubmitted,
	}
	if err := s.db.WithContext(ctx).Create(&application).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apierrors.Conflict("already applied to this post")
		}
		return nil, fmt.Errorf("create application: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, project.OwnerID, models.NotificationTypeApplication, map[string]interface{}{
			"application_id": application.ID.String(),
			"post_id":        postID.String(),
			"applicant_id":   applicantID.String(),
		})
	}

	return &application, nil
}

// SetStatus moves an application through owner-side transitions. Only the
// project owner may call it; accepted applications open a chat thread.
func (s *Service) SetStatus(ctx context.Context, callerID, applicationID uuid.UUID, status string) (*models.Application, error) {
	application, post, project, err := s.loadChain(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != callerID {
		return nil, apierrors.Forbidden("not the project owner")
	}

	if err := validTransition(application.Status, status); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ?", applicationID).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	application.Status = status

	if status == models.ApplicationStatusAccepted && s.chat != nil {
		if _, err := s.chat.EnsureConversation(ctx, project.OwnerID, application.ApplicantID); err != nil {
			s.logger.Warn("open conversation after accept", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, application.ApplicantID, models.NotificationTypeApplicationStatus, map[string]interface{}{
			"application_id": application.ID.String(),
			"post_id":        post.ID.String(),
			"status":         status,
		})
	}

	return application, nil
}

// Withdraw lets the applicant pull a non-terminal application.
func (s *Service) Withdraw(ctx context.Context, applicantID, applicationID uuid.UUID) (*models.Application, error) {
	application, _, _, err := s.loadChain(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.ApplicantID != applicantID {
		return nil, apierrors.Forbidden("not your application")
	}
	switch application.Status {
	case models.ApplicationStatusAccepted, models.ApplicationStatusDeclined, models.ApplicationStatusWithdrawn:
		return nil, apierrors.Conflict("application already %s", application.Status)
	}

	if err := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ?", applicationID).Update("status", models.ApplicationStatusWithdrawn).Error; err != nil {
		return nil, fmt.Errorf("withdraw application: %w", err)
	}
	application.Status = models.ApplicationStatusWithdrawn
	return application, nil
}

// ListMine pages through the applicant's applications, newest first.
func (s *Service) ListMine(ctx context.Context, applicantID uuid.UUID, cursor string, limit int) (*models.Page[models.Application], error) {
	return s.list(ctx, "applicant_id = ?", applicantID, "applicant="+applicantID.String(), cursor, limit)
}

// ListForPost pages through a post's inbox. Only the project owner sees it.
func (s *Service) ListForPost(ctx context.Context, callerID, postID uuid.UUID, cursor string, limit int) (*models.Page[models.Application], error) {
	var post models.RolePost
	err := s.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("post not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", post.ProjectID).First(&project).Error; err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.OwnerID != callerID {
		return nil, apierrors.Forbidden("not the project owner")
	}

	return s.list(ctx, "post_id = ?", postID, "post="+postID.String(), cursor, limit)
}

// AcceptedUserIDs lists applicants accepted anywhere on a project. Used by
// schedules to validate assignees.
func (s *Service) AcceptedUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Application{}).
		Joins("JOIN role_posts ON role_posts.id = applications.post_id").
		Where("role_posts.project_id = ? AND applications.status = ?", projectID, models.ApplicationStatusAccepted).
		Pluck("applications.applicant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("accepted applicants: %w", err)
	}
	return ids, nil
}

func (s *Service) list(ctx context.Context, where string, arg interface{}, filterKey, cursor string, limit int) (*models.Page[models.Application], error) {
	limit = pagination.ClampLimit(limit)

	q := s.db.WithContext(ctx).Model(&models.Application{}).Where(where, arg)
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

	var items []models.Application
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	page := &models.Page[models.Application]{Items: items}
	if len(items) == limit {
		last := items[len(items)-1]
		page.NextCursor = pagination.NextToken(last.CreatedAt, last.ID, filterKey, true)
	}
	return page, nil
}

func (s *Service) loadChain(ctx context.Context, applicationID uuid.UUID) (*models.Application, *models.RolePost, *models.Project, error) {
	var application models.Application
	err := s.db.WithContext(ctx).Where("id = ?", applicationID).First(&application).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil, nil, apierrors.NotFound("application not found")
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load application: %w", err)
	}
	var post models.RolePost
	if err := s.db.WithContext(ctx).Where("id = ?", application.PostID).First(&post).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load post: %w", err)
	}
	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", post.ProjectID).First(&project).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load project: %w", err)
	}
	return &application, &post, &project, nil
}

func validTransition(from, to string) error {
	allowed := map[string][]string{
		models.ApplicationStatusSubmitted:   {models.ApplicationStatusShortlisted, models.ApplicationStatusAccepted, models.ApplicationStatusDeclined},
		models.ApplicationStatusShortlisted: {models.ApplicationStatusAccepted, models.ApplicationStatusDeclined},
	}
	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return apierrors.Conflict("cannot move application from %s to %s", from, to)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
