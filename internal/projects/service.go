// Package projects manages production postings and the role posts under them.
package projects

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
	"github.com/crewcall/crewcall/pkg/pagination"
)

// ProjectService defines project and role-post operations.
type ProjectService interface {
	Create(ctx context.Context, ownerID uuid.UUID, req *models.ProjectRequest) (*models.Project, error)
	Update(ctx context.Context, ownerID, projectID uuid.UUID, req *models.ProjectRequest) (*models.Project, error)
	SetStatus(ctx context.Context, ownerID, projectID uuid.UUID, status string) (*models.Project, error)
	Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ListMine(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*models.Page[models.Project], error)

	CreatePost(ctx context.Context, ownerID, projectID uuid.UUID, req *models.RolePostRequest) (*models.RolePost, error)
	UpdatePost(ctx context.Context, ownerID, postID uuid.UUID, req *models.RolePostRequest) (*models.RolePost, error)
	ClosePost(ctx context.Context, ownerID, postID uuid.UUID) (*models.RolePost, error)
	GetPost(ctx context.Context, postID uuid.UUID) (*models.RolePost, error)
	ListProjectPosts(ctx context.Context, projectID uuid.UUID) ([]models.RolePost, error)
	Feed(ctx context.Context, filter FeedFilter) (*models.Page[models.RolePost], error)

	OwnerOf(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)
	OwnerOfPost(ctx context.Context, postID uuid.UUID) (uuid.UUID, error)
}

// FeedFilter narrows the open-posts feed.
type FeedFilter struct {
	Category string
	City     string
	PaidOnly bool
	Cursor   string
	Limit    int
}

func (f FeedFilter) key() string {
	return fmt.Sprintf("category=%s&city=%s&paid=%t", f.Category, f.City, f.PaidOnly)
}

// Service implements ProjectService.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates the project service.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{logger: logger, db: db}, nil
}

// Create creates a draft project owned by the caller.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req *models.ProjectRequest) (*models.Project, error) {
	project := models.Project{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Title:          req.Title,
		Synopsis:       req.Synopsis,
		ProductionType: req.ProductionType,
		City:           req.City,
		ShootStart:     req.ShootStart,
		ShootEnd:       req.ShootEnd,
		Status:         models.ProjectStatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &project, nil
}

// Update mutates a project the caller owns.
func (s *Service) Update(ctx context.Context, ownerID, projectID uuid.UUID, req *models.ProjectRequest) (*models.Project, error) {
	project, err := s.ownedProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}

	project.Title = req.Title
	project.Synopsis = req.Synopsis
	project.ProductionType = req.ProductionType
	project.City = req.City
	project.ShootStart = req.ShootStart
	project.ShootEnd = req.ShootEnd
	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return project, nil
}

// SetStatus moves a project between draft/open/closed. Closing a project
// closes all of its posts.
func (s *Service) SetStatus(ctx context.Context, ownerID, projectID uuid.UUID, status string) (*models.Project, error) {
	switch status {
	case models.ProjectStatusDraft, models.ProjectStatusOpen, models.ProjectStatusClosed:
	default:
		return nil, apierrors.Invalid("unknown project status %q", status)
	}

	project, err := s.ownedProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Project{}).Where("id = ?", projectID).Update("status", status).Error; err != nil {
			return err
		}
		if status == models.ProjectStatusClosed {
			if err := tx.Model(&models.RolePost{}).
				Where("project_id = ? AND status = ?", projectID, models.PostStatusOpen).
				Update("status", models.PostStatusClosed).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set project status: %w", err)
	}

	project.Status = status
	return project, nil
}

// Get returns a project by ID.
func (s *Service) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Where("id = ?", projectID).First(&project).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return &project, nil
}

// ListMine pages through the caller's projects, newest first.
func (s *Service) ListMine(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*models.Page[models.Project], error) {
	limit = pagination.ClampLimit(limit)
	filterKey := "owner=" + ownerID.String()

	q := s.db.WithContext(ctx).Model(&models.Project{}).Where("owner_id = ?", ownerID)
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

	var items []models.Project
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	page := &models.Page[models.Project]{Items: items}
	if len(items) == limit {
		last := items[len(items)-1]
		page.NextCursor = pagination.NextToken(last.CreatedAt, last.ID, filterKey, true)
	}
	return page, nil
}

// CreatePost adds a role post to a project the caller owns.
func (s *Service) CreatePost(ctx context.Context, ownerID, projectID uuid.UUID, req *models.RolePostRequest) (*models.RolePost, error) {
	project, err := s.ownedProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == models.ProjectStatusClosed {
		return nil, apierrors.Conflict("project is closed")
	}

	slots := req.Slots
	if slots == 0 {
		slots = 1
	}
	post := models.RolePost{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Paid:        req.Paid,
		PayRate:     req.PayRate,
		PayCurrency: req.PayCurrency,
		Slots:       slots,
		Status:      models.PostStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &post, nil
}

// UpdatePost mutates a role post on a project the caller owns.
func (s *Service) UpdatePost(ctx context.Context, ownerID, postID uuid.UUID, req *models.RolePostRequest) (*models.RolePost, error) {
	post, err := s.ownedPost(ctx, ownerID, postID)
	if err != nil {
		return nil, err
	}

	post.Title = req.Title
	post.Description = req.Description
	post.Category = req.Category
	post.Paid = req.Paid
	post.PayRate = req.PayRate
	post.PayCurrency = req.PayCurrency
	if req.Slots > 0 {
		post.Slots = req.Slots
	}
	if err := s.db.WithContext(ctx).Save(post).Error; err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// ClosePost closes a single role post.
func (s *Service) ClosePost(ctx context.Context, ownerID, postID uuid.UUID) (*models.RolePost, error) {
	post, err := s.ownedPost(ctx, ownerID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusClosed {
		return post, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.RolePost{}).Where("id = ?", postID).
		Update("status", models.PostStatusClosed).Error; err != nil {
		return nil, fmt.Errorf("close post: %w", err)
	}
	post.Status = models.PostStatusClosed
	return post, nil
}

// GetPost returns a role post by ID.
func (s *Service) GetPost(ctx context.Context, postID uuid.UUID) (*models.RolePost, error) {
	var post models.RolePost
	err := s.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("post not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	return &post, nil
}

// ListProjectPosts returns all posts of a project.
func (s *Service) ListProjectPosts(ctx context.Context, projectID uuid.UUID) ([]models.RolePost, error) {
	var posts []models.RolePost
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("created_at DESC, id DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Feed pages through open role posts on open projects, newest first.
func (s *Service) Feed(ctx context.Context, filter FeedFilter) (*models.Page[models.RolePost], error) {
	limit := pagination.ClampLimit(filter.Limit)

	q := s.db.WithContext(ctx).Model(&models.RolePost{}).
		Joins("JOIN projects ON projects.id = role_posts.project_id").
		Where("role_posts.status = ? AND projects.status = ?", models.PostStatusOpen, models.ProjectStatusOpen)
	if filter.Category != "" {
		q = q.Where("role_posts.category = ?", filter.Category)
	}
	if filter.City != "" {
		q = q.Where("projects.city = ?", filter.City)
	}
	if filter.PaidOnly {
		q = q.Where("role_posts.paid = ?", true)
	}

	if filter.Cursor != "" {
		c, err := pagination.Decode(filter.Cursor)
		if err != nil {
			return nil, apierrors.Invalid("bad cursor: %v", err)
		}
		if err := pagination.ValidateFilter(c, filter.key()); err != nil {
			return nil, apierrors.Invalid("%v", err)
		}
		q = q.Where("role_posts.created_at < ? OR (role_posts.created_at = ? AND role_posts.id < ?)",
			c.CreatedAt, c.CreatedAt, c.ID)
	}

	var posts []models.RolePost
	if err := q.Order("role_posts.created_at DESC, role_posts.id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("feed posts: %w", err)
	}

	page := &models.Page[models.RolePost]{Items: posts}
	if len(posts) == limit {
		last := posts[len(posts)-1]
		page.NextCursor = pagination.NextToken(last.CreatedAt, last.ID, filter.key(), true)
	}
	return page, nil
}

// OwnerOf returns the owner of a project.
func (s *Service) OwnerOf(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return uuid.Nil, err
	}
	return project.OwnerID, nil
}

// OwnerOfPost returns the owner of the project a post belongs to.
func (s *Service) OwnerOfPost(ctx context.Context, postID uuid.UUID) (uuid.UUID, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return uuid.Nil, err
	}
	return s.OwnerOf(ctx, post.ProjectID)
}

func (s *Service) ownedProject(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != ownerID {
		return nil, apierrors.Forbidden("not the project owner")
	}
	return project, nil
}

func (s *Service) ownedPost(ctx context.Context, ownerID, postID uuid.UUID) (*models.RolePost, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedProject(ctx, ownerID, post.ProjectID); err != nil {
		return nil, err
	}
	return post, nil
}
