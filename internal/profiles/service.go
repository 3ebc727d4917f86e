// Package profiles manages the public marketplace profiles of users.
package profiles

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
	"github.com/crewcall/crewcall/pkg/pagination"
)

// ProfileService defines profile operations.
type ProfileService interface {
	GetMine(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Upsert(ctx context.Context, userID uuid.UUID, req *models.ProfileUpdateRequest) (*models.Profile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	List(ctx context.Context, filter ListFilter) (*models.Page[models.Profile], error)
}

// ListFilter narrows the profile feed.
type ListFilter struct {
	Role     string
	City     string
	Category string
	Cursor   string
	Limit    int
}

func (f ListFilter) key() string {
	return fmt.Sprintf("role=%s&city=%s&category=%s", f.Role, f.City, f.Category)
}

// Service implements ProfileService.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	sanitizer *bluemonday.Policy
}

// NewService creates the profile service.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{
		logger:    logger,
		db:        db,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// GetMine returns the caller's profile.
func (s *Service) GetMine(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("profile not created yet")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &profile, nil
}

// Upsert creates or replaces the caller's profile. Free-text HTML fields are
// sanitized before storage.
func (s *Service) Upsert(ctx context.Context, userID uuid.UUID, req *models.ProfileUpdateRequest) (*models.Profile, error) {
	categories, err := marshalList(req.Categories)
	if err != nil {
		return nil, apierrors.Invalid("bad categories: %v", err)
	}
	departments, err := marshalList(req.Departments)
	if err != nil {
		return nil, apierrors.Invalid("bad departments: %v", err)
	}
	credits, err := json.Marshal(req.Credits)
	if err != nil {
		return nil, apierrors.Invalid("bad credits: %v", err)
	}

	profile := models.Profile{
		UserID:         userID,
		Role:           req.Role,
		DisplayName:    req.DisplayName,
		Bio:            s.sanitizer.Sanitize(req.Bio),
		City:           req.City,
		Categories:     categories,
		HeightCM:       req.HeightCM,
		Departments:    departments,
		Kit:            s.sanitizer.Sanitize(req.Kit),
		AvatarUploadID: req.AvatarUploadID,
		Credits:        string(credits),
	}

	var existing models.Profile
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		profile.ID = uuid.New()
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load profile: %w", err)
	default:
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(&profile).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}

	return &profile, nil
}

// GetByID returns any profile by its ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &profile, nil
}

// List returns a page of profiles, newest first, with cursor pagination.
func (s *Service) List(ctx context.Context, filter ListFilter) (*models.Page[models.Profile], error) {
	limit := pagination.ClampLimit(filter.Limit)

	q := s.db.WithContext(ctx).Model(&models.Profile{})
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.City != "" {
		q = q.Where("city = ?", filter.City)
	}
	if filter.Category != "" {
		q = q.Where("categories LIKE ?", "%\""+filter.Category+"\"%")
	}

	if filter.Cursor != "" {
		c, err := pagination.Decode(filter.Cursor)
		if err != nil {
			return nil, apierrors.Invalid("bad cursor: %v", err)
		}
		if err := pagination.ValidateFilter(c, filter.key()); err != nil {
			return nil, apierrors.Invalid("%v", err)
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var profiles []models.Profile
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	page := &models.Page[models.Profile]{Items: profiles}
	if len(profiles) == limit {
		last := profiles[len(profiles)-1]
		page.NextCursor = pagination.NextToken(last.CreatedAt, last.ID, filter.key(), true)
	}
	return page, nil
}

func marshalList(items []string) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
