// Package schedules manages per-project shoot-day schedules and the
// reminder sweep that notifies assignees.
package schedules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
)

// ProjectOwners resolves project ownership. Implemented by the projects
// service.
type ProjectOwners interface {
	OwnerOf(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)
}

// AcceptedLister lists users accepted on a project. Implemented by the
// applications service.
type AcceptedLister interface {
	AcceptedUserIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
}

// ScheduleService defines schedule operations.
type ScheduleService interface {
	Create(ctx context.Context, callerID, projectID uuid.UUID, req *models.ScheduleEntryRequest) (*models.ScheduleEntry, error)
	Update(ctx context.Context, callerID, entryID uuid.UUID, req *models.ScheduleEntryRequest) (*models.ScheduleEntry, error)
	Delete(ctx context.Context, callerID, entryID uuid.UUID) error
	ListProject(ctx context.Context, callerID, projectID uuid.UUID) ([]EntryWithAssignees, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]models.ScheduleEntry, error)
}

// EntryWithAssignees pairs an entry with its assignee user IDs.
type EntryWithAssignees struct {
	Entry     models.ScheduleEntry `json:"entry"`
	Assignees []uuid.UUID          `json:"assignees"`
}

// Service implements ScheduleService.
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	owners   ProjectOwners
	accepted AcceptedLister
}

// NewService creates the schedule service.
func NewService(logger *zap.Logger, db *gorm.DB, owners ProjectOwners, accepted AcceptedLister) (*Service, error) {
	return &Service{logger: logger, db: db, owners: owners, accepted: accepted}, nil
}

// Create adds a schedule entry to a project the caller owns. Assignees must
// be accepted applicants of the project.
func (s *Service) Create(ctx context.Context, callerID, projectID uuid.UUID, req *models.ScheduleEntryRequest) (*models.ScheduleEntry, error) {
	if err := s.requireOwner(ctx, callerID, projectID); err != nil {
		return nil, err
	}
	if err := s.validateAssignees(ctx, projectID, req.Assignees); err != nil {
		return nil, err
	}

	entry := models.ScheduleEntry{
		ID:        uuid.New(),
		ProjectID: projectID,
		CallTime:  req.CallTime,
		WrapTime:  req.WrapTime,
		Location:  req.Location,
		Note:      req.Note,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return replaceAssignees(tx, entry.ID, req.Assignees)
	})
	if err != nil {
		return nil, fmt.Errorf("create schedule entry: %w", err)
	}
	return &entry, nil
}

// Update rewrites an entry and its assignee set.
func (s *Service) Update(ctx context.Context, callerID, entryID uuid.UUID, req *models.ScheduleEntryRequest) (*models.ScheduleEntry, error) {
	entry, err := s.ownedEntry(ctx, callerID, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.validateAssignees(ctx, entry.ProjectID, req.Assignees); err != nil {
		return nil, err
	}

	entry.CallTime = req.CallTime
	entry.WrapTime = req.WrapTime
	entry.Location = req.Location
	entry.Note = req.Note
	// Changing call time restarts the reminder window.
	entry.ReminderSent = false

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(entry).Error; err != nil {
			return err
		}
		return replaceAssignees(tx, entry.ID, req.Assignees)
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule entry: %w", err)
	}
	return entry, nil
}

// Delete removes an entry and its assignees.
func (s *Service) Delete(ctx context.Context, callerID, entryID uuid.UUID) error {
	entry, err := s.ownedEntry(ctx, callerID, entryID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.ScheduleAssignee{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ScheduleEntry{}, "id = ?", entry.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	return nil
}

// ListProject returns all entries of a project for its owner or an assignee.
func (s *Service) ListProject(ctx context.Context, callerID, projectID uuid.UUID) ([]EntryWithAssignees, error) {
	ownerID, err := s.owners.OwnerOf(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if ownerID != callerID {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.ScheduleAssignee{}).
			Joins("JOIN schedule_entries ON schedule_entries.id = schedule_assignees.entry_id").
			Where("schedule_entries.project_id = ? AND schedule_assignees.user_id = ?", projectID, callerID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("check assignee: %w", err)
		}
		if count == 0 {
			return nil, apierrors.Forbidden("not on this project's schedule")
		}
	}

	var entries []models.ScheduleEntry
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("call_time ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}

	out := make([]EntryWithAssignees, 0, len(entries))
	for _, entry := range entries {
		var ids []uuid.UUID
		if err := s.db.WithContext(ctx).Model(&models.ScheduleAssignee{}).
			Where("entry_id = ?", entry.ID).Pluck("user_id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list assignees: %w", err)
		}
		out = append(out, EntryWithAssignees{Entry: entry, Assignees: ids})
	}
	return out, nil
}

// ListMine returns upcoming entries the user is assigned to.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	err := s.db.WithContext(ctx).Model(&models.ScheduleEntry{}).
		Joins("JOIN schedule_assignees ON schedule_assignees.entry_id = schedule_entries.id").
		Where("schedule_assignees.user_id = ?", userID).
		Order("schedule_entries.call_time ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list my schedule: %w", err)
	}
	return entries, nil
}

func (s *Service) requireOwner(ctx context.Context, callerID, projectID uuid.UUID) error {
	ownerID, err := s.owners.OwnerOf(ctx, projectID)
	if err != nil {
		return err
	}
	if ownerID != callerID {
		return apierrors.Forbidden("not the project owner")
	}
	return nil
}

func (s *Service) ownedEntry(ctx context.Context, callerID, entryID uuid.UUID) (*models.ScheduleEntry, error) {
	var entry models.ScheduleEntry
	err := s.db.WithContext(ctx).Where("id = ?", entryID).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("schedule entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule entry: %w", err)
	}
	if err := s.requireOwner(ctx, callerID, entry.ProjectID); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) validateAssignees(ctx context.Context, projectID uuid.UUID, assignees []uuid.UUID) error {
	if len(assignees) == 0 {
		return nil
	}
	accepted, err := s.accepted.AcceptedUserIDs(ctx, projectID)
	if err != nil {
		return err
	}
	acceptedSet := make(map[uuid.UUID]struct{}, len(accepted))
	for _, id := range accepted {
		acceptedSet[id] = struct{}{}
	}
	for _, id := range assignees {
		if _, ok := acceptedSet[id]; !ok {
			return apierrors.Invalid("user %s is not an accepted applicant on this project", id)
		}
	}
	return nil
}

func replaceAssignees(tx *gorm.DB, entryID uuid.UUID, assignees []uuid.UUID) error {
	if err := tx.Where("entry_id = ?", entryID).Delete(&models.ScheduleAssignee{}).Error; err != nil {
		return err
	}
	for _, userID := range assignees {
		row := models.ScheduleAssignee{ID: uuid.New(), EntryID: entryID, UserID: userID}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
