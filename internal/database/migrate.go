package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/crewcall/crewcall/pkg/models"
)

// AutoMigrate creates or updates the schema for all crewcall models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Project{},
		&models.RolePost{},
		&models.Application{},
		&models.ScheduleEntry{},
		&models.ScheduleAssignee{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
		&models.Device{},
		&models.Upload{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
