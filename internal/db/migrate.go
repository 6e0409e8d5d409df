package db

import (
	"fmt"

	"github.com/tommyle1310/flashfood-sync/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Room{},
		&models.ChatMessage{},
		&models.SupportSession{},
		&models.TrackedOrder{},
		&models.SyncMeta{},
	}
}

// AutoMigrate creates or updates all mirror tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
