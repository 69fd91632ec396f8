package database

import (
	"fmt"

	"github.com/yeremiapane/retail-sync/models"
	"gorm.io/gorm"
)

// EnsureTargetSchema creates or upgrades the analytical tables and the
// watermark table.
func EnsureTargetSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Customer{},
		&models.Product{},
		&models.Receipt{},
		&models.Sale{},
		&models.IngestState{},
	)
	if err != nil {
		return fmt.Errorf("migrating analytical schema: %w", err)
	}
	return nil
}
