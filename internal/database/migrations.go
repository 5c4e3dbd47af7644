package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/models"
)

// AutoMigrate creates or updates the audit schema.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(&models.AuditLog{})
}
