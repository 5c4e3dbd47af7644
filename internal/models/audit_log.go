package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is one row of SYS_AuditLog.
type AuditLog struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	EmployeeCode   int64     `gorm:"not null;index" json:"employee_code"`
	Action         string    `gorm:"size:32;not null;index" json:"action"`
	SubjectTable   string    `gorm:"column:table_name;size:64" json:"table_name"`
	RecordID       string    `gorm:"size:64" json:"record_id"`
	PreviousValues string    `json:"previous_values"`
	NewValues      string    `json:"new_values"`
	IPAddress      string    `gorm:"size:64" json:"ip_address"`
	WindowID       int       `json:"window_id"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName pins the legacy table name.
func (AuditLog) TableName() string {
	return "SYS_AuditLog"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
