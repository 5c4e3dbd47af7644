package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/models"
)

const (
	defaultAuditListLimit = 50
	maxAuditListLimit     = 500
)

// AuditFilters narrows audit queries.
type AuditFilters struct {
	EmployeeID int64
	Action     string
	Since      *time.Time
	Until      *time.Time
}

// AuditOption customises an AuditService.
type AuditOption func(*AuditService)

// WithAuditClock overrides the clock used for timestamps and retention.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuditService stores auth audit records in SYS_AuditLog.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditService(db *gorm.DB, opts ...AuditOption) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	svc := &AuditService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Record implements auth.AuditSink.
func (s *AuditService) Record(ctx context.Context, record auth.AuditRecord) error {
	if strings.TrimSpace(string(record.Action)) == "" {
		return errors.New("audit service: action is required")
	}

	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	row := models.AuditLog{
		EmployeeCode:   record.EmployeeID,
		Action:         string(record.Action),
		SubjectTable:   record.SubjectType,
		RecordID:       record.SubjectID,
		PreviousValues: record.PreviousValue,
		NewValues:      record.NewValue,
		IPAddress:      record.Origin,
		WindowID:       record.WindowID,
		CreatedAt:      occurred.UTC(),
	}
	if err := s.db.WithContext(ensureContext(ctx)).Create(&row).Error; err != nil {
		return fmt.Errorf("audit service: create record: %w", err)
	}
	return nil
}

// List returns the newest records matching filters.
func (s *AuditService) List(ctx context.Context, filters AuditFilters, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	limit = min(limit, maxAuditListLimit)

	query := s.db.WithContext(ensureContext(ctx)).Model(&models.AuditLog{})
	if filters.EmployeeID != 0 {
		query = query.Where("employee_code = ?", filters.EmployeeID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", filters.Since.UTC())
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", filters.Until.UTC())
	}

	var rows []models.AuditLog
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit service: list records: %w", err)
	}
	return rows, nil
}

// CleanupOlderThan deletes records older than retentionDays.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays).UTC()

	result := s.db.WithContext(ensureContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
