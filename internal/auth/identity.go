package auth

import (
	"context"
	"time"
)

// Identity authority status codes.
const (
	// StatusGranted means the credentials are valid and the employee may use the system.
	StatusGranted = 1
	// StatusNoAccess means the credentials are valid but access is not permitted.
	StatusNoAccess = 2
)

// IdentityResult is what an identity authority reports for a credential check.
type IdentityResult struct {
	Status          int
	EmployeeID      int64
	DepartmentCode  int
	Name            string
	Email           string
	SalesPersonCode string
	Message         string
}

// IdentityAuthority verifies credentials. Implementations may block on I/O;
// callers bound them through ctx.
type IdentityAuthority interface {
	Authenticate(ctx context.Context, username, password string) (*IdentityResult, error)
}

// AuditAction names the audited auth events.
type AuditAction string

const (
	AuditLogin  AuditAction = "LOGIN"
	AuditLogout AuditAction = "LOGOUT"
)

// AuditSubjectAuth is the subject type recorded for auth events.
const AuditSubjectAuth = "AUTH"

// AuditRecord is one audit event.
type AuditRecord struct {
	EmployeeID    int64
	Action        AuditAction
	SubjectType   string
	SubjectID     string
	PreviousValue string
	NewValue      string
	Origin        string
	WindowID      int
	OccurredAt    time.Time
}

// AuditSink persists audit records. A failing sink never fails the operation
// that produced the record.
type AuditSink interface {
	Record(ctx context.Context, record AuditRecord) error
}

// IdentityFunc adapts a function to IdentityAuthority.
type IdentityFunc func(ctx context.Context, username, password string) (*IdentityResult, error)

func (f IdentityFunc) Authenticate(ctx context.Context, username, password string) (*IdentityResult, error) {
	return f(ctx, username, password)
}
