package models

import "testing"

func TestAuditLogBeforeCreateGeneratesID(t *testing.T) {
	var entry AuditLog
	if err := entry.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected audit log ID to be generated")
	}

	entry = AuditLog{ID: "fixed"}
	if err := entry.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if entry.ID != "fixed" {
		t.Fatalf("expected existing ID to be kept, got %q", entry.ID)
	}
}

func TestAuditLogTableName(t *testing.T) {
	if got := (AuditLog{}).TableName(); got != "SYS_AuditLog" {
		t.Fatalf("unexpected table name %q", got)
	}
}
