package services

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/pkg/logger"
)

func TestFileAuditSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := newFileAuditSink(&buf, nil)

	occurred := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Record(context.Background(), auth.AuditRecord{
		EmployeeID:  7,
		Action:      auth.AuditLogout,
		SubjectType: auth.AuditSubjectAuth,
		SubjectID:   "7",
		NewValue:    "logout (all devices - 3 sessions)",
		Origin:      "10.0.0.1",
		WindowID:    1,
		OccurredAt:  occurred,
	}))
	require.NoError(t, sink.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "audit", line["event"])
	require.Equal(t, "LOGOUT", line["action"])
	require.Equal(t, float64(7), line["employee_code"])
	require.Equal(t, "10.0.0.1", line["ip_address"])
}

func TestNewFileAuditSinkRotatesToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := NewFileAuditSink(logger.FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	require.NoError(t, sink.Record(context.Background(), auth.AuditRecord{EmployeeID: 1, Action: auth.AuditLogin}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"action":"LOGIN"`)

	_, err = NewFileAuditSink(logger.FileOptions{})
	require.Error(t, err)
}
