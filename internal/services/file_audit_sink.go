package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/pkg/logger"
)

// FileAuditSink appends audit records as JSON lines to a rotated file.
type FileAuditSink struct {
	mu     sync.Mutex
	log    *zap.Logger
	closer io.Closer
}

// NewFileAuditSink writes to opts.Path with lumberjack rotation.
func NewFileAuditSink(opts logger.FileOptions) (*FileAuditSink, error) {
	if opts.Path == "" {
		return nil, errors.New("file audit sink: path is required")
	}
	rotator := logger.NewRotator(opts)
	return newFileAuditSink(rotator, rotator), nil
}

func newFileAuditSink(w io.Writer, closer io.Closer) *FileAuditSink {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "recorded_at",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), zapcore.InfoLevel)
	return &FileAuditSink{log: zap.New(core), closer: closer}
}

// Record implements auth.AuditSink.
func (s *FileAuditSink) Record(_ context.Context, record auth.AuditRecord) error {
	if record.Action == "" {
		return errors.New("file audit sink: action is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info("audit",
		zap.Int64("employee_code", record.EmployeeID),
		zap.String("action", string(record.Action)),
		zap.String("table_name", record.SubjectType),
		zap.String("record_id", record.SubjectID),
		zap.String("previous_values", record.PreviousValue),
		zap.String("new_values", record.NewValue),
		zap.String("ip_address", record.Origin),
		zap.Int("window_id", record.WindowID),
		zap.Time("occurred_at", record.OccurredAt),
	)
	return nil
}

// Close flushes and closes the underlying file.
func (s *FileAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.log.Sync()
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
