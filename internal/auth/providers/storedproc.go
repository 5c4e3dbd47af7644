package providers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/pkg/logger"
)

// Default login procedure invocations per dialect. Both receive the username
// and password and return a single JSON document column.
const (
	MySQLLoginQuery    = "CALL MASTER_VLogin(?, ?)"
	PostgresLoginQuery = "SELECT * FROM master_vlogin(?, ?)"
)

// StoredProcConfig configures the stored procedure authority.
type StoredProcConfig struct {
	// LoginQuery overrides the dialect default. Placeholders are bound to
	// username then password.
	LoginQuery string `mapstructure:"login_query"`
}

// StoredProcAuthority delegates credential checks to a database routine that
// answers with a JSON document such as
// [{"Status":"1","EmployeeID":"101","Department":"4","Name":"...","Email":"...","SlpCode":"17"}].
type StoredProcAuthority struct {
	db    *gorm.DB
	query string
}

// loginDocument is the procedure's reply. Values may arrive as strings or
// numbers.
type loginDocument struct {
	Status     int    `mapstructure:"Status"`
	Message    string `mapstructure:"Message"`
	EmployeeID int64  `mapstructure:"EmployeeID"`
	Department int    `mapstructure:"Department"`
	Name       string `mapstructure:"Name"`
	Email      string `mapstructure:"Email"`
	SlpCode    string `mapstructure:"SlpCode"`
}

func NewStoredProcAuthority(db *gorm.DB, cfg StoredProcConfig) (*StoredProcAuthority, error) {
	if db == nil {
		return nil, errors.New("storedproc provider: db is required")
	}

	query := strings.TrimSpace(cfg.LoginQuery)
	if query == "" {
		switch db.Dialector.Name() {
		case "mysql":
			query = MySQLLoginQuery
		case "postgres":
			query = PostgresLoginQuery
		default:
			return nil, fmt.Errorf("storedproc provider: login query is required for %s", db.Dialector.Name())
		}
	}

	return &StoredProcAuthority{db: db, query: query}, nil
}

// Authenticate implements auth.IdentityAuthority.
func (a *StoredProcAuthority) Authenticate(ctx context.Context, username, password string) (*auth.IdentityResult, error) {
	var raw sql.NullString
	row := a.db.WithContext(ctx).Raw(a.query, username, password).Row()
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &auth.IdentityResult{Message: "no login document returned"}, nil
		}
		return nil, fmt.Errorf("storedproc provider: execute login: %w", err)
	}

	doc, err := parseLoginDocument(raw.String)
	if err != nil {
		logger.WithModule("storedproc").Warn("unreadable login document", zap.Error(err))
		return nil, err
	}

	return &auth.IdentityResult{
		Status:          doc.Status,
		EmployeeID:      doc.EmployeeID,
		DepartmentCode:  doc.Department,
		Name:            doc.Name,
		Email:           doc.Email,
		SalesPersonCode: doc.SlpCode,
		Message:         doc.Message,
	}, nil
}

func parseLoginDocument(raw string) (loginDocument, error) {
	var doc loginDocument

	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return doc, errors.New("storedproc provider: empty login document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if data[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return doc, fmt.Errorf("storedproc provider: decode login document: %w", err)
		}
		if len(rows) == 0 {
			return doc, errors.New("storedproc provider: empty login document")
		}
		fields = rows[0]
	} else if err := dec.Decode(&fields); err != nil {
		return doc, fmt.Errorf("storedproc provider: decode login document: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &doc,
	})
	if err != nil {
		return doc, err
	}
	if err := decoder.Decode(fields); err != nil {
		return doc, fmt.Errorf("storedproc provider: map login document: %w", err)
	}
	return doc, nil
}
