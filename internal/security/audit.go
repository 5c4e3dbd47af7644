package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/app"
	"github.com/jovyweb/authcore/internal/database"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretBytes        = 32
	maxRecommendedRefresh = 30 * 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates the auth configuration and its backing stores.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are optional; missing
// inputs degrade specific checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	var checks []Check
	if s.cfg == nil {
		checks = []Check{{
			ID:          "configuration_loaded",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; auth settings were not evaluated.",
			Remediation: "Load configuration before running the security audit.",
		}}
	} else {
		checks = []Check{
			s.checkJWTSecret(),
			s.checkTokenLifetimes(),
			s.checkRefreshThreshold(),
			s.checkDeviceBinding(),
			s.checkLoginRateLimit(),
		}
	}
	checks = append(checks, s.checkAuditStorage(ctx))

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkJWTSecret() Check {
	length := len(s.cfg.Auth.JWT.Secret)

	switch {
	case length == 0:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Set JOVYAUTH_AUTH_JWT_SECRET to a random value of at least 64 bytes.",
		}
	case length < minSecretBytes:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is only %d bytes.", length),
			Remediation: "Use a randomly generated secret of at least 64 bytes for HS512.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "jwt_secret_strength",
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkTokenLifetimes() Check {
	access := s.cfg.Auth.JWT.AccessTokenTTL
	refresh := s.cfg.Auth.JWT.RefreshTokenTTL
	details := map[string]any{"access_ttl": access.String(), "refresh_ttl": refresh.String()}

	if access <= 0 || refresh <= 0 {
		return Check{
			ID:          "token_lifetimes",
			Status:      StatusWarn,
			Message:     "Token lifetimes are not configured; defaults apply.",
			Remediation: "Set auth.jwt.access_token_ttl and auth.jwt.refresh_token_ttl explicitly.",
			Details:     details,
		}
	}
	if access >= refresh {
		return Check{
			ID:          "token_lifetimes",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Access token TTL (%s) is not shorter than refresh token TTL (%s).", access, refresh),
			Remediation: "Keep access tokens short lived and refresh tokens longer.",
			Details:     details,
		}
	}
	if refresh > maxRecommendedRefresh {
		return Check{
			ID:          "token_lifetimes",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds recommended maximum (%s).", refresh, maxRecommendedRefresh),
			Remediation: "Reduce refresh token TTL to 30 days or lower to limit credential exposure.",
			Details:     details,
		}
	}

	return Check{
		ID:      "token_lifetimes",
		Status:  StatusPass,
		Message: fmt.Sprintf("Access tokens live %s, refresh tokens %s.", access, refresh),
		Details: details,
	}
}

func (s *AuditService) checkRefreshThreshold() Check {
	threshold := s.cfg.Auth.JWT.RefreshThreshold
	access := s.cfg.Auth.JWT.AccessTokenTTL

	if threshold <= 0 {
		return Check{
			ID:          "refresh_threshold",
			Status:      StatusWarn,
			Message:     "Refresh threshold is not configured; the default applies.",
			Remediation: "Set auth.jwt.refresh_threshold.",
		}
	}
	if access > 0 && threshold >= access {
		return Check{
			ID:          "refresh_threshold",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Refresh threshold (%s) is not shorter than the access token TTL (%s); every request would refresh.", threshold, access),
			Remediation: "Lower auth.jwt.refresh_threshold below the access token TTL.",
		}
	}
	return Check{
		ID:      "refresh_threshold",
		Status:  StatusPass,
		Message: fmt.Sprintf("Tokens are refreshed within %s of expiry.", threshold),
	}
}

func (s *AuditService) checkDeviceBinding() Check {
	device := s.cfg.Auth.Device
	if !device.Validation {
		return Check{
			ID:          "device_binding",
			Status:      StatusWarn,
			Message:     "Device validation is disabled; stolen tokens work from any client.",
			Remediation: "Enable auth.device.validation.",
		}
	}
	if strings.EqualFold(strings.TrimSpace(device.MismatchAction), "BLOCK") {
		return Check{
			ID:      "device_binding",
			Status:  StatusPass,
			Message: "Requests from unrecognised devices are rejected.",
		}
	}
	return Check{
		ID:          "device_binding",
		Status:      StatusWarn,
		Message:     "Device mismatches are logged but allowed.",
		Remediation: "Set auth.device.mismatch_action to BLOCK.",
	}
}

func (s *AuditService) checkLoginRateLimit() Check {
	rl := s.cfg.Auth.RateLimit
	if rl.MaxAttempts <= 0 || rl.Window <= 0 || rl.BlockDuration <= 0 {
		return Check{
			ID:          "login_rate_limit",
			Status:      StatusWarn,
			Message:     "Login rate limit is partially configured; defaults fill the gaps.",
			Remediation: "Set auth.rate_limit.max_attempts, window and block_duration.",
		}
	}
	return Check{
		ID:      "login_rate_limit",
		Status:  StatusPass,
		Message: fmt.Sprintf("Clients are blocked for %s after %d failures within %s.", rl.BlockDuration, rl.MaxAttempts, rl.Window),
	}
}

func (s *AuditService) checkAuditStorage(ctx context.Context) Check {
	if s.cfg != nil && strings.EqualFold(s.cfg.Audit.Sink, "file") {
		path := strings.TrimSpace(s.cfg.Audit.File.Path)
		if path == "" {
			return Check{
				ID:          "audit_storage",
				Status:      StatusFail,
				Message:     "File audit sink selected without a path.",
				Remediation: "Set audit.file.path.",
			}
		}
		return Check{
			ID:      "audit_storage",
			Status:  StatusPass,
			Message: "Audit records are written to " + path + ".",
		}
	}

	if s.db == nil {
		return Check{
			ID:          "audit_storage",
			Status:      StatusWarn,
			Message:     "Database unavailable; audit records cannot be stored.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := database.Ping(pingCtx, s.db); err != nil {
		return Check{
			ID:          "audit_storage",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Audit database is unreachable: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}
	return Check{
		ID:      "audit_storage",
		Status:  StatusPass,
		Message: "Audit database reachable.",
	}
}
