package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jovyweb/authcore/internal/auditctx"
	"github.com/jovyweb/authcore/pkg/logger"
	"github.com/jovyweb/authcore/pkg/metrics"
)

// DevicePolicy decides what happens when a request comes from a device other
// than the one its session was bound to.
type DevicePolicy string

const (
	DevicePolicyWarn  DevicePolicy = "WARN"
	DevicePolicyBlock DevicePolicy = "BLOCK"
)

// ParseDevicePolicy accepts WARN or BLOCK in any case. Empty means WARN.
func ParseDevicePolicy(value string) (DevicePolicy, error) {
	switch DevicePolicy(strings.ToUpper(strings.TrimSpace(value))) {
	case "", DevicePolicyWarn:
		return DevicePolicyWarn, nil
	case DevicePolicyBlock:
		return DevicePolicyBlock, nil
	}
	return "", fmt.Errorf("auth: unknown device mismatch action %q", value)
}

// ServiceConfig tunes the orchestration rules.
type ServiceConfig struct {
	RefreshThreshold time.Duration
	DeviceValidation bool
	MismatchAction   DevicePolicy
	AuditWindowID    int
	Clock            func() time.Time
}

// ServiceDeps are the collaborators a Service composes.
type ServiceDeps struct {
	Tokens   *TokenAuthority
	Store    *SessionStore
	Limiter  *RateLimiter
	Identity IdentityAuthority
	Audit    AuditSink
}

// Service implements login, logout, validate and refresh on top of the token
// authority, session store and rate limiter.
type Service struct {
	tokens    *TokenAuthority
	store     *SessionStore
	limiter   *RateLimiter
	identity  IdentityAuthority
	audit     AuditSink
	threshold time.Duration
	device    bool
	policy    DevicePolicy
	windowID  int
	now       func() time.Time
	log       *zap.Logger
}

func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	switch {
	case deps.Tokens == nil:
		return nil, errors.New("auth service: token authority is required")
	case deps.Store == nil:
		return nil, errors.New("auth service: session store is required")
	case deps.Limiter == nil:
		return nil, errors.New("auth service: rate limiter is required")
	case deps.Identity == nil:
		return nil, errors.New("auth service: identity authority is required")
	}

	threshold := cfg.RefreshThreshold
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	policy := cfg.MismatchAction
	if policy == "" {
		policy = DevicePolicyWarn
	}
	windowID := cfg.AuditWindowID
	if windowID <= 0 {
		windowID = 1
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &Service{
		tokens:    deps.Tokens,
		store:     deps.Store,
		limiter:   deps.Limiter,
		identity:  deps.Identity,
		audit:     deps.Audit,
		threshold: threshold,
		device:    cfg.DeviceValidation,
		policy:    policy,
		windowID:  windowID,
		now:       now,
		log:       logger.WithModule("auth"),
	}, nil
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (s *Service) AccessTokenTTL() time.Duration { return s.tokens.AccessTokenTTL() }

// RefreshTokenTTL is the lifetime of issued refresh tokens.
func (s *Service) RefreshTokenTTL() time.Duration { return s.tokens.RefreshTokenTTL() }

// LoginInput is a credential check request together with where it came from.
type LoginInput struct {
	Username  string
	Password  string
	ClientIP  string
	UserAgent string
}

const (
	reasonInvalidCredentials = "invalid_credentials"
	reasonPermissionDenied   = "permission_denied"
	reasonRateLimited        = "rate_limited"
)

// Login authenticates in against the identity authority and opens a session
// bound to the caller's device. Blocked addresses are rejected before the
// authority is consulted.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	ip := NormalizeIP(in.ClientIP)

	if s.limiter.IsBlocked(ip) {
		until, _ := s.limiter.UnblockTime(ip)
		s.log.Warn("login rejected",
			zap.String("reason", reasonRateLimited),
			zap.String("ip", ip),
			zap.String("username", in.Username),
			zap.Time("blocked_until", until),
		)
		metrics.AuthAttempts.WithLabelValues(reasonRateLimited).Inc()
		return Session{}, ErrRateLimited
	}

	result, err := s.identity.Authenticate(ctx, in.Username, in.Password)
	switch {
	case err != nil || result == nil:
		return Session{}, s.rejectLogin(ip, in.Username, reasonInvalidCredentials, err)
	case result.Status == StatusNoAccess:
		return Session{}, s.rejectLogin(ip, in.Username, reasonPermissionDenied, nil)
	case result.Status != StatusGranted:
		return Session{}, s.rejectLogin(ip, in.Username, reasonInvalidCredentials, errors.New(result.Message))
	}

	userAgent := strings.TrimSpace(in.UserAgent)
	if userAgent == "" {
		userAgent = UnknownAgent
	}
	fingerprint := DeriveFingerprint(strings.TrimSpace(in.ClientIP), userAgent)

	accessToken, err := s.tokens.IssueAccessToken(AccessTokenInput{
		EmployeeID:        result.EmployeeID,
		Department:        result.DepartmentCode,
		SalesPersonCode:   result.SalesPersonCode,
		DeviceFingerprint: fingerprint,
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth service: issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(result.EmployeeID, fingerprint)
	if err != nil {
		return Session{}, fmt.Errorf("auth service: issue refresh token: %w", err)
	}

	now := s.now()
	session := Session{
		EmployeeID:        result.EmployeeID,
		AccessToken:       accessToken,
		RefreshToken:      refreshToken,
		DeviceFingerprint: fingerprint,
		DepartmentCode:    result.DepartmentCode,
		Name:              result.Name,
		Email:             result.Email,
		SalesPersonCode:   result.SalesPersonCode,
		CreatedAt:         now,
		LastRefreshedAt:   now,
		Active:            true,
	}
	s.store.Put(accessToken, session)
	s.limiter.ClearAttempts(ip)

	s.record(ctx, AuditRecord{
		EmployeeID: result.EmployeeID,
		Action:     AuditLogin,
		NewValue:   "login succeeded from " + ip,
		Origin:     ip,
		OccurredAt: now,
	})

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.log.Info("login succeeded",
		zap.Int64("employee_id", result.EmployeeID),
		zap.String("ip", ip),
	)
	return session, nil
}

// rejectLogin counts a failed attempt against ip and maps reason to an error.
func (s *Service) rejectLogin(ip, username, reason string, cause error) error {
	blocked := s.limiter.RecordFailedAttempt(ip)

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("ip", ip),
		zap.String("username", username),
		zap.Int("remaining_attempts", s.limiter.RemainingAttempts(ip)),
		zap.Bool("blocked", blocked),
	}
	if cause != nil && cause.Error() != "" {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	s.log.Warn("login rejected", fields...)
	metrics.AuthAttempts.WithLabelValues(reason).Inc()

	if reason == reasonPermissionDenied {
		return ErrPermissionDenied
	}
	return ErrInvalidCredentials
}

// Validate reports whether accessToken is unrevoked, correctly signed and
// backed by a live session.
func (s *Service) Validate(accessToken string) bool {
	_, err := s.Session(accessToken)
	return err == nil
}

// Session returns the live session behind accessToken, or ErrInvalidToken.
func (s *Service) Session(accessToken string) (Session, error) {
	s.store.SweepExpiredBlacklist(s.store.Retention())

	if accessToken == "" || s.store.IsBlacklisted(accessToken) {
		return Session{}, ErrInvalidToken
	}
	if !s.tokens.ValidateAccessToken(accessToken) {
		return Session{}, ErrInvalidToken
	}
	session, ok := s.store.Get(accessToken)
	if !ok {
		return Session{}, ErrInvalidToken
	}
	return session, nil
}

// NeedsRefresh reports whether accessToken is close enough to expiry that the
// caller should try a refresh.
func (s *Service) NeedsRefresh(accessToken string) bool {
	return s.tokens.IsNearExpiry(accessToken, s.threshold)
}

// Refresh redeems refreshToken for a new token pair. The superseded access and
// refresh tokens are revoked. Refreshes are not audited.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	session, err := s.refresh(refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return Session{}, err
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return session, nil
}

func (s *Service) refresh(refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrInvalidToken
	}
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		s.log.Debug("refresh token rejected", zap.Error(err))
		return Session{}, ErrInvalidToken
	}
	employeeID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Session{}, ErrInvalidToken
	}

	current, held, err := s.sessionForRefresh(employeeID, refreshToken)
	if err != nil {
		return Session{}, err
	}

	if !FingerprintsMatch(current.DeviceFingerprint, claims.DeviceFingerprint) {
		s.log.Warn("refresh token presented from another device",
			zap.Int64("employee_id", employeeID),
			zap.String("token", tokenPrefix(refreshToken)),
		)
		return Session{}, ErrFingerprintMismatch
	}
	if !held {
		s.log.Debug("spent refresh token presented",
			zap.Int64("employee_id", employeeID),
			zap.String("token", tokenPrefix(refreshToken)),
		)
		return Session{}, ErrInvalidToken
	}

	accessToken, err := s.tokens.IssueAccessToken(AccessTokenInput{
		EmployeeID:        current.EmployeeID,
		Department:        current.DepartmentCode,
		SalesPersonCode:   current.SalesPersonCode,
		DeviceFingerprint: current.DeviceFingerprint,
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth service: issue access token: %w", err)
	}
	nextRefresh, err := s.tokens.IssueRefreshToken(current.EmployeeID, current.DeviceFingerprint)
	if err != nil {
		return Session{}, fmt.Errorf("auth service: issue refresh token: %w", err)
	}

	next := current
	next.AccessToken = accessToken
	next.RefreshToken = nextRefresh
	next.LastRefreshedAt = s.now()

	rotated, err := s.store.Rotate(current, next)
	if err != nil {
		return Session{}, err
	}
	s.log.Debug("session refreshed", zap.Int64("employee_id", employeeID))
	return rotated, nil
}

// sessionForRefresh returns the live session holding refreshToken. When no
// session holds it, the token was already redeemed or revoked, whether or not
// its blacklist entry has been swept since; the employee's oldest session is
// returned with held false so the device binding is still checked first.
func (s *Service) sessionForRefresh(employeeID int64, refreshToken string) (session Session, held bool, err error) {
	sessions := s.store.SessionsForEmployee(employeeID)
	for _, candidate := range sessions {
		if candidate.RefreshToken == refreshToken {
			return candidate, true, nil
		}
	}
	switch {
	case s.store.IsBlacklisted(refreshToken):
		return Session{}, false, ErrInvalidToken
	case len(sessions) == 0:
		return Session{}, false, ErrNoActiveSession
	}
	return sessions[0], false, nil
}

// Logout ends every session of the employee owning accessToken and returns
// how many were ended. ErrNoActiveSession means the token was already dead.
func (s *Service) Logout(ctx context.Context, accessToken string) (int, error) {
	session, ok := s.store.Get(accessToken)
	if !ok {
		return 0, ErrNoActiveSession
	}

	ended := s.store.InvalidateAllForEmployee(session.EmployeeID)

	origin := UnknownIP
	if actor, ok := auditctx.FromContext(ctx); ok {
		origin = NormalizeIP(actor.IPAddress)
	}
	s.record(ctx, AuditRecord{
		EmployeeID: session.EmployeeID,
		Action:     AuditLogout,
		NewValue:   fmt.Sprintf("logout (all devices - %d sessions)", ended),
		Origin:     origin,
		OccurredAt: s.now(),
	})

	s.log.Info("employee logged out everywhere",
		zap.Int64("employee_id", session.EmployeeID),
		zap.Int("sessions", ended),
	)
	return ended, nil
}

// CheckDevice applies the device policy to a request made with session from
// clientIP and userAgent. Only the BLOCK policy returns an error.
func (s *Service) CheckDevice(session Session, clientIP, userAgent string) error {
	if !s.device {
		return nil
	}
	if userAgent == "" {
		userAgent = UnknownAgent
	}
	current := DeriveFingerprint(strings.TrimSpace(clientIP), userAgent)
	if FingerprintsMatch(session.DeviceFingerprint, current) {
		return nil
	}

	s.log.Warn("device fingerprint mismatch",
		zap.Int64("employee_id", session.EmployeeID),
		zap.String("ip", NormalizeIP(clientIP)),
		zap.String("policy", string(s.policy)),
	)
	if s.policy == DevicePolicyBlock {
		return ErrFingerprintMismatch
	}
	return nil
}

func (s *Service) record(ctx context.Context, record AuditRecord) {
	if s.audit == nil {
		return
	}
	record.SubjectType = AuditSubjectAuth
	record.SubjectID = strconv.FormatInt(record.EmployeeID, 10)
	record.WindowID = s.windowID

	if err := s.audit.Record(ctx, record); err != nil {
		s.log.Error("audit record failed",
			zap.String("action", string(record.Action)),
			zap.Int64("employee_id", record.EmployeeID),
			zap.Error(err),
		)
	}
}

func tokenPrefix(token string) string {
	const n = 12
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}
