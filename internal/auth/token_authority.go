package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL   = 15 * time.Minute
	DefaultRefreshTokenTTL  = 7 * 24 * time.Hour
	DefaultRefreshThreshold = 2 * time.Minute
	DefaultIssuer           = "JovyWeb"
	DefaultAudience         = "JovyWeb-API"
)

// TokenType discriminates access from refresh tokens signed with the same key.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

var signingMethod = jwt.SigningMethodHS512

// TokenConfig bundles the settings required to build a TokenAuthority.
type TokenConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
}

// AccessClaims are the claims carried by an access token. Name and email are
// never included; profile data lives in the session store.
type AccessClaims struct {
	Type              TokenType `json:"type"`
	Department        int       `json:"department"`
	SalesPersonCode   string    `json:"slpcode,omitempty"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token.
type RefreshClaims struct {
	Type              TokenType `json:"type"`
	EmployeeCode      int64     `json:"employeeCode"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	jwt.RegisteredClaims
}

// EmployeeID returns the subject as an employee id.
func (c *AccessClaims) EmployeeID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// AccessTokenInput holds the values bound into a new access token.
type AccessTokenInput struct {
	EmployeeID        int64
	Department        int
	SalesPersonCode   string
	DeviceFingerprint string
}

// TokenAuthority issues and verifies signed access and refresh tokens. It holds
// no mutable state.
type TokenAuthority struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenAuthority returns ErrSigningKeyMissing when no secret is configured.
func NewTokenAuthority(cfg TokenConfig) (*TokenAuthority, error) {
	if cfg.Secret == "" {
		return nil, ErrSigningKeyMissing
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenAuthority{
		secret:     []byte(cfg.Secret),
		issuer:     issuer,
		audience:   cfg.Audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (a *TokenAuthority) AccessTokenTTL() time.Duration { return a.accessTTL }

// RefreshTokenTTL returns the configured refresh token lifetime.
func (a *TokenAuthority) RefreshTokenTTL() time.Duration { return a.refreshTTL }

// IssueAccessToken signs a short lived access token.
func (a *TokenAuthority) IssueAccessToken(input AccessTokenInput) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrSigningKeyMissing
	}

	now := a.now()
	claims := &AccessClaims{
		Type:              TokenTypeAccess,
		Department:        input.Department,
		SalesPersonCode:   input.SalesPersonCode,
		DeviceFingerprint: input.DeviceFingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(input.EmployeeID, 10),
			Issuer:    a.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}

	return a.sign(claims)
}

// IssueRefreshToken signs a long lived refresh token bound to a device.
func (a *TokenAuthority) IssueRefreshToken(employeeID int64, deviceFingerprint string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrSigningKeyMissing
	}

	now := a.now()
	claims := &RefreshClaims{
		Type:              TokenTypeRefresh,
		EmployeeCode:      employeeID,
		DeviceFingerprint: deviceFingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(employeeID, 10),
			Issuer:    a.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.refreshTTL)),
		},
	}

	return a.sign(claims)
}

func (a *TokenAuthority) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken reports whether token is a correctly signed, unexpired
// ACCESS token from this issuer. It never returns an error.
func (a *TokenAuthority) ValidateAccessToken(token string) bool {
	_, err := a.ParseAccessToken(token)
	return err == nil
}

// ValidateRefreshToken mirrors ValidateAccessToken for REFRESH tokens.
func (a *TokenAuthority) ValidateRefreshToken(token string) bool {
	_, err := a.ParseRefreshToken(token)
	return err == nil
}

// ParseAccessToken verifies token and returns its claims.
func (a *TokenAuthority) ParseAccessToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	opts := a.parserOptions()
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	var claims AccessClaims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, a.keyFunc); err != nil {
		return nil, fmt.Errorf("jwt: parse access token: %w", err)
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("jwt: unexpected token type %q", claims.Type)
	}
	if _, err := claims.EmployeeID(); err != nil {
		return nil, fmt.Errorf("jwt: invalid subject: %w", err)
	}
	return &claims, nil
}

// ParseRefreshToken verifies token and returns its claims.
func (a *TokenAuthority) ParseRefreshToken(token string) (*RefreshClaims, error) {
	if token == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	var claims RefreshClaims
	if _, err := jwt.NewParser(a.parserOptions()...).ParseWithClaims(token, &claims, a.keyFunc); err != nil {
		return nil, fmt.Errorf("jwt: parse refresh token: %w", err)
	}
	if claims.Type != TokenTypeRefresh {
		return nil, fmt.Errorf("jwt: unexpected token type %q", claims.Type)
	}
	return &claims, nil
}

// ExtractEmployeeID reads the subject of any verified token issued here.
func (a *TokenAuthority) ExtractEmployeeID(token string) (int64, bool) {
	var claims jwt.RegisteredClaims
	if _, err := jwt.NewParser(a.parserOptions()...).ParseWithClaims(token, &claims, a.keyFunc); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsNearExpiry reports whether token expires within threshold. Tokens that
// cannot be read, including expired ones, report true so callers try a refresh.
func (a *TokenAuthority) IsNearExpiry(token string, threshold time.Duration) bool {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims jwt.RegisteredClaims
	if _, err := parser.ParseWithClaims(token, &claims, a.keyFunc); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Sub(a.now()) < threshold
}

func (a *TokenAuthority) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	}
}

func (a *TokenAuthority) keyFunc(*jwt.Token) (any, error) {
	return a.secret, nil
}
