package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret-with-enough-entropy-0123456789"

func newTestAuthority(t *testing.T, clock func() time.Time) *TokenAuthority {
	t.Helper()
	authority, err := NewTokenAuthority(TokenConfig{
		Secret:          testSecret,
		Issuer:          DefaultIssuer,
		Audience:        DefaultAudience,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Clock:           clock,
	})
	require.NoError(t, err)
	return authority
}

func TestNewTokenAuthorityRequiresSecret(t *testing.T) {
	_, err := NewTokenAuthority(TokenConfig{})
	require.ErrorIs(t, err, ErrSigningKeyMissing)
}

func TestIssueAccessTokenValidUntilTTL(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	authority := newTestAuthority(t, func() time.Time { return current })

	token, err := authority.IssueAccessToken(AccessTokenInput{
		EmployeeID:        1042,
		Department:        12,
		SalesPersonCode:   "17",
		DeviceFingerprint: "fp-1",
	})
	require.NoError(t, err)
	require.True(t, authority.ValidateAccessToken(token))

	claims, err := authority.ParseAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, TokenTypeAccess, claims.Type)
	require.Equal(t, "1042", claims.Subject)
	require.Equal(t, DefaultIssuer, claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{DefaultAudience}, claims.Audience)
	require.Equal(t, 12, claims.Department)
	require.Equal(t, "17", claims.SalesPersonCode)
	require.Equal(t, "fp-1", claims.DeviceFingerprint)
	require.NotEmpty(t, claims.ID)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(15*time.Minute)))

	current = current.Add(15*time.Minute + time.Second)
	require.False(t, authority.ValidateAccessToken(token))
}

func TestAccessTokenCarriesNoPersonalData(t *testing.T) {
	authority := newTestAuthority(t, nil)
	token, err := authority.IssueAccessToken(AccessTokenInput{EmployeeID: 5, DeviceFingerprint: "fp"})
	require.NoError(t, err)

	var raw jwt.MapClaims
	_, _, err = jwt.NewParser().ParseUnverified(token, &raw)
	require.NoError(t, err)
	require.NotContains(t, raw, "email")
	require.NotContains(t, raw, "name")
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	authority := newTestAuthority(t, nil)

	access, err := authority.IssueAccessToken(AccessTokenInput{EmployeeID: 7, DeviceFingerprint: "fp"})
	require.NoError(t, err)
	refresh, err := authority.IssueRefreshToken(7, "fp")
	require.NoError(t, err)

	require.True(t, authority.ValidateRefreshToken(refresh))
	require.False(t, authority.ValidateAccessToken(refresh))
	require.False(t, authority.ValidateRefreshToken(access))
}

func TestRefreshTokenClaims(t *testing.T) {
	current := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	authority := newTestAuthority(t, func() time.Time { return current })

	refresh, err := authority.IssueRefreshToken(88, "fp-88")
	require.NoError(t, err)

	claims, err := authority.ParseRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, int64(88), claims.EmployeeCode)
	require.Equal(t, "fp-88", claims.DeviceFingerprint)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(7*24*time.Hour)))
}

func TestValidateRejectsForeignSignatureAndGarbage(t *testing.T) {
	authority := newTestAuthority(t, nil)
	other, err := NewTokenAuthority(TokenConfig{Secret: "another-secret", Audience: DefaultAudience})
	require.NoError(t, err)

	forged, err := other.IssueAccessToken(AccessTokenInput{EmployeeID: 1})
	require.NoError(t, err)

	_, err = authority.ParseAccessToken(forged)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	require.False(t, authority.ValidateAccessToken(forged))
	require.False(t, authority.ValidateAccessToken("not-a-token"))
	require.False(t, authority.ValidateAccessToken(""))
}

func TestValidateRejectsUnexpectedAlgorithm(t *testing.T) {
	authority := newTestAuthority(t, nil)

	claims := &AccessClaims{
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	require.False(t, authority.ValidateAccessToken(token))
}

func TestValidateRejectsOtherIssuer(t *testing.T) {
	authority := newTestAuthority(t, nil)
	other, err := NewTokenAuthority(TokenConfig{Secret: testSecret, Issuer: "Elsewhere", Audience: DefaultAudience})
	require.NoError(t, err)

	token, err := other.IssueAccessToken(AccessTokenInput{EmployeeID: 1})
	require.NoError(t, err)
	require.False(t, authority.ValidateAccessToken(token))
}

func TestExtractEmployeeID(t *testing.T) {
	authority := newTestAuthority(t, nil)

	access, err := authority.IssueAccessToken(AccessTokenInput{EmployeeID: 314})
	require.NoError(t, err)
	refresh, err := authority.IssueRefreshToken(271, "fp")
	require.NoError(t, err)

	id, ok := authority.ExtractEmployeeID(access)
	require.True(t, ok)
	require.Equal(t, int64(314), id)

	id, ok = authority.ExtractEmployeeID(refresh)
	require.True(t, ok)
	require.Equal(t, int64(271), id)

	_, ok = authority.ExtractEmployeeID("garbage")
	require.False(t, ok)
}

func TestIsNearExpiry(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	authority := newTestAuthority(t, func() time.Time { return current })

	token, err := authority.IssueAccessToken(AccessTokenInput{EmployeeID: 9})
	require.NoError(t, err)

	require.False(t, authority.IsNearExpiry(token, 2*time.Minute))

	current = current.Add(14 * time.Minute)
	require.True(t, authority.IsNearExpiry(token, 2*time.Minute))

	current = current.Add(time.Hour)
	require.True(t, authority.IsNearExpiry(token, 2*time.Minute), "expired tokens should prompt a refresh")

	require.True(t, authority.IsNearExpiry("garbage", 2*time.Minute))
	require.True(t, authority.IsNearExpiry(strings.Repeat("a.", 2)+"a", time.Minute))
}
