package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/pkg/crypto"
)

// StaticUser is one configured account for the static authority.
type StaticUser struct {
	Username        string `mapstructure:"username"`
	PasswordHash    string `mapstructure:"password_hash"`
	EmployeeID      int64  `mapstructure:"employee_id"`
	DepartmentCode  int    `mapstructure:"department"`
	Name            string `mapstructure:"name"`
	Email           string `mapstructure:"email"`
	SalesPersonCode string `mapstructure:"sales_person_code"`
	Granted         bool   `mapstructure:"granted"`
}

// StaticAuthority checks credentials against an in-memory bcrypt table.
// Useful for development and tests.
type StaticAuthority struct {
	users map[string]StaticUser
	dummy string
}

// NewStaticAuthority indexes users by lower-cased username.
func NewStaticAuthority(users []StaticUser) (*StaticAuthority, error) {
	index := make(map[string]StaticUser, len(users))
	for _, u := range users {
		key := strings.ToLower(strings.TrimSpace(u.Username))
		if key == "" {
			return nil, errors.New("static provider: username is required")
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("static provider: password hash is required for %q", u.Username)
		}
		if u.EmployeeID <= 0 {
			return nil, fmt.Errorf("static provider: employee id is required for %q", u.Username)
		}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("static provider: duplicate username %q", u.Username)
		}
		index[key] = u
	}

	dummy, err := crypto.HashPassword("static-provider-timing-guard")
	if err != nil {
		return nil, fmt.Errorf("static provider: hash dummy password: %w", err)
	}

	return &StaticAuthority{users: index, dummy: dummy}, nil
}

// Authenticate implements auth.IdentityAuthority.
func (a *StaticAuthority) Authenticate(ctx context.Context, username, password string) (*auth.IdentityResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, ok := a.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		// Unknown users still pay for a bcrypt comparison.
		crypto.VerifyPassword(a.dummy, password)
		return &auth.IdentityResult{Message: "invalid username or password"}, nil
	}
	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return &auth.IdentityResult{Message: "invalid username or password"}, nil
	}

	result := &auth.IdentityResult{
		Status:          auth.StatusGranted,
		EmployeeID:      user.EmployeeID,
		DepartmentCode:  user.DepartmentCode,
		Name:            user.Name,
		Email:           user.Email,
		SalesPersonCode: user.SalesPersonCode,
	}
	if !user.Granted {
		result.Status = auth.StatusNoAccess
		result.Message = "access not granted"
	}
	return result, nil
}
