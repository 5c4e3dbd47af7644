package providers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/jovyweb/authcore/internal/auth"
)

// LDAPConfig configures the directory authority. Attributes maps result
// fields (employee_id, department, name, email, slpcode) to directory
// attribute names.
type LDAPConfig struct {
	Host         string            `mapstructure:"host"`
	Port         int               `mapstructure:"port"`
	UseTLS       bool              `mapstructure:"use_tls"`
	SkipVerify   bool              `mapstructure:"skip_verify"`
	BaseDN       string            `mapstructure:"base_dn"`
	BindDN       string            `mapstructure:"bind_dn"`
	BindPassword string            `mapstructure:"bind_password"`
	UserFilter   string            `mapstructure:"user_filter"`
	AccessGroup  string            `mapstructure:"access_group"`
	Attributes   map[string]string `mapstructure:"attributes"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

var defaultLDAPAttributes = map[string]string{
	"employee_id": "employeeNumber",
	"department":  "departmentNumber",
	"name":        "displayName",
	"email":       "mail",
	"slpcode":     "salesPersonCode",
	"groups":      "memberOf",
}

// LDAPAuthority performs directory binds to validate credentials and collect
// employee attributes.
type LDAPAuthority struct {
	cfg     LDAPConfig
	attrs   map[string]string
	timeout time.Duration
}

func NewLDAPAuthority(cfg LDAPConfig) (*LDAPAuthority, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("ldap provider: host is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("ldap provider: port must be positive")
	}
	if strings.TrimSpace(cfg.BaseDN) == "" {
		return nil, errors.New("ldap provider: base dn is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	attrs := make(map[string]string, len(defaultLDAPAttributes))
	for k, v := range defaultLDAPAttributes {
		attrs[k] = v
	}
	for k, v := range cfg.Attributes {
		if v = strings.TrimSpace(v); v != "" {
			attrs[strings.ToLower(k)] = v
		}
	}

	return &LDAPAuthority{cfg: cfg, attrs: attrs, timeout: timeout}, nil
}

// Authenticate implements auth.IdentityAuthority. Unknown users and failed
// binds yield a result without a granted status rather than an error.
func (a *LDAPAuthority) Authenticate(ctx context.Context, username, password string) (*auth.IdentityResult, error) {
	identifier := strings.TrimSpace(username)
	if identifier == "" || password == "" {
		return &auth.IdentityResult{Message: "identifier and password are required"}, nil
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	} else {
		conn.SetTimeout(a.timeout)
	}

	if strings.TrimSpace(a.cfg.BindDN) != "" {
		if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("ldap provider: bind service account: %w", err)
		}
	}

	searchRequest := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2,
		0,
		false,
		buildLDAPFilter(a.cfg.UserFilter, identifier),
		buildAttributeList(a.attrs),
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("ldap provider: search: %w", err)
	}
	if len(searchResult.Entries) != 1 {
		return &auth.IdentityResult{Message: "user not found"}, nil
	}
	entry := searchResult.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return &auth.IdentityResult{Message: "invalid credentials"}, nil
		}
		return nil, fmt.Errorf("ldap provider: bind user: %w", err)
	}

	return a.resultFromEntry(entry)
}

func (a *LDAPAuthority) dial(ctx context.Context) (*ldap.Conn, error) {
	scheme := "ldap"
	dialer := &net.Dialer{Timeout: a.timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	dialOpts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if a.cfg.UseTLS {
		scheme = "ldaps"
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(&tls.Config{
			ServerName:         a.cfg.Host,
			InsecureSkipVerify: a.cfg.SkipVerify, //nolint:gosec // operator opt-in
		}))
	}

	conn, err := ldap.DialURL(fmt.Sprintf("%s://%s:%d", scheme, a.cfg.Host, a.cfg.Port), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("ldap provider: dial: %w", err)
	}
	return conn, nil
}

func (a *LDAPAuthority) resultFromEntry(entry *ldap.Entry) (*auth.IdentityResult, error) {
	attrs := entryAttributes(entry)

	employeeID, err := strconv.ParseInt(attributeLookup(attrs, a.attrs["employee_id"]), 10, 64)
	if err != nil || employeeID <= 0 {
		return nil, fmt.Errorf("ldap provider: entry %s has no usable %s", entry.DN, a.attrs["employee_id"])
	}
	department, _ := strconv.Atoi(attributeLookup(attrs, a.attrs["department"]))

	result := &auth.IdentityResult{
		Status:          auth.StatusGranted,
		EmployeeID:      employeeID,
		DepartmentCode:  department,
		Name:            attributeLookup(attrs, a.attrs["name"]),
		Email:           attributeLookup(attrs, a.attrs["email"]),
		SalesPersonCode: attributeLookup(attrs, a.attrs["slpcode"]),
	}

	if group := strings.TrimSpace(a.cfg.AccessGroup); group != "" && !memberOf(attrs[a.attrs["groups"]], group) {
		result.Status = auth.StatusNoAccess
		result.Message = "not a member of " + group
	}
	return result, nil
}

func buildLDAPFilter(template string, identifier string) string {
	escaped := ldap.EscapeFilter(identifier)
	if strings.TrimSpace(template) == "" {
		return fmt.Sprintf("(uid=%s)", escaped)
	}
	filter := strings.ReplaceAll(template, "{identifier}", escaped)
	filter = strings.ReplaceAll(filter, "{username}", escaped)
	return filter
}

func buildAttributeList(mapping map[string]string) []string {
	attrs := map[string]struct{}{"dn": {}}
	for _, v := range mapping {
		if v = strings.TrimSpace(v); v != "" {
			attrs[v] = struct{}{}
		}
	}
	list := make([]string, 0, len(attrs))
	for k := range attrs {
		list = append(list, k)
	}
	return list
}

func entryAttributes(entry *ldap.Entry) map[string][]string {
	result := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		values := make([]string, len(attr.Values))
		copy(values, attr.Values)
		result[attr.Name] = values
	}
	return result
}

func attributeLookup(attrs map[string][]string, name string) string {
	if name == "" {
		return ""
	}
	for k, values := range attrs {
		if strings.EqualFold(k, name) && len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

// memberOf matches either a full group DN or its leading CN.
func memberOf(groups []string, want string) bool {
	for _, g := range groups {
		if strings.EqualFold(g, want) {
			return true
		}
		if dn, err := ldap.ParseDN(g); err == nil && len(dn.RDNs) > 0 && len(dn.RDNs[0].Attributes) > 0 {
			if strings.EqualFold(dn.RDNs[0].Attributes[0].Value, want) {
				return true
			}
		}
	}
	return false
}
