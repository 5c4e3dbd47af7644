package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/auth"
)

// Provider names accepted by identity.provider.
const (
	ProviderStoredProc = "storedproc"
	ProviderLDAP       = "ldap"
	ProviderStatic     = "static"
)

// ErrProviderExists is returned when a provider name is registered twice.
var ErrProviderExists = errors.New("provider registry: provider already registered")

// ErrUnknownProvider is returned when no factory matches the requested name.
var ErrUnknownProvider = errors.New("provider registry: unknown provider")

// Settings bundles per-provider configuration.
type Settings struct {
	StoredProc StoredProcConfig `mapstructure:"storedproc"`
	LDAP       LDAPConfig       `mapstructure:"ldap"`
	Static     StaticSettings   `mapstructure:"static"`
}

// StaticSettings lists the accounts served by the static provider.
type StaticSettings struct {
	Users []StaticUser `mapstructure:"users"`
}

// Factory builds an identity authority.
type Factory func(db *gorm.DB, settings Settings) (auth.IdentityAuthority, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the built-in providers.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	_ = reg.Register(ProviderStoredProc, func(db *gorm.DB, s Settings) (auth.IdentityAuthority, error) {
		return NewStoredProcAuthority(db, s.StoredProc)
	})
	_ = reg.Register(ProviderLDAP, func(_ *gorm.DB, s Settings) (auth.IdentityAuthority, error) {
		return NewLDAPAuthority(s.LDAP)
	})
	_ = reg.Register(ProviderStatic, func(_ *gorm.DB, s Settings) (auth.IdentityAuthority, error) {
		return NewStaticAuthority(s.Static.Users)
	})
	return reg
}

func (r *Registry) Register(name string, factory Factory) error {
	name = normaliseName(name)
	if name == "" {
		return errors.New("provider registry: name is required")
	}
	if factory == nil {
		return errors.New("provider registry: factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.factories[name] = factory
	return nil
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named provider.
func (r *Registry) Build(name string, db *gorm.DB, settings Settings) (auth.IdentityAuthority, error) {
	r.mu.RLock()
	factory, ok := r.factories[normaliseName(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return factory(db, settings)
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
