package auth

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jovyweb/authcore/pkg/metrics"
)

// DefaultBlacklistRetention bounds how long revoked tokens are remembered.
const DefaultBlacklistRetention = 24 * time.Hour

// Session is the server-side record of a logged in employee on one device.
// Profile attributes are captured at login and never re-read from tokens.
type Session struct {
	EmployeeID        int64     `json:"employee_id"`
	AccessToken       string    `json:"-"`
	RefreshToken      string    `json:"-"`
	DeviceFingerprint string    `json:"-"`
	DepartmentCode    int       `json:"department_code"`
	Name              string    `json:"name,omitempty"`
	Email             string    `json:"email,omitempty"`
	SalesPersonCode   string    `json:"sales_person_code,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastRefreshedAt   time.Time `json:"last_refreshed_at"`
	Active            bool      `json:"active"`
}

// SessionStoreConfig tunes a SessionStore.
type SessionStoreConfig struct {
	BlacklistRetention time.Duration
	Clock              func() time.Time
}

// SessionStore keeps live sessions keyed by access token and a time bounded
// blacklist of revoked tokens. Each method is atomic; sequences of calls are not.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]Session
	byEmployee map[int64]map[string]struct{}
	revoked    map[string]time.Time
	retention  time.Duration
	now        func() time.Time

	// unix nanos of the oldest entry in revoked, 0 when empty
	oldestRevoked atomic.Int64
}

func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	retention := cfg.BlacklistRetention
	if retention <= 0 {
		retention = DefaultBlacklistRetention
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	return &SessionStore{
		sessions:   make(map[string]Session),
		byEmployee: make(map[int64]map[string]struct{}),
		revoked:    make(map[string]time.Time),
		retention:  retention,
		now:        now,
	}
}

// Retention returns the configured blacklist retention.
func (s *SessionStore) Retention() time.Duration { return s.retention }

// Put stores session under accessToken, replacing any previous entry.
func (s *SessionStore) Put(accessToken string, session Session) {
	session.AccessToken = accessToken
	session.Active = true

	s.mu.Lock()
	s.putLocked(session)
	s.mu.Unlock()
	s.publish()
}

func (s *SessionStore) putLocked(session Session) {
	if prev, ok := s.sessions[session.AccessToken]; ok && prev.EmployeeID != session.EmployeeID {
		s.unindexLocked(prev)
	}
	s.sessions[session.AccessToken] = session
	idx, ok := s.byEmployee[session.EmployeeID]
	if !ok {
		idx = make(map[string]struct{})
		s.byEmployee[session.EmployeeID] = idx
	}
	idx[session.AccessToken] = struct{}{}
}

// Get returns the live session for accessToken.
func (s *SessionStore) Get(accessToken string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[accessToken]
	if !ok || !session.Active {
		return Session{}, false
	}
	return session, true
}

// Remove drops the entry for accessToken without blacklisting it.
func (s *SessionStore) Remove(accessToken string) {
	s.mu.Lock()
	if session, ok := s.sessions[accessToken]; ok {
		s.deleteLocked(session)
	}
	s.mu.Unlock()
	s.publish()
}

func (s *SessionStore) deleteLocked(session Session) {
	delete(s.sessions, session.AccessToken)
	s.unindexLocked(session)
}

func (s *SessionStore) unindexLocked(session Session) {
	idx := s.byEmployee[session.EmployeeID]
	delete(idx, session.AccessToken)
	if len(idx) == 0 {
		delete(s.byEmployee, session.EmployeeID)
	}
}

// FindByEmployeeID returns the oldest active session of employeeID.
func (s *SessionStore) FindByEmployeeID(employeeID int64) (Session, bool) {
	sessions := s.SessionsForEmployee(employeeID)
	if len(sessions) == 0 {
		return Session{}, false
	}
	return sessions[0], true
}

// SessionsForEmployee returns every active session of employeeID, oldest first.
func (s *SessionStore) SessionsForEmployee(employeeID int64) []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.byEmployee[employeeID]))
	for token := range s.byEmployee[employeeID] {
		if session := s.sessions[token]; session.Active {
			out = append(out, session)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AccessToken < out[j].AccessToken
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// IsBlacklisted reports whether token was revoked within the retention window.
func (s *SessionStore) IsBlacklisted(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[token]
	return ok
}

// Blacklist revokes token. Revoking twice keeps the first instant.
func (s *SessionStore) Blacklist(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.blacklistLocked(token, s.now())
	s.mu.Unlock()
	s.publish()
}

func (s *SessionStore) blacklistLocked(token string, at time.Time) {
	if token == "" {
		return
	}
	if _, ok := s.revoked[token]; ok {
		return
	}
	s.revoked[token] = at
	if oldest := s.oldestRevoked.Load(); oldest == 0 || at.UnixNano() < oldest {
		s.oldestRevoked.Store(at.UnixNano())
	}
}

// InvalidateAllForEmployee ends every session of employeeID, blacklisting
// their access and refresh tokens, and returns how many sessions ended.
func (s *SessionStore) InvalidateAllForEmployee(employeeID int64) int {
	now := s.now()

	s.mu.Lock()
	ended := 0
	for token := range s.byEmployee[employeeID] {
		session := s.sessions[token]
		session.Active = false
		s.blacklistLocked(session.AccessToken, now)
		s.blacklistLocked(session.RefreshToken, now)
		delete(s.sessions, token)
		ended++
	}
	delete(s.byEmployee, employeeID)
	s.mu.Unlock()

	s.publish()
	return ended
}

// Rotate atomically replaces previous with next during a refresh. previous
// must still be live and hold its refresh token; its access and refresh tokens
// are then blacklisted. A refresh token is redeemable once, so a rotation that
// lost a race with another refresh or a logout fails: ErrNoActiveSession when
// the employee has no live session left, ErrInvalidToken otherwise.
func (s *SessionStore) Rotate(previous, next Session) (Session, error) {
	now := s.now()
	next.Active = true

	s.mu.Lock()
	current, live := s.sessions[previous.AccessToken]
	if !live || current.RefreshToken != previous.RefreshToken {
		empty := len(s.byEmployee[previous.EmployeeID]) == 0
		s.mu.Unlock()
		if empty {
			return Session{}, ErrNoActiveSession
		}
		return Session{}, ErrInvalidToken
	}
	s.deleteLocked(current)
	s.blacklistLocked(previous.AccessToken, now)
	s.blacklistLocked(previous.RefreshToken, now)
	s.putLocked(next)
	s.mu.Unlock()

	s.publish()
	return next, nil
}

// SweepExpiredBlacklist forgets revocations older than retention and returns
// how many were dropped. It returns without locking until the oldest
// revocation is due.
func (s *SessionStore) SweepExpiredBlacklist(retention time.Duration) int {
	if retention <= 0 {
		retention = s.retention
	}
	cutoff := s.now().Add(-retention)
	if !s.sweepDue(cutoff) {
		return 0
	}

	s.mu.Lock()
	swept := 0
	var oldest int64
	for token, at := range s.revoked {
		if at.Before(cutoff) {
			delete(s.revoked, token)
			swept++
			continue
		}
		if n := at.UnixNano(); oldest == 0 || n < oldest {
			oldest = n
		}
	}
	s.oldestRevoked.Store(oldest)
	s.mu.Unlock()

	if swept > 0 {
		s.publish()
	}
	return swept
}

// sweepDue reports whether some revocation predates cutoff.
func (s *SessionStore) sweepDue(cutoff time.Time) bool {
	oldest := s.oldestRevoked.Load()
	return oldest != 0 && oldest < cutoff.UnixNano()
}

// PruneIdle ends sessions not refreshed within maxIdle. Their tokens are
// already expired by then, so they are not blacklisted.
func (s *SessionStore) PruneIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	pruned := 0
	for _, session := range s.sessions {
		if session.LastRefreshedAt.Before(cutoff) {
			s.deleteLocked(session)
			pruned++
		}
	}
	s.mu.Unlock()

	if pruned > 0 {
		s.publish()
	}
	return pruned
}

// StoreStats is a point in time view of the store.
type StoreStats struct {
	LiveSessions  int `json:"live_sessions"`
	Employees     int `json:"employees"`
	RevokedTokens int `json:"revoked_tokens"`
}

func (s *SessionStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{
		LiveSessions:  len(s.sessions),
		Employees:     len(s.byEmployee),
		RevokedTokens: len(s.revoked),
	}
}

func (s *SessionStore) publish() {
	stats := s.Stats()
	metrics.ActiveSessions.Set(float64(stats.LiveSessions))
	metrics.RevokedTokens.Set(float64(stats.RevokedTokens))
}
