package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/util"
)

// OperatorSession is a logged-in dashboard operator. Sessions live in
// process memory only: a restart logs everyone out, which is the intended
// revocation story for this service.
type OperatorSession struct {
	Username string
	IssuedAt time.Time
}

// Operator authenticates the dashboard operator and tracks bearer sessions.
// Tokens are random and stored hashed, so a leaked session table is useless
// on its own.
type Operator struct {
	mu           sync.RWMutex
	sessions     map[string]*OperatorSession // keyed by sha256(token)
	adminUser    string
	passwordHash string // bcrypt; empty disables login entirely
	ttl          time.Duration
}

func NewOperator(adminUser, passwordHash string, ttl time.Duration) *Operator {
	return &Operator{
		sessions:     make(map[string]*OperatorSession),
		adminUser:    adminUser,
		passwordHash: passwordHash,
		ttl:          ttl,
	}
}

// Login checks the operator credentials and issues a bearer token.
func (s *Operator) Login(username, password string) (string, error) {
	if s.passwordHash == "" {
		return "", apperrors.New(apperrors.ErrCodeInternal, "Operator login is not configured")
	}

	// bcrypt comparison runs regardless of the username match so the two
	// failure cases are not distinguishable by timing.
	passwordOK := util.CheckPasswordHash(password, s.passwordHash)
	if !util.ConstantTimeEqual(username, s.adminUser) || !passwordOK {
		return "", apperrors.Unauthorized("Invalid credentials")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", apperrors.Internal("could not generate session token").WithCause(err)
	}

	s.mu.Lock()
	s.sessions[util.HashToken(token)] = &OperatorSession{
		Username: username,
		IssuedAt: time.Now(),
	}
	s.mu.Unlock()

	return token, nil
}

// Validate resolves a bearer token to its session, or nil when the token is
// unknown or expired.
func (s *Operator) Validate(token string) *OperatorSession {
	if token == "" {
		return nil
	}

	hash := util.HashToken(token)

	s.mu.RLock()
	session, ok := s.sessions[hash]
	s.mu.RUnlock()

	if !ok {
		return nil
	}
	if time.Since(session.IssuedAt) > s.ttl {
		s.mu.Lock()
		delete(s.sessions, hash)
		s.mu.Unlock()
		return nil
	}
	return session
}

func (s *Operator) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, util.HashToken(token))
	s.mu.Unlock()
}

// SweepExpired drops sessions older than the TTL and returns the count.
func (s *Operator) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, session := range s.sessions {
		if now.Sub(session.IssuedAt) > s.ttl {
			delete(s.sessions, hash)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("count", removed).Msg("expired operator sessions removed")
	}
	return removed
}
