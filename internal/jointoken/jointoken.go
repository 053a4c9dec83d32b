// Package jointoken implements the ephemeral join-token store a desktop
// owner uses to start a pairing flow: a short-lived, single-use token
// encoded into a QR code, grounded on the Rust daemon's
// auth/join_tokens.rs::JoinTokenStore. Unlike that store, this package
// never compares a PIN itself: pairing PIN verification lives entirely
// in internal/pairing, which upgrades the Rust daemon's plain string
// comparison to a constant-time bcrypt check.
package jointoken

import (
	"errors"
	"sync"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/pairing"
)

// TTL is how long a freshly generated join token remains valid.
const TTL = 5 * time.Minute

// ErrNotFound is returned when a token doesn't exist or has expired.
var ErrNotFound = errors.New("jointoken: not found or expired")

// ErrAlreadyUsed is returned when a token has already been claimed by a
// device.
var ErrAlreadyUsed = errors.New("jointoken: already used")

// Token is one outstanding join token.
type Token struct {
	Value     string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	DeviceIP  string
}

// Store is an in-memory, mutex-guarded table of outstanding join
// tokens, swept of stale entries on every access, the same shape as
// the Rust daemon's HashMap-backed JoinTokenStore.
type Store struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// New returns an empty Store.
func New() *Store {
	return &Store{tokens: make(map[string]Token)}
}

// Generate mints a new join token for createdBy (the owner's user id)
// and records it as outstanding.
func (s *Store) Generate(createdBy string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	value := pairing.GenerateJoinToken()
	s.tokens[value] = Token{
		Value:     value,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
	return value
}

// IsValid reports whether a token exists, is unexpired, and hasn't been
// used yet.
func (s *Store) IsValid(value string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	t, ok := s.tokens[value]
	return ok && !t.Used && now.Before(t.ExpiresAt)
}

// Claim marks a token used by a connecting device, recording its IP.
// Returns ErrNotFound for a missing/expired token and ErrAlreadyUsed if
// another device already claimed it. The pairing state machine is what
// actually issues the PIN, so unlike the Rust daemon's use_token this
// doesn't generate one itself.
func (s *Store) Claim(value, deviceIP string, now time.Time) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	t, ok := s.tokens[value]
	if !ok {
		return Token{}, ErrNotFound
	}
	if t.Used {
		return Token{}, ErrAlreadyUsed
	}
	t.Used = true
	t.DeviceIP = deviceIP
	s.tokens[value] = t
	return t, nil
}

func (s *Store) sweepLocked(now time.Time) {
	for k, t := range s.tokens {
		if now.After(t.ExpiresAt) {
			delete(s.tokens, k)
		}
	}
}
