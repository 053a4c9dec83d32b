// Package session issues and verifies the owner's bearer session tokens:
// opaque 64-hex-character strings backed by storage, with no rolling
// expiry: a session is good until its fixed ExpiresAt, the same
// simple TTL dex's own refresh-token-free session model uses before
// touching a renewal policy.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/idgen"
	"github.com/dorky-robot/salita-mesh/internal/pairing"
	"github.com/dorky-robot/salita-mesh/storage"
)

// ErrInvalid is returned for a missing, expired, or otherwise unusable
// session token.
var ErrInvalid = errors.New("session: invalid or expired token")

// Store issues and verifies session tokens against a storage backend.
type Store struct {
	db storage.Storage
}

// New returns a Store backed by the given storage.
func New(db storage.Storage) *Store {
	return &Store{db: db}
}

// Issue creates and persists a new session for userID, valid until
// now+ttl.
func (s *Store) Issue(ctx context.Context, userID string, now time.Time, ttl time.Duration) (storage.Session, error) {
	token := pairing.GenerateBearerToken()
	sess := storage.Session{
		ID:        idgen.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.db.CreateSession(ctx, sess); err != nil {
		return storage.Session{}, err
	}
	return sess, nil
}

// Verify looks up a session token and confirms it hasn't expired.
func (s *Store) Verify(ctx context.Context, token string, now time.Time) (storage.Session, error) {
	sess, err := s.db.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Session{}, ErrInvalid
	}
	if err != nil {
		return storage.Session{}, err
	}
	if now.After(sess.ExpiresAt) {
		return storage.Session{}, ErrInvalid
	}
	return sess, nil
}

// Revoke deletes a session token, logging the owner out.
func (s *Store) Revoke(ctx context.Context, token string) error {
	return s.db.DeleteSession(ctx, token)
}
