// Package peertoken issues, verifies, and auto-renews the bearer tokens
// peer mesh nodes present to this server, grounded on the Rust daemon's
// mesh/tokens.rs (issuance/default permissions) and
// auth/peer_auth.rs (the verification/grace-period/auto-renew algorithm).
package peertoken

import (
	"context"
	"errors"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/pairing"
	"github.com/dorky-robot/salita-mesh/storage"
)

// DefaultPermissions is the scope granted to a freshly registered peer,
// matching mesh/tokens.rs::default_permissions exactly, notably
// excluding any "admin:*" scope, since a paired device is never handed
// administrative capability over this server by default.
var DefaultPermissions = []string{
	"posts:read",
	"posts:create",
	"media:read",
	"media:upload",
	"comments:create",
}

const (
	// gracePeriod is how long a token remains acceptable past its
	// nominal expiry, to tolerate clock skew and in-flight requests.
	gracePeriod = 5 * time.Minute
	// renewThreshold is how close to expiry a token must be before a
	// successful verification also renews it.
	renewThreshold = 7 * 24 * time.Hour
	// renewTTL is how far out a renewal pushes the new expiry.
	renewTTL = 30 * 24 * time.Hour

	// DefaultTTL is the lifetime a freshly issued peer token gets,
	// exported so callers writing an IssuedToken row directly (the
	// pairing flow's atomic multi-row registration) can match
	// Service.Issue's own expiry without duplicating the constant.
	DefaultTTL = renewTTL
)

// ErrInvalid is returned for a missing, revoked, or too-far-expired
// token.
var ErrInvalid = errors.New("peertoken: invalid, revoked, or expired token")

// Peer is the authenticated identity and scope attached to a request
// once its bearer token verifies.
type Peer struct {
	NodeID      string
	Permissions []string
}

// Has reports whether the peer was granted a permission.
func (p Peer) Has(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// Service issues and verifies peer bearer tokens.
type Service struct {
	db storage.Storage
}

// New returns a Service backed by the given storage.
func New(db storage.Storage) *Service {
	return &Service{db: db}
}

// Issue mints and persists a new peer token for toNodeID, defaulting to
// DefaultPermissions when permissions is nil.
func (s *Service) Issue(ctx context.Context, toNodeID string, permissions []string, now time.Time) (string, error) {
	if permissions == nil {
		permissions = DefaultPermissions
	}
	token := pairing.GenerateBearerToken()
	err := s.db.IssuePeerToken(ctx, storage.IssuedToken{
		Token:          token,
		IssuedToNodeID: toNodeID,
		Permissions:    permissions,
		ExpiresAt:      now.Add(renewTTL),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Verify authenticates a bearer token, auto-renewing it if it's within
// renewThreshold of expiry and otherwise just recording last-used-at.
// This is a direct port of auth/peer_auth.rs's algorithm: grace period
// past nominal expiry, best-effort renewal (a renewal failure doesn't
// fail the request, matching the Rust daemon's `.ok()` swallow), and a
// parsed permission set attached to the returned Peer.
func (s *Service) Verify(ctx context.Context, token string, now time.Time) (Peer, error) {
	issued, err := s.db.GetIssuedToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return Peer{}, ErrInvalid
	}
	if err != nil {
		return Peer{}, err
	}
	if issued.RevokedAt != nil {
		return Peer{}, ErrInvalid
	}
	if now.After(issued.ExpiresAt.Add(gracePeriod)) {
		return Peer{}, ErrInvalid
	}

	if issued.ExpiresAt.Before(now.Add(renewThreshold)) {
		_ = s.db.RenewIssuedToken(ctx, token, now.Add(renewTTL), now)
	} else {
		_ = s.db.TouchIssuedToken(ctx, token, now)
	}

	return Peer{NodeID: issued.IssuedToNodeID, Permissions: issued.Permissions}, nil
}

// Revoke invalidates a peer token immediately.
func (s *Service) Revoke(ctx context.Context, token string, now time.Time) error {
	return s.db.RevokeIssuedToken(ctx, token, now)
}
