// Package passkey implements the passkey (WebAuthn) ceremony store, for
// first-owner setup and subsequent logins. It owns the in-flight
// challenge bookkeeping; the FIDO2/CTAP2 protocol itself is delegated to
// github.com/go-webauthn/webauthn, the library teleport's
// lib/auth/webauthn names in its go.mod (dex carries no WebAuthn
// connector of its own).
package passkey

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dorky-robot/salita-mesh/internal/idgen"
	"github.com/dorky-robot/salita-mesh/internal/pairing"
	"github.com/dorky-robot/salita-mesh/storage"
)

// ErrCeremonyNotFound means the ceremony id is unknown, expired, or
// already consumed.
var ErrCeremonyNotFound = errors.New("passkey: ceremony not found or expired")

// ErrOwnerAlreadyExists means StartRegistration was called for a first
// setup but a User row already exists, and exactly one row may exist
// after first setup.
var ErrOwnerAlreadyExists = errors.New("passkey: an owner already exists")

// Service runs WebAuthn registration and authentication ceremonies
// against the single owner account.
type Service struct {
	wa         *webauthn.WebAuthn
	db         storage.Storage
	ceremonies *ceremonyStore
}

// New builds a Service. rpID is the server's effective domain (or a
// stable hostname/IP for a home server with no public DNS name); origins
// lists every scheme+host the frontend is served from.
func New(rpID, rpDisplayName string, origins []string, db storage.Storage) (*Service, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpDisplayName,
		RPOrigins:     origins,
	})
	if err != nil {
		return nil, err
	}
	return &Service{wa: wa, db: db, ceremonies: newCeremonyStore()}, nil
}

// StartRegistration begins first-owner setup or adding an additional
// passkey to the existing owner. For first setup, userID/username are
// freshly minted; for an additional passkey, they're the existing
// owner's.
func (s *Service) StartRegistration(ctx context.Context, username, displayName string, now time.Time) (string, *protocol.CredentialCreation, error) {
	sole, err := s.db.SoleUser(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", nil, err
	}

	var wu webauthnUser
	if err == nil {
		if sole.Username != username {
			return "", nil, ErrOwnerAlreadyExists
		}
		rows, err := s.db.ListPasskeyCredentialsByUser(ctx, sole.ID)
		if err != nil {
			return "", nil, err
		}
		creds, err := decodeCredentials(rows)
		if err != nil {
			return "", nil, err
		}
		wu = webauthnUser{user: sole, credentials: creds}
	} else {
		wu = webauthnUser{user: storage.User{
			ID:          idgen.New(),
			Username:    username,
			DisplayName: &displayName,
			CreatedAt:   now,
		}}
	}

	creation, session, err := s.wa.BeginRegistration(wu)
	if err != nil {
		return "", nil, err
	}

	ceremonyID := pairing.GenerateBearerToken()
	s.ceremonies.insertRegistration(ceremonyID, pendingRegistration{
		session:     *session,
		userID:      wu.user.ID,
		username:    wu.user.Username,
		displayName: wu.WebAuthnDisplayName(),
		insertedAt:  now,
	}, now)

	return ceremonyID, creation, nil
}

// FinishRegistration completes a pending registration: it verifies r
// against the stored challenge, persists the User row (creating it if
// this was first setup) and the new PasskeyCredential, and returns both.
func (s *Service) FinishRegistration(ctx context.Context, ceremonyID string, r *http.Request, now time.Time) (storage.User, storage.PasskeyCredential, error) {
	pending, ok := s.ceremonies.takeRegistration(ceremonyID)
	if !ok {
		return storage.User{}, storage.PasskeyCredential{}, ErrCeremonyNotFound
	}

	wu := webauthnUser{user: storage.User{
		ID:       pending.userID,
		Username: pending.username,
	}}

	cred, err := s.wa.FinishRegistration(wu, pending.session, r)
	if err != nil {
		return storage.User{}, storage.PasskeyCredential{}, err
	}

	user := storage.User{
		ID:          pending.userID,
		Username:    pending.username,
		DisplayName: &pending.displayName,
		CreatedAt:   now,
	}
	if err := s.db.CreateUser(ctx, user); err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return storage.User{}, storage.PasskeyCredential{}, err
	}

	blob, err := encodeCredential(*cred)
	if err != nil {
		return storage.User{}, storage.PasskeyCredential{}, err
	}
	credRow := storage.PasskeyCredential{
		ID:             idgen.New(),
		UserID:         pending.userID,
		CredentialBlob: blob,
		CreatedAt:      now,
	}
	if err := s.db.CreatePasskeyCredential(ctx, credRow); err != nil {
		return storage.User{}, storage.PasskeyCredential{}, err
	}

	return user, credRow, nil
}

// StartLogin begins a WebAuthn authentication ceremony against the sole
// owner account.
func (s *Service) StartLogin(ctx context.Context, now time.Time) (string, *protocol.CredentialAssertion, error) {
	sole, err := s.db.SoleUser(ctx)
	if err != nil {
		return "", nil, err
	}
	rows, err := s.db.ListPasskeyCredentialsByUser(ctx, sole.ID)
	if err != nil {
		return "", nil, err
	}
	creds, err := decodeCredentials(rows)
	if err != nil {
		return "", nil, err
	}

	assertion, session, err := s.wa.BeginLogin(webauthnUser{user: sole, credentials: creds})
	if err != nil {
		return "", nil, err
	}

	ceremonyID := pairing.GenerateBearerToken()
	s.ceremonies.insertAuthentication(ceremonyID, pendingAuthentication{
		session:    *session,
		insertedAt: now,
	}, now)

	return ceremonyID, assertion, nil
}

// FinishLogin completes a pending authentication: it verifies r against
// the stored challenge, advances the matched credential's signature
// counter (mutated only here, when the authenticator's signature counter
// advances), and returns the owner.
func (s *Service) FinishLogin(ctx context.Context, ceremonyID string, r *http.Request, now time.Time) (storage.User, error) {
	pending, ok := s.ceremonies.takeAuthentication(ceremonyID)
	if !ok {
		return storage.User{}, ErrCeremonyNotFound
	}

	sole, err := s.db.SoleUser(ctx)
	if err != nil {
		return storage.User{}, err
	}
	rows, err := s.db.ListPasskeyCredentialsByUser(ctx, sole.ID)
	if err != nil {
		return storage.User{}, err
	}
	creds, err := decodeCredentials(rows)
	if err != nil {
		return storage.User{}, err
	}
	wu := webauthnUser{user: sole, credentials: creds}

	matched, err := s.wa.FinishLogin(wu, pending.session, r)
	if err != nil {
		return storage.User{}, err
	}

	for i, row := range rows {
		cred := creds[i]
		if string(cred.ID) != string(matched.ID) {
			continue
		}
		newCount := matched.Authenticator.SignCount
		err := s.db.UpdatePasskeyCredential(ctx, row.ID, func(c storage.PasskeyCredential) (storage.PasskeyCredential, error) {
			decoded, err := decodeCredential(c.CredentialBlob)
			if err != nil {
				return storage.PasskeyCredential{}, err
			}
			decoded.Authenticator.SignCount = newCount
			blob, err := encodeCredential(decoded)
			if err != nil {
				return storage.PasskeyCredential{}, err
			}
			c.CredentialBlob = blob
			return c, nil
		})
		if err != nil {
			return storage.User{}, err
		}
		break
	}

	return sole, nil
}
