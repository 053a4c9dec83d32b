package passkey

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ceremonyTTL is the lifetime of a pending WebAuthn exchange: long enough
// for a human to complete a fingerprint/PIN prompt, short enough that an
// abandoned ceremony doesn't linger.
const ceremonyTTL = 5 * time.Minute

// pendingRegistration is a ceremony awaiting FinishRegistration. It
// additionally carries the identity the registration will create or
// attach to, since the webauthn.User it was started with may not
// exist in storage yet (first-owner setup).
type pendingRegistration struct {
	session     webauthn.SessionData
	userID      string
	username    string
	displayName string
	insertedAt  time.Time
}

type pendingAuthentication struct {
	session    webauthn.SessionData
	insertedAt time.Time
}

// ceremonyStore is the in-flight WebAuthn exchange map: thread-safe,
// swept lazily on every insert rather than on a timer, the same posture
// internal/jointoken and internal/linking take for their own ephemeral
// state.
type ceremonyStore struct {
	mu              sync.Mutex
	registrations   map[string]pendingRegistration
	authentications map[string]pendingAuthentication
}

func newCeremonyStore() *ceremonyStore {
	return &ceremonyStore{
		registrations:   make(map[string]pendingRegistration),
		authentications: make(map[string]pendingAuthentication),
	}
}

func (c *ceremonyStore) insertRegistration(id string, p pendingRegistration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	c.registrations[id] = p
}

func (c *ceremonyStore) insertAuthentication(id string, p pendingAuthentication, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	c.authentications[id] = p
}

// takeRegistration returns and removes a pending registration; a ceremony
// is consumed whether it finishes successfully or not.
func (c *ceremonyStore) takeRegistration(id string) (pendingRegistration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.registrations[id]
	if ok {
		delete(c.registrations, id)
	}
	return p, ok
}

func (c *ceremonyStore) takeAuthentication(id string) (pendingAuthentication, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.authentications[id]
	if ok {
		delete(c.authentications, id)
	}
	return p, ok
}

func (c *ceremonyStore) sweepLocked(now time.Time) {
	for id, p := range c.registrations {
		if now.Sub(p.insertedAt) > ceremonyTTL {
			delete(c.registrations, id)
		}
	}
	for id, p := range c.authentications {
		if now.Sub(p.insertedAt) > ceremonyTTL {
			delete(c.authentications, id)
		}
	}
}
