package passkey

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

func TestCeremonyStoreRegistrationRoundTrip(t *testing.T) {
	s := newCeremonyStore()
	now := time.Now()

	s.insertRegistration("cer-1", pendingRegistration{
		userID:     "user-1",
		username:   "owner",
		session:    webauthn.SessionData{UserID: []byte("user-1")},
		insertedAt: now,
	}, now)

	got, ok := s.takeRegistration("cer-1")
	if !ok {
		t.Fatal("expected to find the pending registration")
	}
	if got.userID != "user-1" {
		t.Fatalf("expected userID user-1, got %s", got.userID)
	}

	if _, ok := s.takeRegistration("cer-1"); ok {
		t.Fatal("a ceremony must be consumed exactly once")
	}
}

func TestCeremonyStoreSweepsExpiredEntries(t *testing.T) {
	s := newCeremonyStore()
	now := time.Now()

	s.insertRegistration("stale", pendingRegistration{insertedAt: now}, now)

	later := now.Add(ceremonyTTL + time.Minute)
	s.insertRegistration("fresh", pendingRegistration{insertedAt: later}, later)

	if _, ok := s.takeRegistration("stale"); ok {
		t.Fatal("expected stale ceremony to be swept on the later insert")
	}
	if _, ok := s.takeRegistration("fresh"); !ok {
		t.Fatal("expected fresh ceremony to survive the sweep")
	}
}

func TestCeremonyStoreAuthenticationRoundTrip(t *testing.T) {
	s := newCeremonyStore()
	now := time.Now()

	s.insertAuthentication("cer-2", pendingAuthentication{insertedAt: now}, now)

	if _, ok := s.takeAuthentication("cer-2"); !ok {
		t.Fatal("expected to find the pending authentication")
	}
	if _, ok := s.takeAuthentication("cer-2"); ok {
		t.Fatal("a ceremony must be consumed exactly once")
	}
}
