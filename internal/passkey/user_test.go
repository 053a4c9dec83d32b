package passkey

import (
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dorky-robot/salita-mesh/storage"
)

func TestWebauthnUserDisplayNameFallsBackToUsername(t *testing.T) {
	u := webauthnUser{user: storage.User{ID: "u1", Username: "owner"}}
	if got := u.WebAuthnDisplayName(); got != "owner" {
		t.Fatalf("expected fallback to username, got %q", got)
	}

	name := "Home Owner"
	u.user.DisplayName = &name
	if got := u.WebAuthnDisplayName(); got != "Home Owner" {
		t.Fatalf("expected display name, got %q", got)
	}
}

func TestEncodeDecodeCredentialRoundTrip(t *testing.T) {
	cred := webauthn.Credential{ID: []byte("cred-id"), PublicKey: []byte("pub-key")}
	cred.Authenticator.SignCount = 7

	blob, err := encodeCredential(cred)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	got, err := decodeCredential(blob)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if string(got.ID) != "cred-id" {
		t.Fatalf("expected round-tripped credential id, got %q", got.ID)
	}
	if got.Authenticator.SignCount != 7 {
		t.Fatalf("expected sign count 7, got %d", got.Authenticator.SignCount)
	}
}

func TestDecodeCredentialsPreservesOrder(t *testing.T) {
	a, _ := encodeCredential(webauthn.Credential{ID: []byte("a")})
	b, _ := encodeCredential(webauthn.Credential{ID: []byte("b")})

	rows := []storage.PasskeyCredential{
		{ID: "row-a", CredentialBlob: a},
		{ID: "row-b", CredentialBlob: b},
	}

	creds, err := decodeCredentials(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creds) != 2 || string(creds[0].ID) != "a" || string(creds[1].ID) != "b" {
		t.Fatalf("unexpected decoded credentials: %+v", creds)
	}
}
