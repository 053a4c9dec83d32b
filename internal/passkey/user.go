package passkey

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dorky-robot/salita-mesh/storage"
)

// webauthnUser adapts a storage.User plus its decoded credentials to the
// github.com/go-webauthn/webauthn.User interface, the contract boundary
// at which the underlying WebAuthn ceremony mechanics are delegated
// entirely to the external library.
type webauthnUser struct {
	user        storage.User
	credentials []webauthn.Credential
}

func (u webauthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u webauthnUser) WebAuthnName() string {
	return u.user.Username
}

func (u webauthnUser) WebAuthnDisplayName() string {
	if u.user.DisplayName != nil && *u.user.DisplayName != "" {
		return *u.user.DisplayName
	}
	return u.user.Username
}

func (u webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (u webauthnUser) WebAuthnIcon() string {
	return ""
}

// encodeCredential serializes a webauthn.Credential into the opaque blob
// storage.PasskeyCredential carries: authenticator public key, counter,
// and transports, with no field of it interpreted outside this package.
func encodeCredential(cred webauthn.Credential) ([]byte, error) {
	return json.Marshal(cred)
}

func decodeCredential(blob []byte) (webauthn.Credential, error) {
	var cred webauthn.Credential
	err := json.Unmarshal(blob, &cred)
	return cred, err
}

func decodeCredentials(rows []storage.PasskeyCredential) ([]webauthn.Credential, error) {
	creds := make([]webauthn.Credential, 0, len(rows))
	for _, row := range rows {
		cred, err := decodeCredential(row.CredentialBlob)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}
