package config

import (
	"crypto/sha256"

	pkgcrypto "github.com/dorky-robot/salita-mesh/pkg/crypto"
)

// deriveKey turns an arbitrary-length passphrase into a 256-bit AES key.
// A KDF like scrypt would be overkill here, since DataPassphrase never
// leaves the machine it's configured on, it only gates a local file.
func deriveKey(passphrase string) [32]byte {
	return sha256.Sum256([]byte(passphrase))
}

// EncryptField encrypts plaintext with 256-bit AES-GCM under passphrase,
// using pkg/crypto.Encrypt. Output is nonce|ciphertext|tag.
func EncryptField(plaintext []byte, passphrase string) ([]byte, error) {
	key := deriveKey(passphrase)
	return pkgcrypto.Encrypt(plaintext, key[:])
}

// DecryptField reverses EncryptField.
func DecryptField(ciphertext []byte, passphrase string) ([]byte, error) {
	key := deriveKey(passphrase)
	return pkgcrypto.Decrypt(ciphertext, key[:])
}
