// Package vault provides symmetric encryption for stored credential
// secrets. It is the only place in the engine where plaintext secrets
// exist; callers decrypt immediately before an adapter call and
// discard the result afterward.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// KeySize is the required master key length for AES-256-GCM.
const KeySize = 32

// EncryptionError indicates a key-management problem: the master key
// is absent or malformed. Distinct from DecryptionError so operators
// don't mistake bad configuration for corrupt data.
type EncryptionError struct {
	Reason string
	Cause  error
}

func (e *EncryptionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vault encryption error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("vault encryption error: %s", e.Reason)
}

func (e *EncryptionError) Unwrap() error { return e.Cause }

// DecryptionError indicates the ciphertext is malformed or was
// produced under a different key. The stored secret cannot be
// recovered; the credential must be re-entered.
type DecryptionError struct {
	Reason string
	Cause  error
}

func (e *DecryptionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vault decryption error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("vault decryption error: %s", e.Reason)
}

func (e *DecryptionError) Unwrap() error { return e.Cause }

// Vault encrypts and decrypts secrets with a single process-wide
// AES-256-GCM master key supplied at startup.
type Vault struct {
	key []byte
}

// New creates a Vault. key must be exactly KeySize bytes.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, &EncryptionError{Reason: fmt.Sprintf("master key must be %d bytes, got %d", KeySize, len(key))}
	}
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext and returns a base64-encoded string
// containing the random nonce (12 bytes) prepended to the ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &EncryptionError{Reason: "generate nonce", Cause: err}
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails with DecryptionError when the
// input is not valid base64, is truncated, or fails authentication
// (wrong key or tampered data) -- it never silently returns wrong data.
func (v *Vault) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &DecryptionError{Reason: "base64 decode", Cause: err}
	}

	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", &DecryptionError{Reason: "ciphertext too short"}
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed", Cause: err}
	}

	return string(plaintext), nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, &EncryptionError{Reason: "aes.NewCipher", Cause: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &EncryptionError{Reason: "cipher.NewGCM", Cause: err}
	}
	return gcm, nil
}
