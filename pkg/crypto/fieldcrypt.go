// Package crypto encrypts individual store fields with AES-256-GCM. Stored
// values carry an "enc:v1:" prefix so encrypted and legacy plaintext rows
// can share a column while old records age out.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const prefix = "enc:v1:"

// hkdf salt, fixed for the lifetime of the v1 format.
var derivationSalt = []byte("warden-field-encryption")

// FieldEncryptor seals and opens string fields. Safe for concurrent use.
type FieldEncryptor struct {
	aead cipher.AEAD
}

// DeriveFieldEncryptor stretches masterSecret through HKDF-SHA256 into an
// AES-256 key. Distinct purpose strings yield unrelated keys, so a leaked
// key for one purpose does not expose fields sealed under another.
func DeriveFieldEncryptor(masterSecret []byte, purpose string) (*FieldEncryptor, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterSecret, derivationSalt, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("crypto: HKDF derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCMWithRandomNonce(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &FieldEncryptor{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// prefixed storage form.
func (fe *FieldEncryptor) Encrypt(plaintext string) (string, error) {
	sealed := fe.aead.Seal(nil, nil, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the prefix are
// returned unchanged, which keeps pre-encryption rows readable.
func (fe *FieldEncryptor) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid base64: %w", err)
	}
	plaintext, err := fe.aead.Open(nil, nil, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether stored carries the encryption prefix.
func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}
