// Package vault encrypts third-party access tokens at rest.
//
// Every stored token passes through this package. Plaintext tokens exist only
// in memory, scoped to the call that needs them — they never reach the
// database, the logs, or any struct that outlives a single request.
//
// KEY DERIVATION:
// The AES key is derived once, at construction, from a configured master
// secret using PBKDF2 (SHA-256, 100,000 iterations). The high iteration count
// is deliberate: deriving the key costs real CPU, which is what makes
// brute-forcing a leaked ciphertext expensive. The derived key lives only in
// process memory and is never persisted.
//
// CIPHER:
// AES-256-GCM. GCM is authenticated encryption — decryption of a tampered or
// wrong-key blob fails outright rather than yielding garbage, so Decrypt can
// never return partially-decrypted data.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/xdest/devboard/internal/apperror"
)

const (
	// kdfIterations matches the cost the rest of the system was sized for.
	// Raising it invalidates nothing (the key is re-derived at startup),
	// but it does slow process start.
	kdfIterations = 100_000
	keyLen        = 32 // AES-256
)

// kdfSalt is app-specific and static. The salt defends against rainbow
// tables across applications, not across secrets — there is exactly one
// master secret per deployment, so a per-blob salt buys nothing here.
var kdfSalt = []byte("devboard_salt_v1")

// Vault holds the derived key for the process lifetime.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from the master secret and returns a ready
// Vault. Derivation is the slow part (~100ms of PBKDF2) and happens exactly
// once per process.
func New(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, errors.New("vault: master secret must not be empty")
	}

	key := pbkdf2.Key([]byte(masterSecret), kdfSalt, kdfIterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: creating GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals a plaintext token into a base64 blob safe for storage.
//
// Blob layout: base64( nonce || ciphertext+tag ). The nonce is random per
// call, so encrypting the same token twice yields different blobs.
// An empty plaintext encrypts to an empty blob (mirrors "no token stored").
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperror.Vault("encrypt", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. It fails with an error matching
// apperror.ErrVault if the blob is malformed, truncated, or was sealed under
// a different key — there is no fallback to returning the blob as-is.
func (v *Vault) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", apperror.Vault("decrypt", fmt.Errorf("malformed blob: %w", err))
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize+v.aead.Overhead() {
		return "", apperror.Vault("decrypt", errors.New("blob too short"))
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Wrong key or tampered data — GCM authentication failed.
		return "", apperror.Vault("decrypt", err)
	}

	return string(plaintext), nil
}
