// Package crypto seals session state before it reaches the database.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrOpenFailed is returned when a sealed blob cannot be authenticated
var ErrOpenFailed = errors.New("failed to open sealed data")

// Sealer encrypts and authenticates blobs with XChaCha20-Poly1305.
// The nonce is stored in front of the ciphertext.
type Sealer struct {
	key [chacha20poly1305.KeySize]byte
}

// NewSealer derives the key from secret. An empty secret is rejected.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, goerr.New("session secret cannot be empty")
	}
	return &Sealer{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts plaintext; associated binds the blob to its owner record
func (s *Sealer) Seal(plaintext, associated []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cipher")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, goerr.Wrap(err, "failed to read nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open reverses Seal. Tampered data or a wrong key yields ErrOpenFailed.
func (s *Sealer) Open(sealed, associated []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cipher")
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, goerr.Wrap(ErrOpenFailed, "sealed data too short", goerr.V("length", len(sealed)))
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, associated)
	if err != nil {
		return nil, goerr.Wrap(ErrOpenFailed, "authentication failed")
	}
	return plain, nil
}
