// Package security holds the secret-handling primitives used by textassist:
// the local master key file, key derivation, authenticated encryption of
// stored credentials, permission-checked secret files and the daemon's
// single-instance lock.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Cryptographic errors
var (
	ErrInsufficientEntropy = errors.New("security: insufficient entropy")
	ErrWeakKey             = errors.New("security: key is too weak")
	ErrInvalidKeySize      = errors.New("security: invalid key size")
	ErrDecrypt             = errors.New("security: decryption failed")
)

// MinKeySize is the minimum allowed key size in bytes.
const MinKeySize = 16

// KeySize is the size of generated master keys and derived keys.
const KeySize = 32

// GenerateKey generates a cryptographically secure random key.
func GenerateKey(size int) ([]byte, error) {
	if size < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	return key, nil
}

// DeriveKey derives a KeySize key from masterKey using HKDF-SHA256 with a
// domain separation label.
func DeriveKey(masterKey []byte, label string) ([]byte, error) {
	if len(masterKey) < MinKeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes, minimum %d required",
			ErrWeakKey, len(masterKey), MinKeySize)
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte("textassist:"+label))
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return derived, nil
}

// Sealer encrypts small values with XChaCha20-Poly1305.
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer over a KeySize key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKeySize, chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts plaintext. additional is authenticated but not encrypted;
// the same value must be passed to Open.
func (s *Sealer) Seal(plaintext, additional []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	return nonce, aead.Seal(nil, nonce, plaintext, additional), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(nonce, ciphertext, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrDecrypt, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Destroy wipes the key.
func (s *Sealer) Destroy() {
	Wipe(s.key)
}

// Wipe zeroes data.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
