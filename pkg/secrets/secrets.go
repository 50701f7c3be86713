// Package secrets seals short credentials, such as OAuth refresh tokens,
// before they are written to the database.
//
// Each value is encrypted with AES-256-GCM under a key derived with
// HKDF-SHA-256 from the application key and a caller-supplied scope, usually
// the owning user's id. A value sealed for one scope cannot be opened under
// another. Sealed values carry a version prefix so plaintext written before
// encryption was enabled is still readable.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the application key.
const KeySize = 32

const (
	prefix = "enc:v1:"
	info   = "emailbot-secrets-v1:"
)

// Config reads the application key from the environment.
type Config struct {
	// Key is the base64 encoded 32 byte application key. Empty disables sealing.
	Key string `env:"TOKEN_ENCRYPTION_KEY"`
}

// Cipher seals and opens strings.
type Cipher struct {
	key []byte
}

// New returns a Cipher for a 32 byte application key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// NewFromConfig decodes cfg.Key. It returns nil, nil when no key is configured.
func NewFromConfig(cfg Config) (*Cipher, error) {
	if cfg.Key == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return New(key)
}

// GenerateKey returns a random application key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext for scope. Empty input stays empty.
func (c *Cipher) Seal(scope, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := c.aead(scope)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same scope. Values without
// the sealed prefix are returned unchanged.
func (c *Cipher) Open(scope, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	aead, err := c.aead(scope)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	n := aead.NonceSize()
	if len(raw) < n+aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, prefix)
}

func (c *Cipher) aead(scope string) (cipher.AEAD, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.key, nil, []byte(info+scope)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	clear(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
