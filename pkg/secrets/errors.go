package secrets

import "errors"

var (
	ErrInvalidKey        = errors.New("secrets: key must be 32 bytes")
	ErrEncryptionFailed  = errors.New("secrets: encryption failed")
	ErrDecryptionFailed  = errors.New("secrets: decryption failed")
	ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")
)
