// Package secure provides explicit, instance-scoped security primitives:
// AES-256-GCM encryption for the autoconfigurator's PII ext attributes
// (contact_email, contact_sms) at rest in its state file, and bearer
// token generation for the mailbox transport.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Cipher wraps one AES-256-GCM key. A zero-value Cipher (no key loaded)
// passes plaintext through unchanged.
type Cipher struct {
	key []byte
}

// NewCipher loads a 32-byte AES-256 key from its hex encoding. An empty
// keyHex returns a Cipher with encryption disabled.
func NewCipher(keyHex string) (*Cipher, error) {
	if keyHex == "" {
		return &Cipher{}, nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key (must be hex): %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return &Cipher{key: key}, nil
}

// Enabled reports whether c has a key loaded.
func (c *Cipher) Enabled() bool {
	return c != nil && len(c.key) > 0
}

// Encrypt encrypts plaintext with AES-256-GCM, returning hex-encoded
// ciphertext. If encryption is disabled, returns plaintext unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("GCM creation failed: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. If encryption is disabled, or the input is not
// valid hex ciphertext, returns the input unchanged (backward compatible
// with state files written before a key was configured).
func (c *Cipher) Decrypt(ciphertextHex string) (string, error) {
	if !c.Enabled() || ciphertextHex == "" {
		return ciphertextHex, nil
	}

	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return ciphertextHex, nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("GCM creation failed: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return ciphertextHex, nil
	}

	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, body, nil)
	if err != nil {
		return ciphertextHex, errors.New("decryption failed, data may not be encrypted")
	}
	return string(plaintext), nil
}
