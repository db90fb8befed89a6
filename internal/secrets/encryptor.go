// Package secrets encrypts provider token material before it reaches storage.
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

const (
	envelopePrefix = "enc:v1:"
	defaultContext = "callsync-integration-tokens"
	minKeyBytes    = 32
)

var (
	ErrKeyTooShort      = errors.New("secrets: encryption key must decode to at least 32 bytes")
	ErrDecryptionFailed = errors.New("secrets: decryption failed")
)

// Encryptor seals token strings with AES-256-GCM under a key derived by HKDF.
//
// A nil *Encryptor is valid and stores values in the clear; this keeps local setups working
// without a key. Decrypt passes through values without the envelope prefix so rows written
// before encryption was enabled stay readable.
type Encryptor struct {
	aead cipher.AEAD
}

// New derives the data key from a base64 master key. An empty key returns (nil, nil).
func New(masterKeyB64, context string) (*Encryptor, error) {
	masterKeyB64 = strings.TrimSpace(masterKeyB64)
	if masterKeyB64 == "" {
		return nil, nil
	}
	master, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode master key: %w", err)
	}
	if len(master) < minKeyBytes {
		return nil, ErrKeyTooShort
	}
	if context == "" {
		context = defaultContext
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(context)), key); err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

// Enabled reports whether values are actually sealed.
func (e *Encryptor) Enabled() bool { return e != nil && e.aead != nil }

func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if !e.Enabled() || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, envelopePrefix) {
		return stored, nil
	}
	if !e.Enabled() {
		return "", fmt.Errorf("%w: value is encrypted but no key is configured", ErrDecryptionFailed)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, envelopePrefix))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrDecryptionFailed
	}
	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
