package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrUnseal is returned for tampered ciphertext or a wrong key.
var ErrUnseal = errors.New("credential: unable to unseal secret")

// Sealer encrypts secrets with a fixed 32-byte key.
type Sealer struct {
	key [keySize]byte
}

// NewSealer accepts a base64-encoded 32-byte key. Any other non-empty value
// is treated as a passphrase and stretched with HKDF-SHA256.
func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return nil, errors.New("credential: sealing key is required")
	}
	s := &Sealer{}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == keySize {
		copy(s.key[:], raw)
		return s, nil
	}
	kdf := hkdf.New(sha256.New, []byte(key), nil, []byte("request-mailer credential sealing"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("credential: derive key: %w", err)
	}
	return s, nil
}

// Seal returns nonce || box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("credential: read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrUnseal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrUnseal
	}
	return out, nil
}
