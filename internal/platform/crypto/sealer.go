// Package crypto seals personal data held at rest: vendor contact emails,
// consent-record IP addresses and admin TOTP secrets.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// sealedV1 prefixes every AES-GCM payload. Values without it were written
// while no key was configured and are returned unchanged by Open.
const sealedV1 byte = 0x01

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Service struct {
	aead cipher.AEAD
}

// New builds a Service from a 32 byte key given as hex, base64 or raw
// text. An empty key yields a pass-through Service.
func New(key string) (*Service, error) {
	if key == "" {
		return &Service{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding, got %d", len(decoded))
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{aead: aead}, nil
}

func (s *Service) Configured() bool {
	return s != nil && s.aead != nil
}

func (s *Service) Seal(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return plain, nil
	}
	nonceSize := s.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plain)+s.aead.Overhead())
	out[0] = sealedV1
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	return s.aead.Seal(out, out[1:1+nonceSize], plain, nil), nil
}

func (s *Service) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if !s.Configured() || sealed[0] != sealedV1 {
		return sealed, nil
	}
	nonceSize := s.aead.NonceSize()
	if len(sealed) < 1+nonceSize+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce := sealed[1 : 1+nonceSize]
	return s.aead.Open(nil, nonce, sealed[1+nonceSize:], nil)
}

func (s *Service) SealString(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return s.Seal([]byte(value))
}

func (s *Service) OpenString(value []byte) (string, error) {
	plain, err := s.Open(value)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
