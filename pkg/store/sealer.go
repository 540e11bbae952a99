package store

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// SealerKeySize is the secretbox key length.
const SealerKeySize = 32

const sealerNonceSize = 24

// Sealer encrypts campaign records before they reach a durable
// backend. The recipient secrets are the unlinkability of the whole
// scheme; a copied badger directory or redis dump must not hand them
// out in the clear. Authenticated encryption also catches on-disk
// corruption before a mangled secret produces an unprovable leaf.
//
// A nil *Sealer is valid and stores plaintext; the memory store and
// tests use that.
type Sealer struct {
	key [SealerKeySize]byte
}

// NewSealer builds a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != SealerKeySize {
		return nil, fmt.Errorf("sealer key must be %d bytes, got %d", SealerKeySize, len(key))
	}
	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts plaintext under a fresh random nonce. The nonce is
// prepended to the box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if s == nil {
		return plaintext, nil
	}

	var nonce [sealerNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to draw seal nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts and authenticates a sealed record.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if s == nil {
		return sealed, nil
	}

	if len(sealed) < sealerNonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed record too short: %d bytes", len(sealed))
	}

	var nonce [sealerNonceSize]byte
	copy(nonce[:], sealed[:sealerNonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[sealerNonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("failed to open sealed record: authentication failed")
	}
	return plaintext, nil
}
