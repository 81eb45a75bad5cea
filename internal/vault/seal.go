package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealing constants.
const (
	// DeviceKeySize is the size of the device sealing key.
	DeviceKeySize = chacha20poly1305.KeySize

	sealVersion = 1
	// Sealed format: [version(1)][policy(1)][nonce(24)][ciphertext...]
	sealHeaderSize = 2
)

var sealContext = []byte("vaultpass/secret")

// ErrUnseal is returned when a sealed blob fails authentication or has an
// unknown layout.
var ErrUnseal = errors.New("unseal failed")

// Sealer encrypts secrets under the device key with XChaCha20-Poly1305.
// The version and access policy are bound into the ciphertext as
// additional data, so a blob cannot be replayed under another policy.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer for a 32-byte device key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != DeviceKeySize {
		return nil, fmt.Errorf("device key must be %d bytes, got %d", DeviceKeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func sealAAD(version, policy byte) []byte {
	aad := make([]byte, 0, len(sealContext)+2)
	aad = append(aad, sealContext...)
	return append(aad, version, policy)
}

// Seal encrypts secret under policy.
//
// Output format: version(1) | policy(1) | nonce(24) | ciphertext
func (s *Sealer) Seal(secret []byte, policy Policy) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	flags := policy.flags()
	out := make([]byte, 0, sealHeaderSize+len(nonce)+len(secret)+s.aead.Overhead())
	out = append(out, sealVersion, flags)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, secret, sealAAD(sealVersion, flags)), nil
}

// Open decrypts a blob produced by Seal and returns the secret and the
// policy it was sealed under.
func (s *Sealer) Open(sealed []byte) ([]byte, Policy, error) {
	nonceSize := s.aead.NonceSize()
	minSize := sealHeaderSize + nonceSize + s.aead.Overhead()
	if len(sealed) < minSize {
		return nil, Policy{}, fmt.Errorf("%w: sealed data too short: %d bytes, need at least %d",
			ErrUnseal, len(sealed), minSize)
	}
	version, flags := sealed[0], sealed[1]
	if version != sealVersion {
		return nil, Policy{}, fmt.Errorf("%w: unsupported version %d", ErrUnseal, version)
	}

	nonce := sealed[sealHeaderSize : sealHeaderSize+nonceSize]
	ciphertext := sealed[sealHeaderSize+nonceSize:]

	secret, err := s.aead.Open(nil, nonce, ciphertext, sealAAD(version, flags))
	if err != nil {
		return nil, Policy{}, fmt.Errorf("%w: %w", ErrUnseal, err)
	}
	return secret, policyFromFlags(flags), nil
}
