package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Key and signature sizes.
const (
	PrivateKeySize            = 32
	PublicKeySize             = 33
	UncompressedPublicKeySize = 65
	SignatureSize             = 64
)

var (
	// ErrSigning is returned when a signature cannot be produced.
	ErrSigning = errors.New("signing failed")

	// ErrInvalidPrivateKey is returned for keys outside [1, n-1] or of the wrong size.
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// IsValidPrivateKey reports whether b is a 32-byte scalar in [1, n-1].
func IsValidPrivateKey(b []byte) bool {
	if len(b) != PrivateKeySize {
		return false
	}
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(b)
	valid := !overflow && !s.IsZero()
	s.Zero()
	return valid
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
// Scalars that are zero or not below the group order are rejected
// instead of being reduced.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(b))
	}
	if !IsValidPrivateKey(b) {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a deterministic (RFC 6979) low-S ECDSA signature over a
// 32-byte hash, encoded as 64 bytes R||S.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != HashSize {
		return nil, fmt.Errorf("%w: hash must be %d bytes, got %d", ErrSigning, HashSize, len(hash))
	}
	if pk == nil || pk.key == nil || pk.key.Key.IsZero() {
		return nil, fmt.Errorf("%w: %w", ErrSigning, ErrInvalidPrivateKey)
	}
	// SignCompact prefixes a recovery byte which the compact encoding drops.
	compact := ecdsa.SignCompact(pk.key, hash, true)
	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])
	return sig, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// PublicKeyFromPrivate returns the compressed public key for a raw private key.
func PublicKeyFromPrivate(priv []byte) ([]byte, error) {
	key, err := PrivateKeyFromBytes(priv)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return key.PublicKey(), nil
}

// DecompressPublicKey converts a compressed public key to its 65-byte form.
func DecompressPublicKey(pub []byte) ([]byte, error) {
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key.SerializeUncompressed(), nil
}

// MessageDigest is the digest signed by SignMessage: BLAKE3-256(message).
func MessageDigest(message []byte) [HashSize]byte {
	return Hash(message)
}

// SignMessage signs the digest of message with a raw 32-byte private key.
func SignMessage(message, priv []byte) ([]byte, error) {
	key, err := PrivateKeyFromBytes(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	defer key.Zero()

	digest := MessageDigest(message)
	return key.Sign(digest[:])
}

// VerifyMessage checks a SignMessage signature. Returns false on any error.
func VerifyMessage(message, signature, publicKey []byte) bool {
	digest := MessageDigest(message)
	return VerifySignature(digest[:], signature, publicKey)
}

// VerifySignature checks a compact ECDSA signature against a 32-byte hash
// and a compressed public key. High-S signatures are rejected. Returns false
// on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	if len(hash) != HashSize || len(signature) != SignatureSize {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow || s.IsZero() {
		return false
	}
	if s.IsOverHalfOrder() {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(hash, pubKey)
}
