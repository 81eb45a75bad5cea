package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Klingon-tech/vaultpass/pkg/crypto"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// Address is a 0x-prefixed, 40 hex character wallet identifier.
type Address string

// String returns the address text.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}

// Equal compares two addresses ignoring checksum case.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// ValidAddress reports whether s has the 0x + 40 hex shape.
func ValidAddress(s string) bool {
	if len(s) != 2+2*AddressSize || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// AddressScheme turns a compressed public key into an Address.
// Implementations never need the private key.
type AddressScheme interface {
	Name() string
	Address(publicKey []byte) (Address, error)
}

// Address scheme names accepted by AddressSchemeByName.
const (
	AddressKeccak = "keccak"
	AddressBLAKE3 = "blake3"
)

// AddressSchemeByName returns the scheme registered under name.
func AddressSchemeByName(name string) (AddressScheme, error) {
	switch name {
	case AddressKeccak, "":
		return KeccakAddress{}, nil
	case AddressBLAKE3:
		return BLAKE3Address{}, nil
	default:
		return nil, fmt.Errorf("unknown address scheme %q", name)
	}
}

// KeccakAddress derives Ethereum addresses:
// Keccak256(uncompressed_pubkey[1:])[12:], rendered with the EIP-55 checksum.
type KeccakAddress struct{}

// Name returns "keccak".
func (KeccakAddress) Name() string { return AddressKeccak }

// Address derives the checksummed Ethereum address for publicKey.
func (KeccakAddress) Address(publicKey []byte) (Address, error) {
	full, err := crypto.DecompressPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDerivation, err)
	}
	h := crypto.Keccak256(full[1:])
	return Address(checksumHex(h[crypto.HashSize-AddressSize:])), nil
}

// BLAKE3Address derives addresses as BLAKE3(compressed_pubkey)[:20].
type BLAKE3Address struct{}

// Name returns "blake3".
func (BLAKE3Address) Name() string { return AddressBLAKE3 }

// Address derives the lowercase hex address for publicKey.
func (BLAKE3Address) Address(publicKey []byte) (Address, error) {
	if len(publicKey) != crypto.PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrDerivation, crypto.PublicKeySize, len(publicKey))
	}
	if _, err := crypto.DecompressPublicKey(publicKey); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDerivation, err)
	}
	h := crypto.Hash(publicKey)
	return Address("0x" + hex.EncodeToString(h[:AddressSize])), nil
}

// checksumHex applies EIP-55 mixed-case encoding to a 20-byte address.
func checksumHex(addr []byte) string {
	lower := []byte(hex.EncodeToString(addr))
	h := crypto.Keccak256(lower)
	for i, c := range lower {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := h[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			lower[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(lower)
}
