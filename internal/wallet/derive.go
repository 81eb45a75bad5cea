package wallet

import (
	"fmt"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/pkg/crypto"
)

// DerivationScheme selects how a private key is obtained from the BIP-39 seed.
type DerivationScheme string

const (
	// SchemeSeed uses the first 32 seed bytes as the private key.
	SchemeSeed DerivationScheme = "seed"

	// SchemeBIP44 uses the BIP-32 key at m/44'/60'/0'/0/0.
	SchemeBIP44 DerivationScheme = "bip44"
)

// Fallback key policy. When the scheme's candidate is not a valid secp256k1
// scalar, the key becomes BLAKE3(FallbackKeyTag || u32le(i) || seed) for the
// first i in [0, MaxFallbackAttempts) that yields a valid scalar.
const (
	FallbackKeyTag      = "vaultpass/fallback-key/v1"
	MaxFallbackAttempts = 256
)

// Deriver turns mnemonics into key material and addresses.
type Deriver struct {
	scheme    DerivationScheme
	addresses AddressScheme
}

// NewDeriver creates a Deriver for the given schemes.
func NewDeriver(scheme DerivationScheme, addresses AddressScheme) (*Deriver, error) {
	switch scheme {
	case SchemeSeed, SchemeBIP44:
	case "":
		scheme = SchemeSeed
	default:
		return nil, fmt.Errorf("unknown derivation scheme %q", scheme)
	}
	if addresses == nil {
		addresses = KeccakAddress{}
	}
	return &Deriver{scheme: scheme, addresses: addresses}, nil
}

// DefaultDeriver uses SchemeSeed with Keccak addresses.
func DefaultDeriver() *Deriver {
	return &Deriver{scheme: SchemeSeed, addresses: KeccakAddress{}}
}

// Scheme returns the derivation scheme.
func (d *Deriver) Scheme() DerivationScheme { return d.scheme }

// AddressScheme returns the address scheme.
func (d *Deriver) AddressScheme() AddressScheme { return d.addresses }

// DeriveKey derives the wallet key pair from a mnemonic. The caller owns the
// result and must Zero it after use.
func (d *Deriver) DeriveKey(mnemonic string) (*KeyMaterial, error) {
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer clear(seed)

	var priv []byte
	switch d.scheme {
	case SchemeBIP44:
		priv, err = bip44PrivateKey(seed)
	default:
		priv, err = seedPrivateKey(seed)
	}
	if err != nil {
		return nil, err
	}

	pub, err := crypto.PublicKeyFromPrivate(priv)
	if err != nil {
		clear(priv)
		return nil, fmt.Errorf("%w: %w", ErrDerivation, err)
	}
	return &KeyMaterial{PrivateKey: priv, PublicKey: pub}, nil
}

// DeriveAddress derives the address for a compressed public key.
func (d *Deriver) DeriveAddress(publicKey []byte) (Address, error) {
	return d.addresses.Address(publicKey)
}

// AddressFromMnemonic derives the key pair, computes its address and zeroes
// the key pair before returning.
func (d *Deriver) AddressFromMnemonic(mnemonic string) (Address, error) {
	km, err := d.DeriveKey(mnemonic)
	if err != nil {
		return "", err
	}
	defer km.Zero()
	return d.DeriveAddress(km.PublicKey)
}

// Sign signs message with the key pair's private key.
func (d *Deriver) Sign(message []byte, km *KeyMaterial) ([]byte, error) {
	if km == nil {
		return nil, fmt.Errorf("%w: no key material", crypto.ErrSigning)
	}
	return crypto.SignMessage(message, km.PrivateKey)
}

// Verify checks a signature produced by Sign. It never fails loudly.
func Verify(message, signature, publicKey []byte) bool {
	return crypto.VerifyMessage(message, signature, publicKey)
}

// seedPrivateKey applies SchemeSeed: seed[:32], or the fallback policy when
// that is not a valid scalar.
func seedPrivateKey(seed []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrDerivation, SeedSize, len(seed))
	}
	if crypto.IsValidPrivateKey(seed[:crypto.PrivateKeySize]) {
		priv := make([]byte, crypto.PrivateKeySize)
		copy(priv, seed[:crypto.PrivateKeySize])
		return priv, nil
	}
	return fallbackPrivateKey(seed)
}

// bip44PrivateKey applies SchemeBIP44, falling back to the hash policy when
// BIP-32 rejects an intermediate key.
func bip44PrivateKey(seed []byte) ([]byte, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		klog.Wallet.Warn().Err(err).Msg("BIP-32 master key rejected, using fallback key policy")
		return fallbackPrivateKey(seed)
	}
	defer master.Zero()

	child, err := master.DerivePrimary()
	if err != nil {
		klog.Wallet.Warn().Err(err).Msg("BIP-44 path derivation rejected, using fallback key policy")
		return fallbackPrivateKey(seed)
	}
	defer child.Zero()

	priv := child.PrivateKeyBytes()
	if !crypto.IsValidPrivateKey(priv) {
		clear(priv)
		return fallbackPrivateKey(seed)
	}
	return priv, nil
}

// fallbackPrivateKey derives a deterministic key by hashing the seed.
func fallbackPrivateKey(seed []byte) ([]byte, error) {
	for i := uint32(0); i < MaxFallbackAttempts; i++ {
		candidate := crypto.DomainHash(FallbackKeyTag, i, seed)
		if crypto.IsValidPrivateKey(candidate[:]) {
			priv := make([]byte, crypto.PrivateKeySize)
			copy(priv, candidate[:])
			clear(candidate[:])
			klog.Wallet.Debug().Uint32("attempt", i).Msg("Derived key from fallback policy")
			return priv, nil
		}
		clear(candidate[:])
	}
	return nil, fmt.Errorf("%w: no valid scalar after %d fallback attempts", ErrDerivation, MaxFallbackAttempts)
}
