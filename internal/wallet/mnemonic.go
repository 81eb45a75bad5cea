// Package wallet implements mnemonic handling, key derivation, and
// address derivation for a single-account wallet.
package wallet

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	// MnemonicEntropyBits is the entropy size for 12-word mnemonics.
	MnemonicEntropyBits = 128

	// MnemonicWords is the only accepted mnemonic length.
	MnemonicWords = 12
)

// GenerateMnemonic creates a new 12-word BIP-39 mnemonic from crypto/rand.
func GenerateMnemonic() (string, error) {
	return GenerateMnemonicFrom(rand.Reader)
}

// GenerateMnemonicFrom creates a 12-word mnemonic from 16 bytes read from r.
// A failing or short reader is an error; nothing is substituted for it.
func GenerateMnemonicFrom(r io.Reader) (string, error) {
	if r == nil {
		return "", ErrEntropyUnavailable
	}
	entropy := make([]byte, MnemonicEntropyBits/8)
	defer clear(entropy)

	if _, err := io.ReadFull(r, entropy); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases the phrase and collapses whitespace to
// single spaces.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic reports whether mnemonic is a 12-word BIP-39 phrase with
// known words and a valid checksum.
func ValidateMnemonic(mnemonic string) bool {
	normalized := NormalizeMnemonic(mnemonic)
	if len(strings.Fields(normalized)) != MnemonicWords {
		return false
	}
	return bip39.IsMnemonicValid(normalized)
}
