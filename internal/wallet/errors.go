package wallet

import "errors"

var (
	// ErrInvalidMnemonic is returned for a phrase with the wrong word count,
	// an unknown word, or a bad checksum. Recoverable by re-entry.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrEntropyUnavailable is returned when the random source fails.
	// There is no fallback generator.
	ErrEntropyUnavailable = errors.New("entropy source unavailable")

	// ErrDerivation is returned when a key cannot be derived from a valid seed.
	ErrDerivation = errors.New("key derivation failed")
)
