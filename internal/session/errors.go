package session

import (
	"errors"

	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
	"github.com/Klingon-tech/vaultpass/pkg/crypto"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed
	// from the current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrLocked is returned by sensitive operations while the session is
	// locked.
	ErrLocked = errors.New("session is locked")
)

// User-facing messages, one per error kind.
const (
	MsgTrustViolation   = "This device failed a security check. Sensitive actions are blocked."
	MsgAuthFailed       = "Authentication failed. Please try again."
	MsgAuthUnavailable  = "No passcode or biometrics set up on this device. Set one up to continue."
	MsgNotFound         = "No wallet found on this device."
	MsgWriteFailed      = "Could not save your wallet to secure storage."
	MsgReadFailed       = "Could not read your wallet from secure storage."
	MsgInvalidMnemonic  = "Invalid recovery phrase. Check the words and try again."
	MsgEntropy          = "Secure random number generator unavailable."
	MsgCrypto           = "A cryptographic operation failed."
	MsgLocked           = "Wallet is locked. Unlock it to continue."
	MsgInvalidOperation = "That action is not available right now."
	MsgUnknown          = "Something went wrong."
)

// UserMessage maps err to the message shown to the user. A trust violation
// takes precedence over every other kind.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, trust.ErrTrustViolation):
		var ve *trust.ViolationError
		if errors.As(err, &ve) && ve.Reason != "" {
			return MsgTrustViolation + " " + ve.Reason + "."
		}
		return MsgTrustViolation
	case errors.Is(err, vault.ErrAuthFailed):
		return MsgAuthFailed
	case errors.Is(err, vault.ErrAuthUnavailable):
		return MsgAuthUnavailable
	case errors.Is(err, vault.ErrNotFound):
		return MsgNotFound
	case errors.Is(err, vault.ErrWriteFailed):
		return MsgWriteFailed
	case errors.Is(err, vault.ErrReadFailed):
		return MsgReadFailed
	case errors.Is(err, wallet.ErrInvalidMnemonic):
		return MsgInvalidMnemonic
	case errors.Is(err, wallet.ErrEntropyUnavailable):
		return MsgEntropy
	case errors.Is(err, wallet.ErrDerivation), errors.Is(err, crypto.ErrSigning):
		return MsgCrypto
	case errors.Is(err, ErrLocked):
		return MsgLocked
	case errors.Is(err, ErrInvalidTransition):
		return MsgInvalidOperation
	default:
		return MsgUnknown
	}
}
