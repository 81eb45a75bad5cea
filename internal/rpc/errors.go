package rpc

import (
	"errors"

	"github.com/Klingon-tech/vaultpass/internal/session"
	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
	"github.com/Klingon-tech/vaultpass/pkg/crypto"
)

// toError maps a wallet error to a JSON-RPC error. The message is the
// user-facing text, so no internal detail crosses the bridge.
func toError(err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Code: codeOf(err), Message: session.UserMessage(err)}

	var ve *trust.ViolationError
	switch {
	case errors.As(err, &ve):
		e.Data = ErrorData{Reason: ve.Reason}
	case vault.Retryable(err):
		e.Data = ErrorData{Retryable: true}
	}
	return e
}

// codeOf picks the error code. Precedence matches session.UserMessage.
func codeOf(err error) int {
	switch {
	case errors.Is(err, trust.ErrTrustViolation):
		return CodeTrustViolation
	case errors.Is(err, vault.ErrAuthFailed):
		return CodeAuthFailed
	case errors.Is(err, vault.ErrAuthUnavailable):
		return CodeAuthUnavailable
	case errors.Is(err, vault.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, vault.ErrWriteFailed):
		return CodeWriteFailed
	case errors.Is(err, vault.ErrReadFailed):
		return CodeReadFailed
	case errors.Is(err, wallet.ErrInvalidMnemonic):
		return CodeInvalidMnemonic
	case errors.Is(err, wallet.ErrEntropyUnavailable):
		return CodeEntropy
	case errors.Is(err, wallet.ErrDerivation), errors.Is(err, crypto.ErrSigning):
		return CodeCrypto
	case errors.Is(err, session.ErrLocked):
		return CodeLocked
	case errors.Is(err, session.ErrInvalidTransition):
		return CodeInvalidTransition
	default:
		return CodeInternalError
	}
}
