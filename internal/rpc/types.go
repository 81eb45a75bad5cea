package rpc

import (
	"github.com/Klingon-tech/vaultpass/internal/session"
	"github.com/Klingon-tech/vaultpass/internal/trust"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Wallet error codes, one per error kind.
const (
	CodeNotFound          = -32000
	CodeLocked            = -32001
	CodeInvalidTransition = -32002
	CodeAuthFailed        = -32010
	CodeAuthUnavailable   = -32011
	CodeWriteFailed       = -32012
	CodeReadFailed        = -32013
	CodeTrustViolation    = -32020
	CodeInvalidMnemonic   = -32030
	CodeEntropy           = -32031
	CodeCrypto            = -32032
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData is attached to wallet errors.
type ErrorData struct {
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// MnemonicParam is used by session_onboard and wallet_validateMnemonic.
type MnemonicParam struct {
	Mnemonic string `json:"mnemonic"`
}

// SignParam is used by wallet_signMessage. Message is UTF-8 text unless
// Hex is set.
type SignParam struct {
	Message string `json:"message"`
	Hex     bool   `json:"hex,omitempty"`
}

// VerifyParam is used by wallet_verifyMessage. Address is optional; when
// set, the public key must derive it.
type VerifyParam struct {
	Message   string `json:"message"`
	Hex       bool   `json:"hex,omitempty"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// StateResult is returned by session_getState and the transition methods.
type StateResult struct {
	State   session.State `json:"state"`
	Address string        `json:"address,omitempty"`
}

// IdentityResult is returned by session_getIdentity.
type IdentityResult struct {
	Address string `json:"address,omitempty"`
	Known   bool   `json:"known"`
}

// MnemonicResult is returned by wallet_generateMnemonic and
// wallet_exportMnemonic.
type MnemonicResult struct {
	Mnemonic string `json:"mnemonic"`
	Words    int    `json:"words"`
}

// ValidateResult is returned by wallet_validateMnemonic.
type ValidateResult struct {
	Valid bool `json:"valid"`
}

// SignResult is returned by wallet_signMessage.
type SignResult struct {
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// VerifyResult is returned by wallet_verifyMessage.
type VerifyResult struct {
	Valid bool `json:"valid"`
}

// ComplianceResult is returned by security_getCompliance.
type ComplianceResult struct {
	Deployment string                 `json:"deployment"`
	Compliant  int                    `json:"compliant"`
	Total      int                    `json:"total"`
	Items      []trust.ComplianceItem `json:"items"`
}
