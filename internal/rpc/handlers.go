package rpc

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

// ── Session endpoints ───────────────────────────────────────────────────

func (s *Server) stateResult() *StateResult {
	return &StateResult{
		State:   s.session.State(),
		Address: s.session.Identity().Address.String(),
	}
}

func (s *Server) handleSessionGetState(_ context.Context, _ *Request) (interface{}, *Error) {
	return s.stateResult(), nil
}

func (s *Server) handleSessionGetIdentity(_ context.Context, _ *Request) (interface{}, *Error) {
	id := s.session.Identity()
	return &IdentityResult{
		Address: id.Address.String(),
		Known:   !id.IsZero(),
	}, nil
}

func (s *Server) handleSessionUnlock(ctx context.Context, _ *Request) (interface{}, *Error) {
	if err := s.session.Unlock(ctx); err != nil {
		return nil, toError(err)
	}
	return s.stateResult(), nil
}

func (s *Server) handleSessionLock(_ context.Context, _ *Request) (interface{}, *Error) {
	if err := s.session.Lock(); err != nil {
		return nil, toError(err)
	}
	return s.stateResult(), nil
}

func (s *Server) handleSessionOnboard(ctx context.Context, req *Request) (interface{}, *Error) {
	var params MnemonicParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Mnemonic) == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "mnemonic is required"}
	}
	if err := s.session.OnboardingComplete(ctx, params.Mnemonic); err != nil {
		return nil, toError(err)
	}
	return s.stateResult(), nil
}

func (s *Server) handleSessionWipe(ctx context.Context, _ *Request) (interface{}, *Error) {
	if err := s.session.Wipe(ctx); err != nil {
		return nil, toError(err)
	}
	return s.stateResult(), nil
}

func (s *Server) handleSessionGetSecurityStatus(ctx context.Context, _ *Request) (interface{}, *Error) {
	st := s.session.SecurityStatus(ctx)
	return &st, nil
}

// ── Wallet endpoints ────────────────────────────────────────────────────

func (s *Server) handleWalletGenerateMnemonic(_ context.Context, _ *Request) (interface{}, *Error) {
	m, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, toError(err)
	}
	return &MnemonicResult{Mnemonic: m, Words: len(strings.Fields(m))}, nil
}

func (s *Server) handleWalletValidateMnemonic(_ context.Context, req *Request) (interface{}, *Error) {
	var params MnemonicParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return &ValidateResult{Valid: wallet.ValidateMnemonic(params.Mnemonic)}, nil
}

func (s *Server) handleWalletSignMessage(ctx context.Context, req *Request) (interface{}, *Error) {
	var params SignParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	msg, rpcErr := decodeMessage(params.Message, params.Hex)
	if rpcErr != nil {
		return nil, rpcErr
	}

	signed, err := s.session.SignMessage(ctx, msg)
	if err != nil {
		return nil, toError(err)
	}
	return &SignResult{
		Signature: hex.EncodeToString(signed.Signature),
		PublicKey: hex.EncodeToString(signed.PublicKey),
		Address:   signed.Address.String(),
	}, nil
}

func (s *Server) handleWalletVerifyMessage(_ context.Context, req *Request) (interface{}, *Error) {
	var params VerifyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	msg, rpcErr := decodeMessage(params.Message, params.Hex)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, err := hex.DecodeString(params.Signature)
	if err != nil || len(sig) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid signature: must be hex"}
	}
	pub, err := hex.DecodeString(params.PublicKey)
	if err != nil || len(pub) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid public_key: must be hex"}
	}

	if params.Address != "" {
		if !wallet.ValidAddress(params.Address) {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid address"}
		}
		addr, err := s.deriver.DeriveAddress(pub)
		if err != nil || !addr.Equal(wallet.Address(params.Address)) {
			return &VerifyResult{Valid: false}, nil
		}
	}
	return &VerifyResult{Valid: wallet.Verify(msg, sig, pub)}, nil
}

func (s *Server) handleWalletExportMnemonic(ctx context.Context, _ *Request) (interface{}, *Error) {
	var out *MnemonicResult
	err := s.session.ExportMnemonic(ctx, func(m string) error {
		out = &MnemonicResult{Mnemonic: m, Words: len(strings.Fields(m))}
		return nil
	})
	if err != nil {
		return nil, toError(err)
	}
	return out, nil
}

// ── Security endpoints ──────────────────────────────────────────────────

func (s *Server) handleSecurityGetCompliance(_ context.Context, _ *Request) (interface{}, *Error) {
	if s.evaluator == nil {
		return nil, &Error{Code: CodeMethodNotFound, Message: "compliance report not enabled"}
	}
	var env trust.ComplianceEnv
	if s.compliance != nil {
		env = s.compliance()
	}
	items := s.evaluator.ComplianceReport(env)
	res := &ComplianceResult{
		Deployment: s.evaluator.Deployment().String(),
		Total:      len(items),
		Items:      items,
	}
	for _, it := range items {
		if it.Compliant {
			res.Compliant++
		}
	}
	return res, nil
}

// decodeMessage returns the bytes to sign or verify.
func decodeMessage(message string, isHex bool) ([]byte, *Error) {
	if !isHex {
		if message == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "message is required"}
		}
		return []byte(message), nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(message, "0x"))
	if err != nil || len(b) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid message: must be non-empty hex"}
	}
	return b, nil
}
