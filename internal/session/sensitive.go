package session

import (
	"context"
	"fmt"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

// Signed is the result of SignMessage.
type Signed struct {
	Signature []byte         `json:"signature"`
	PublicKey []byte         `json:"public_key"`
	Address   wallet.Address `json:"address"`
}

// requireUnlocked checks that sensitive operations are permitted.
func (s *Session) requireUnlocked(op string) error {
	switch st := s.State(); st {
	case Unlocked:
		return nil
	case Locked:
		return fmt.Errorf("%s: %w", op, ErrLocked)
	default:
		return transitionError(op, st)
	}
}

// withSecret runs the sensitive-operation protocol: the session must be
// unlocked, the trust gate is re-checked and the vault re-authenticates.
// The mnemonic is cleared when fn returns.
func (s *Session) withSecret(ctx context.Context, op string, prompt vault.AuthPrompt,
	fn func(mnemonic []byte) error) error {

	if err := s.requireUnlocked(op); err != nil {
		return err
	}
	if err := s.gate(ctx); err != nil {
		return err
	}
	secret, err := s.retrieve(ctx, prompt)
	if err != nil {
		return err
	}
	defer clear(secret)

	// The session may have been locked while the prompt was shown.
	if err := s.requireUnlocked(op); err != nil {
		return err
	}
	s.touch()
	return fn(secret)
}

// WithKeyMaterial derives fresh key material for one operation and zeroes
// it when fn returns. fn must not retain km.
func (s *Session) WithKeyMaterial(ctx context.Context, prompt vault.AuthPrompt,
	fn func(km *wallet.KeyMaterial) error) error {

	return s.withSecret(ctx, "key access", prompt, func(mnemonic []byte) error {
		km, err := s.deriver.DeriveKey(string(mnemonic))
		if err != nil {
			return err
		}
		defer km.Zero()
		return fn(km)
	})
}

// SignMessage signs message with the wallet key.
func (s *Session) SignMessage(ctx context.Context, message []byte) (*Signed, error) {
	var out *Signed
	err := s.WithKeyMaterial(ctx, vault.SignPrompt, func(km *wallet.KeyMaterial) error {
		sig, err := s.deriver.Sign(message, km)
		if err != nil {
			return err
		}
		addr, err := s.deriver.DeriveAddress(km.PublicKey)
		if err != nil {
			return err
		}
		out = &Signed{
			Signature: sig,
			PublicKey: append([]byte(nil), km.PublicKey...),
			Address:   addr,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.Session.Info().Str("address", out.Address.String()).Int("len", len(message)).Msg("Message signed")
	return out, nil
}

// ExportMnemonic hands the mnemonic to show with screen protection enabled
// for the duration of the call. show must not retain the phrase.
func (s *Session) ExportMnemonic(ctx context.Context, show func(mnemonic string) error) error {
	return s.withSecret(ctx, "export", vault.SeedPrompt, func(mnemonic []byte) error {
		if err := s.screen.SetProtected(true); err != nil {
			return fmt.Errorf("enable screen protection: %w", err)
		}
		defer func() {
			if err := s.screen.SetProtected(false); err != nil {
				klog.Session.Warn().Err(err).Msg("Failed to disable screen protection")
			}
		}()
		klog.Session.Info().Msg("Recovery phrase exported")
		return show(string(mnemonic))
	})
}
