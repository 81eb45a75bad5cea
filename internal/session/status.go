package session

import (
	"context"
	"time"

	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
)

// Status is the security diagnostics snapshot. It is recomputed on every
// call.
type Status struct {
	State        State          `json:"state"`
	Verdict      trust.Verdict  `json:"verdict"`
	Allowed      bool           `json:"sensitive_allowed"`
	Reason       string         `json:"reason,omitempty"`
	Biometry     vault.Biometry `json:"biometry"`
	SecretStored bool           `json:"secret_stored"`
	StoredAt     *time.Time     `json:"stored_at,omitempty"`
}

// SecurityStatus evaluates the trust posture and vault availability.
func (s *Session) SecurityStatus(ctx context.Context) Status {
	v := s.trust.Evaluate(ctx)
	d := s.trust.Decide(v)
	st := Status{
		State:        s.State(),
		Verdict:      v,
		Allowed:      d.Allowed,
		Reason:       d.Reason,
		Biometry:     s.vault.BiometricAvailable(ctx),
		SecretStored: s.vault.Exists(ctx),
	}
	if sv, ok := s.vault.(interface{ StoredAt() (time.Time, bool) }); ok && st.SecretStored {
		if t, known := sv.StoredAt(); known {
			st.StoredAt = &t
		}
	}
	return st
}
