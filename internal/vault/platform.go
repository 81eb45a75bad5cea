// Package vault implements the single-slot secret vault. The secret is held
// by a device-bound SecretStore and released only after an Authenticator
// challenge succeeds for that call.
package vault

import "context"

// Policy is the access-control policy recorded with a stored secret.
type Policy struct {
	// RequireAuth marks the secret as readable only after user
	// authentication.
	RequireAuth bool
}

// DefaultPolicy requires authentication for every read.
var DefaultPolicy = Policy{RequireAuth: true}

func (p Policy) flags() byte {
	var f byte
	if p.RequireAuth {
		f |= 1
	}
	return f
}

func policyFromFlags(f byte) Policy {
	return Policy{RequireAuth: f&1 != 0}
}

// SecretStore is device-bound storage for one secret.
// Get and Has never prompt the user. Get returns an error matching
// ErrNotFound when nothing is stored. Delete of an empty store succeeds.
type SecretStore interface {
	Put(ctx context.Context, secret []byte, policy Policy) error
	Get(ctx context.Context) ([]byte, error)
	Has(ctx context.Context) (bool, error)
	Delete(ctx context.Context) error
}

// AuthPrompt is the text shown by the authentication challenge.
type AuthPrompt struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
}

// Prompts used by the session.
var (
	UnlockPrompt = AuthPrompt{
		Title:    "Authenticate to access wallet",
		Subtitle: "Use biometrics to unlock",
	}
	SeedPrompt = AuthPrompt{
		Title:    "Authenticate to access your seed phrase",
		Subtitle: "Use biometrics to unlock",
	}
	SignPrompt = AuthPrompt{
		Title:    "Authenticate to sign",
		Subtitle: "Use biometrics to unlock",
	}
)

// Biometry describes the enrolled authentication capability.
type Biometry struct {
	Available bool   `json:"available"`
	Kind      string `json:"kind,omitempty"`
}

// Authenticator issues the user authentication challenge.
//
// Authenticate returns nil only when the user authenticated for this call.
// Any other outcome, including a cancelled context, is a failure.
// Returning an error matching ErrAuthUnavailable reports that no method
// is enrolled.
type Authenticator interface {
	Authenticate(ctx context.Context, prompt AuthPrompt) error
	Biometry(ctx context.Context) Biometry
}
