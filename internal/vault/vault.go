package vault

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
)

var errNoAuthMethod = errors.New("no authentication method enrolled")

// State is the per-call authentication state. It is never persisted.
type State int32

const (
	StateIdle State = iota
	StateAuthPending
	StateAuthorized
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthPending:
		return "auth_pending"
	case StateAuthorized:
		return "authorized"
	case StateDenied:
		return "denied"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Vault is the sole authority for storing and retrieving the mnemonic.
//
// Store, Retrieve and Wipe are serialized: only one authentication
// challenge is outstanding at a time. Later callers wait for the slot and
// give up when their context ends.
type Vault struct {
	store SecretStore
	auth  Authenticator

	slot  chan struct{}
	state atomic.Int32
}

// New creates a vault over store, gated by auth.
func New(store SecretStore, auth Authenticator) *Vault {
	return &Vault{
		store: store,
		auth:  auth,
		slot:  make(chan struct{}, 1),
	}
}

// State returns the current per-call state.
func (v *Vault) State() State {
	return State(v.state.Load())
}

func (v *Vault) setState(s State) {
	v.state.Store(int32(s))
}

func (v *Vault) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case v.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Vault) release() {
	<-v.slot
}

// Store saves secret, replacing any previous one. The secret is sealed
// under DefaultPolicy, so Store fails if no authentication method is
// enrolled to satisfy it. The caller keeps ownership of secret.
func (v *Vault) Store(ctx context.Context, secret []byte) error {
	const op = "store"
	if len(secret) == 0 {
		return newError(op, ErrWriteFailed, errors.New("empty secret"))
	}
	if err := v.acquire(ctx); err != nil {
		return newError(op, ErrWriteFailed, err)
	}
	defer v.release()

	if !v.auth.Biometry(ctx).Available {
		klog.Vault.Warn().Msg("Refusing to store secret: no authentication method enrolled")
		return newError(op, ErrWriteFailed, errNoAuthMethod)
	}
	if err := v.store.Put(ctx, secret, DefaultPolicy); err != nil {
		klog.Vault.Error().Err(err).Msg("Failed to store secret")
		return newError(op, ErrWriteFailed, err)
	}
	klog.Vault.Info().Msg("Secret stored")
	return nil
}

// Retrieve authenticates the user with prompt and returns the secret.
// The caller owns the returned slice and should clear it after use.
//
// Nothing is returned unless Authenticate returned nil for this call.
// A missing secret fails with ErrNotFound before any prompt is shown.
func (v *Vault) Retrieve(ctx context.Context, prompt AuthPrompt) ([]byte, error) {
	const op = "retrieve"
	if err := v.acquire(ctx); err != nil {
		return nil, newError(op, ErrAuthFailed, err)
	}
	defer v.release()

	has, err := v.store.Has(ctx)
	if err != nil {
		return nil, newError(op, ErrReadFailed, err)
	}
	if !has {
		return nil, newError(op, ErrNotFound, nil)
	}
	if !v.auth.Biometry(ctx).Available {
		return nil, newError(op, ErrAuthUnavailable, nil)
	}

	v.setState(StateAuthPending)
	defer v.setState(StateIdle)

	if err := v.authenticate(ctx, prompt); err != nil {
		v.setState(StateDenied)
		klog.Vault.Warn().Err(err).Msg("Authentication denied")
		if errors.Is(err, ErrAuthUnavailable) {
			return nil, newError(op, ErrAuthUnavailable, err)
		}
		return nil, newError(op, ErrAuthFailed, err)
	}
	v.setState(StateAuthorized)

	secret, err := v.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(op, ErrNotFound, nil)
		}
		klog.Vault.Error().Err(err).Msg("Failed to read secret after authentication")
		return nil, newError(op, ErrReadFailed, err)
	}
	if len(secret) == 0 {
		return nil, newError(op, ErrReadFailed, errors.New("empty secret"))
	}
	return secret, nil
}

// authenticate runs the challenge and normalizes its outcome. A panic in
// the authenticator and a context that ended during the prompt both count
// as failures.
func (v *Vault) authenticate(ctx context.Context, prompt AuthPrompt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("authenticator panic: %v", r)
		}
	}()
	if err := v.auth.Authenticate(ctx, prompt); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Exists reports whether a secret is stored, without authentication.
// A storage error is logged and reported as false.
func (v *Vault) Exists(ctx context.Context) bool {
	has, err := v.Lookup(ctx)
	if err != nil {
		klog.Vault.Error().Err(err).Msg("Failed to check for stored secret")
		return false
	}
	return has
}

// Lookup is Exists with the storage error returned as ErrReadFailed.
func (v *Vault) Lookup(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, newError("lookup", ErrReadFailed, err)
	}
	has, err := v.store.Has(ctx)
	if err != nil {
		return false, newError("lookup", ErrReadFailed, err)
	}
	return has, nil
}

// Wipe deletes the stored secret. Wiping an empty vault succeeds.
func (v *Vault) Wipe(ctx context.Context) error {
	const op = "wipe"
	if err := v.acquire(ctx); err != nil {
		return newError(op, ErrWriteFailed, err)
	}
	defer v.release()

	if err := v.store.Delete(ctx); err != nil {
		klog.Vault.Error().Err(err).Msg("Failed to wipe secret")
		return newError(op, ErrWriteFailed, err)
	}
	klog.Vault.Info().Msg("Secret wiped")
	return nil
}

// BiometricAvailable reports the enrolled authentication capability.
func (v *Vault) BiometricAvailable(ctx context.Context) Biometry {
	return v.auth.Biometry(ctx)
}

// StoredAt returns when the current secret was stored, if the backend
// records it.
func (v *Vault) StoredAt() (time.Time, bool) {
	st, ok := v.store.(interface{ StoredAt() (time.Time, error) })
	if !ok {
		return time.Time{}, false
	}
	t, err := st.StoredAt()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
