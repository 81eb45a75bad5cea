// Package session implements the wallet session state machine. It decides
// when the wallet is locked, and gates every sensitive action on the trust
// evaluator and a fresh vault authentication.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/internal/storage"
	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

// State is the session lifecycle state. It is never persisted.
type State int32

const (
	Uninitialized State = iota
	NoSecret
	Locked
	Unlocked
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case NoSecret:
		return "no_secret"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Uninitialized, NoSecret, Locked, Unlocked} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// DefaultIdleTimeout is the inactivity period after which an unlocked
// session locks itself.
const DefaultIdleTimeout = 5 * time.Minute

// Key of the cached address in the session namespace.
var addressKey = []byte("address")

// Vault is the secret vault the session stores the mnemonic in.
type Vault interface {
	Store(ctx context.Context, secret []byte) error
	Retrieve(ctx context.Context, prompt vault.AuthPrompt) ([]byte, error)
	Lookup(ctx context.Context) (bool, error)
	Exists(ctx context.Context) bool
	Wipe(ctx context.Context) error
	BiometricAvailable(ctx context.Context) vault.Biometry
}

// Gate is the trust evaluator consulted before every sensitive action.
type Gate interface {
	Evaluate(ctx context.Context) trust.Verdict
	Decide(v trust.Verdict) trust.Decision
	CanProceedWithSensitiveOperation(ctx context.Context) trust.Decision
}

// Identity is the public wallet identity. It is empty until a mnemonic
// has been onboarded or unlocked.
type Identity struct {
	Address wallet.Address `json:"address"`
}

// IsZero reports an empty identity.
func (i Identity) IsZero() bool {
	return i.Address.IsZero()
}

// Config configures a Session.
type Config struct {
	Vault Vault
	Trust Gate

	// Deriver defaults to wallet.DefaultDeriver.
	Deriver *wallet.Deriver
	// DB caches the public address across restarts. Optional.
	DB storage.DB
	// Screen defaults to a trust.LogScreenGuard.
	Screen trust.ScreenGuard
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// IdleTimeout of zero disables auto-lock.
	IdleTimeout time.Duration
}

// Session owns the wallet lifecycle for one process.
//
// Transitions that touch the vault are serialized by tmu. mu guards the
// state fields only and is never held across I/O, so Lock never waits on
// an authentication prompt.
type Session struct {
	vault       Vault
	trust       Gate
	deriver     *wallet.Deriver
	db          storage.DB
	screen      trust.ScreenGuard
	clock       clock.Clock
	idleTimeout time.Duration

	tmu sync.Mutex

	mu         sync.Mutex
	state      State
	identity   Identity
	lastActive time.Time

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates a session in the Uninitialized state.
func New(cfg Config) (*Session, error) {
	if cfg.Vault == nil {
		return nil, errors.New("session: vault is required")
	}
	if cfg.Trust == nil {
		return nil, errors.New("session: trust evaluator is required")
	}
	if cfg.IdleTimeout < 0 {
		return nil, fmt.Errorf("session: negative idle timeout %s", cfg.IdleTimeout)
	}
	s := &Session{
		vault:       cfg.Vault,
		trust:       cfg.Trust,
		deriver:     cfg.Deriver,
		db:          cfg.DB,
		screen:      cfg.Screen,
		clock:       cfg.Clock,
		idleTimeout: cfg.IdleTimeout,
		subs:        make(map[chan Event]struct{}),
	}
	if s.deriver == nil {
		s.deriver = wallet.DefaultDeriver()
	}
	if s.screen == nil {
		s.screen = &trust.LogScreenGuard{}
	}
	if s.clock == nil {
		s.clock = clock.NewDefaultClock()
	}
	return s, nil
}

// State returns the current state. An unlocked session past its idle
// timeout is locked first.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return s.state
}

// Identity returns the wallet identity, empty if none is known.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Initialize moves Uninitialized to NoSecret or Locked depending on
// whether the vault holds a secret. A vault that cannot be read leaves the
// session Uninitialized.
func (s *Session) Initialize(ctx context.Context) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if st := s.State(); st != Uninitialized {
		return transitionError("initialize", st)
	}

	has, err := s.vault.Lookup(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	next, id := NoSecret, Identity{}
	if has {
		next = Locked
		id = s.loadIdentity()
	}
	s.transition(next, id, "initialize")
	return nil
}

// OnboardingComplete stores a confirmed mnemonic and unlocks the session.
// On failure the session stays in NoSecret and nothing is stored.
func (s *Session) OnboardingComplete(ctx context.Context, mnemonic string) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if st := s.State(); st != NoSecret {
		return transitionError("onboard", st)
	}
	if !wallet.ValidateMnemonic(mnemonic) {
		return wallet.ErrInvalidMnemonic
	}
	normalized := wallet.NormalizeMnemonic(mnemonic)

	addr, err := s.deriver.AddressFromMnemonic(normalized)
	if err != nil {
		return fmt.Errorf("onboard: %w", err)
	}

	secret := []byte(normalized)
	defer clear(secret)
	if err := s.vault.Store(ctx, secret); err != nil {
		return err
	}

	id := Identity{Address: addr}
	s.saveIdentity(id)
	s.transition(Unlocked, id, "onboard")
	return nil
}

// Unlock moves Locked to Unlocked. The trust gate is consulted first, then
// the vault authenticates the user. The retrieved mnemonic only confirms
// the address and is discarded. Unlocking an unlocked session succeeds.
func (s *Session) Unlock(ctx context.Context) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	switch st := s.State(); st {
	case Locked:
	case Unlocked:
		s.touch()
		return nil
	default:
		return transitionError("unlock", st)
	}

	if err := s.gate(ctx); err != nil {
		return err
	}

	secret, err := s.retrieve(ctx, vault.UnlockPrompt)
	if err != nil {
		return err
	}
	addr, err := s.deriver.AddressFromMnemonic(string(secret))
	clear(secret)
	if err != nil {
		klog.Session.Error().Err(err).Msg("Stored secret does not derive a wallet")
		return fmt.Errorf("unlock: %w", err)
	}

	id := Identity{Address: addr}
	if cached := s.Identity(); !cached.IsZero() && !cached.Address.Equal(addr) {
		klog.Session.Warn().
			Str("cached", cached.Address.String()).
			Str("derived", addr.String()).
			Msg("Cached address did not match the vault, replacing it")
	}
	s.saveIdentity(id)
	s.transition(Unlocked, id, "unlock")
	return nil
}

// Lock moves Unlocked to Locked. It does no I/O. Locking a locked session
// succeeds.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Unlocked:
		s.setStateLocked(Locked, "lock")
		return nil
	case Locked:
		return nil
	default:
		return transitionError("lock", s.state)
	}
}

// Wipe deletes the secret and every derived wallet datum, moving Unlocked
// to NoSecret.
func (s *Session) Wipe(ctx context.Context) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if st := s.State(); st != Unlocked {
		if st == Locked {
			return ErrLocked
		}
		return transitionError("wipe", st)
	}

	if err := s.vault.Wipe(ctx); err != nil {
		return err
	}
	if s.db != nil {
		if err := s.db.Delete(addressKey); err != nil {
			klog.Session.Warn().Err(err).Msg("Failed to clear cached address")
		}
	}
	s.transition(NoSecret, Identity{}, "wipe")
	return nil
}

// Teardown returns the session to Uninitialized, forgets the identity and
// closes every subscription. Initialize may be called again afterwards.
func (s *Session) Teardown() {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	s.mu.Lock()
	prev := s.state
	s.state = Uninitialized
	s.identity = Identity{}
	s.lastActive = time.Time{}
	s.mu.Unlock()

	if prev != Uninitialized {
		klog.Session.Info().Str("from", prev.String()).Msg("Session torn down")
	}
	s.closeSubscribers()
}

// transition sets the state and identity and notifies subscribers.
func (s *Session) transition(next State, id Identity, op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.setStateLocked(next, op)
}

// setStateLocked requires mu.
func (s *Session) setStateLocked(next State, op string) {
	prev := s.state
	s.state = next
	if next == Unlocked {
		s.lastActive = s.clock.Now()
	}
	ev := klog.Session.Info().Str("op", op).Str("from", prev.String()).Str("to", next.String())
	if !s.identity.IsZero() {
		ev = ev.Str("address", s.identity.Address.String())
	}
	ev.Msg("Session state changed")
	s.emit(EventStateChanged, next, op)
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Unlocked {
		s.lastActive = s.clock.Now()
	}
}

// gate consults the trust evaluator.
func (s *Session) gate(ctx context.Context) error {
	d := s.trust.CanProceedWithSensitiveOperation(ctx)
	if d.Allowed {
		return nil
	}
	s.emit(EventTrustViolation, s.State(), d.Reason)
	return d.Err()
}

// retrieve fetches the mnemonic, reporting authentication failures to
// subscribers.
func (s *Session) retrieve(ctx context.Context, prompt vault.AuthPrompt) ([]byte, error) {
	secret, err := s.vault.Retrieve(ctx, prompt)
	if err != nil {
		if errors.Is(err, vault.ErrAuthFailed) || errors.Is(err, vault.ErrAuthUnavailable) {
			s.emit(EventAuthFailed, s.State(), UserMessage(err))
		}
		return nil, err
	}
	return secret, nil
}

func (s *Session) loadIdentity() Identity {
	if s.db == nil {
		return Identity{}
	}
	raw, err := s.db.Get(addressKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			klog.Session.Warn().Err(err).Msg("Failed to load cached address")
		}
		return Identity{}
	}
	if !wallet.ValidAddress(string(raw)) {
		klog.Session.Warn().Msg("Ignoring malformed cached address")
		return Identity{}
	}
	return Identity{Address: wallet.Address(raw)}
}

func (s *Session) saveIdentity(id Identity) {
	if s.db == nil {
		return
	}
	if err := s.db.Put(addressKey, []byte(id.Address)); err != nil {
		klog.Session.Warn().Err(err).Msg("Failed to cache address")
	}
}

func transitionError(op string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}
