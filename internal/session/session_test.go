package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/Klingon-tech/vaultpass/internal/build"
	"github.com/Klingon-tech/vaultpass/internal/storage"
	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var testStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// testAuth is a scripted Authenticator.
type testAuth struct {
	mu       sync.Mutex
	enrolled bool
	deny     error
	calls    int
	prompts  []vault.AuthPrompt
	during   func()
}

func (a *testAuth) Authenticate(_ context.Context, prompt vault.AuthPrompt) error {
	a.mu.Lock()
	a.calls++
	a.prompts = append(a.prompts, prompt)
	deny, during := a.deny, a.during
	a.mu.Unlock()

	if during != nil {
		during()
	}
	return deny
}

func (a *testAuth) Biometry(context.Context) vault.Biometry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return vault.Biometry{Available: a.enrolled, Kind: "test"}
}

func (a *testAuth) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type harness struct {
	s      *Session
	vault  *vault.Vault
	auth   *testAuth
	probe  *trust.StaticProbe
	db     storage.DB
	clock  *clock.TestClock
	screen *trust.LogScreenGuard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithClock(t, clock.NewTestClock(testStart))
}

func newHarnessWithClock(t *testing.T, c *clock.TestClock) *harness {
	t.Helper()

	sealer, err := vault.NewSealer(bytes.Repeat([]byte{7}, vault.DeviceKeySize))
	if err != nil {
		t.Fatal(err)
	}
	mem := storage.NewMemory()
	h := &harness{
		auth:   &testAuth{enrolled: true},
		probe:  &trust.StaticProbe{},
		db:     storage.NewPrefixDB(mem, []byte("session/")),
		clock:  c,
		screen: &trust.LogScreenGuard{},
	}
	h.vault = vault.New(vault.NewSealedStore(storage.NewPrefixDB(mem, []byte("vault/")), sealer), h.auth)

	hash := strings.Repeat("ab", 32)
	eval := trust.NewEvaluator(h.probe, trust.DefaultPolicy,
		trust.WithDeployment(build.Production),
		trust.WithIntegrity(hash, func() (string, error) { return hash, nil }),
		trust.WithClock(c))

	h.s, err = New(Config{
		Vault:       h.vault,
		Trust:       eval,
		DB:          h.db,
		Screen:      h.screen,
		Clock:       c,
		IdleTimeout: DefaultIdleTimeout,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// onboarded returns a harness with the test mnemonic stored and unlocked.
func onboarded(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.s.OnboardingComplete(ctx, testMnemonic); err != nil {
		t.Fatal(err)
	}
	return h
}

func expectedAddress(t *testing.T) wallet.Address {
	t.Helper()
	addr, err := wallet.DefaultDeriver().AddressFromMnemonic(testMnemonic)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t)
	eval := trust.NewEvaluator(&trust.StaticProbe{}, trust.DefaultPolicy)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no vault", Config{Trust: eval}},
		{"no trust", Config{Vault: h.vault}},
		{"negative timeout", Config{Vault: h.vault, Trust: eval, IdleTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}

	s, err := New(Config{Vault: h.vault, Trust: eval})
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != Uninitialized {
		t.Errorf("State() = %s, want uninitialized", s.State())
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t)
	if err := h.s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if h.s.State() != NoSecret {
		t.Errorf("empty vault: State() = %s, want no_secret", h.s.State())
	}
	if err := h.s.Initialize(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Initialize() error = %v, want ErrInvalidTransition", err)
	}

	// A stored secret starts locked with the cached address.
	h = onboarded(t)
	h.s.Teardown()
	if err := h.s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if h.s.State() != Locked {
		t.Errorf("stored secret: State() = %s, want locked", h.s.State())
	}
	if got := h.s.Identity().Address; !got.Equal(expectedAddress(t)) {
		t.Errorf("cached address = %s, want %s", got, expectedAddress(t))
	}
	if h.auth.callCount() != 0 {
		t.Error("Initialize must not prompt")
	}
}

// lookupFailVault reports a storage failure on Lookup.
type lookupFailVault struct {
	*vault.Vault
}

func (lookupFailVault) Lookup(context.Context) (bool, error) {
	return false, &vault.Error{Op: "lookup", Kind: vault.ErrReadFailed, Err: errors.New("disk error")}
}

func TestInitialize_StorageError(t *testing.T) {
	h := newHarness(t)
	s, err := New(Config{Vault: lookupFailVault{h.vault}, Trust: trust.NewEvaluator(h.probe, trust.Policy{})})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(context.Background()); !errors.Is(err, vault.ErrReadFailed) {
		t.Fatalf("Initialize() error = %v, want ErrReadFailed", err)
	}
	if s.State() != Uninitialized {
		t.Errorf("State() = %s, want uninitialized", s.State())
	}
}

func TestOnboardingComplete(t *testing.T) {
	h := onboarded(t)

	if h.s.State() != Unlocked {
		t.Fatalf("State() = %s, want unlocked", h.s.State())
	}
	id := h.s.Identity()
	if id.IsZero() {
		t.Fatal("identity is empty after onboarding")
	}
	if !id.Address.Equal(expectedAddress(t)) {
		t.Errorf("address = %s, want %s", id.Address, expectedAddress(t))
	}
	if !h.vault.Exists(context.Background()) {
		t.Error("vault should hold the mnemonic")
	}
	cached, err := h.db.Get(addressKey)
	if err != nil || string(cached) != string(id.Address) {
		t.Errorf("cached address = %q, %v", cached, err)
	}
	if h.auth.callCount() != 0 {
		t.Error("onboarding must not prompt")
	}
}

func TestOnboardingComplete_NormalizesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.s.Initialize(ctx)

	messy := "  " + strings.ToUpper(strings.ReplaceAll(testMnemonic, " ", "   ")) + "\n"
	if err := h.s.OnboardingComplete(ctx, messy); err != nil {
		t.Fatal(err)
	}

	secret, err := h.vault.Retrieve(ctx, vault.UnlockPrompt)
	if err != nil {
		t.Fatal(err)
	}
	if string(secret) != testMnemonic {
		t.Errorf("stored %q, want normalized mnemonic", secret)
	}
}

func TestOnboardingComplete_Failures(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		enrolled bool
		want     error
	}{
		{"invalid mnemonic", "abandon abandon abandon", true, wallet.ErrInvalidMnemonic},
		{"bad checksum", strings.Repeat("abandon ", 11) + "abandon", true, wallet.ErrInvalidMnemonic},
		{"no authentication enrolled", testMnemonic, false, vault.ErrWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.auth.enrolled = tt.enrolled
			ctx := context.Background()
			h.s.Initialize(ctx)

			err := h.s.OnboardingComplete(ctx, tt.mnemonic)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if h.s.State() != NoSecret {
				t.Errorf("State() = %s, want no_secret", h.s.State())
			}
			if !h.s.Identity().IsZero() {
				t.Error("identity set after failed onboarding")
			}
			if h.vault.Exists(ctx) {
				t.Error("secret stored after failed onboarding")
			}
		})
	}
}

func TestOnboardingComplete_WrongState(t *testing.T) {
	h := onboarded(t)
	err := h.s.OnboardingComplete(context.Background(), testMnemonic)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestUnlock(t *testing.T) {
	h := onboarded(t)
	ctx := context.Background()

	if err := h.s.Lock(); err != nil {
		t.Fatal(err)
	}
	if h.s.State() != Locked {
		t.Fatalf("State() = %s, want locked", h.s.State())
	}
	if err := h.s.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}
	if h.s.State() != Unlocked {
		t.Errorf("State() = %s, want unlocked", h.s.State())
	}
	if h.auth.callCount() != 1 {
		t.Errorf("prompts = %d, want 1", h.auth.callCount())
	}
	if h.auth.prompts[0] != vault.UnlockPrompt {
		t.Errorf("prompt = %+v, want UnlockPrompt", h.auth.prompts[0])
	}

	// Unlocking again is a no-op.
	if err := h.s.Unlock(ctx); err != nil {
		t.Fatal(err)
	}
	if h.auth.callCount() != 1 {
		t.Error("unlocking an unlocked session should not prompt")
	}
}

func TestUnlock_Compromised(t *testing.T) {
	h := onboarded(t)
	h.s.Lock()
	h.probe.IsCompromised = true

	events, cancel := h.s.Subscribe()
	defer cancel()

	err := h.s.Unlock(context.Background())
	if !errors.Is(err, trust.ErrTrustViolation) {
		t.Fatalf("Unlock() error = %v, want ErrTrustViolation", err)
	}
	var ve *trust.ViolationError
	if !errors.As(err, &ve) || ve.Reason != trust.ReasonCompromised {
		t.Errorf("violation = %v", ve)
	}
	if h.s.State() != Locked {
		t.Errorf("State() = %s, want locked", h.s.State())
	}
	if h.auth.callCount() != 0 {
		t.Error("the vault must not prompt when the trust gate refuses")
	}

	ev := <-events
	if ev.Kind != EventTrustViolation || ev.Reason != trust.ReasonCompromised {
		t.Errorf("event = %+v", ev)
	}
}

func TestUnlock_AuthDenied(t *testing.T) {
	h := onboarded(t)
	h.s.Lock()
	h.auth.deny = errors.New("user cancelled")

	events, cancel := h.s.Subscribe()
	defer cancel()

	err := h.s.Unlock(context.Background())
	if !errors.Is(err, vault.ErrAuthFailed) {
		t.Fatalf("Unlock() error = %v, want ErrAuthFailed", err)
	}
	if !vault.Retryable(err) {
		t.Error("a declined prompt should be retryable")
	}
	if h.s.State() != Locked {
		t.Errorf("State() = %s, want locked", h.s.State())
	}
	if ev := <-events; ev.Kind != EventAuthFailed || ev.Reason != MsgAuthFailed {
		t.Errorf("event = %+v", ev)
	}
	if !h.vault.Exists(context.Background()) {
		t.Error("denied unlock must leave the secret in place")
	}

	h.auth.deny = nil
	if err := h.s.Unlock(context.Background()); err != nil {
		t.Fatalf("retry Unlock() error: %v", err)
	}
}

func TestUnlock_DebuggerDevelopment(t *testing.T) {
	h := onboarded(t)
	h.s.Lock()
	h.probe.HasDebugger = true

	if err := h.s.Unlock(context.Background()); !errors.Is(err, trust.ErrTrustViolation) {
		t.Fatalf("production Unlock() error = %v, want trust violation", err)
	}

	// Same device, development evaluator.
	hash := strings.Repeat("ab", 32)
	h.s.trust = trust.NewEvaluator(h.probe, trust.DefaultPolicy,
		trust.WithDeployment(build.Development),
		trust.WithIntegrity(hash, func() (string, error) { return hash, nil }))
	if err := h.s.Unlock(context.Background()); err != nil {
		t.Fatalf("development Unlock() error: %v", err)
	}
}

func TestUnlock_WrongState(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Unlock(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("uninitialized: error = %v", err)
	}
	h.s.Initialize(context.Background())
	if err := h.s.Unlock(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("no secret: error = %v", err)
	}
}

func TestLock(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Lock(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("uninitialized Lock() error = %v", err)
	}

	h = onboarded(t)
	if err := h.s.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Lock(); err != nil {
		t.Errorf("second Lock() error = %v", err)
	}
	if h.s.State() != Locked {
		t.Errorf("State() = %s, want locked", h.s.State())
	}
	if h.s.Identity().IsZero() {
		t.Error("locking keeps the public identity")
	}
}

// Lock must not wait for an outstanding authentication prompt.
func TestLock_DuringPrompt(t *testing.T) {
	h := onboarded(t)
	h.s.Lock()

	release := make(chan struct{})
	prompting := make(chan struct{})
	h.auth.during = func() {
		close(prompting)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- h.s.Unlock(context.Background()) }()

	<-prompting
	lockDone := make(chan struct{})
	go func() {
		h.s.Lock()
		close(lockDone)
	}()
	select {
	case <-lockDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Lock() blocked on the authentication prompt")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestWipe(t *testing.T) {
	h := onboarded(t)
	ctx := context.Background()

	if err := h.s.Wipe(ctx); err != nil {
		t.Fatalf("Wipe() error: %v", err)
	}
	if h.s.State() != NoSecret {
		t.Errorf("State() = %s, want no_secret", h.s.State())
	}
	if !h.s.Identity().IsZero() {
		t.Error("identity not cleared")
	}
	if h.vault.Exists(ctx) {
		t.Error("vault still holds a secret")
	}
	if ok, _ := h.db.Has(addressKey); ok {
		t.Error("cached address not cleared")
	}
	if st := h.s.SecurityStatus(ctx); st.StoredAt != nil {
		t.Errorf("StoredAt = %v after wipe, want nil", st.StoredAt)
	}

	// A fresh wallet can be onboarded afterwards.
	if err := h.s.OnboardingComplete(ctx, testMnemonic); err != nil {
		t.Fatal(err)
	}
}

func TestWipe_WrongState(t *testing.T) {
	h := onboarded(t)
	h.s.Lock()
	if err := h.s.Wipe(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("locked Wipe() error = %v, want ErrLocked", err)
	}
	if !h.vault.Exists(context.Background()) {
		t.Error("locked wipe must not delete the secret")
	}

	h = newHarness(t)
	h.s.Initialize(context.Background())
	if err := h.s.Wipe(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("no-secret Wipe() error = %v, want ErrInvalidTransition", err)
	}
}

func TestTeardown(t *testing.T) {
	h := onboarded(t)
	events, _ := h.s.Subscribe()

	h.s.Teardown()
	if h.s.State() != Uninitialized {
		t.Errorf("State() = %s, want uninitialized", h.s.State())
	}
	if !h.s.Identity().IsZero() {
		t.Error("identity kept after teardown")
	}
	for range events {
	}

	if err := h.s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize after Teardown: %v", err)
	}
	if h.s.State() != Locked {
		t.Errorf("State() = %s, want locked", h.s.State())
	}
}

func TestSubscribe_Cancel(t *testing.T) {
	h := onboarded(t)
	events, cancel := h.s.Subscribe()
	cancel()
	cancel()

	h.s.Lock()
	if _, ok := <-events; ok {
		t.Error("cancelled subscription received an event")
	}
}

func TestSubscribe_StateChanges(t *testing.T) {
	h := newHarness(t)
	events, cancel := h.s.Subscribe()
	defer cancel()

	ctx := context.Background()
	h.s.Initialize(ctx)
	h.s.OnboardingComplete(ctx, testMnemonic)
	h.s.Lock()

	want := []State{NoSecret, Unlocked, Locked}
	for _, st := range want {
		ev := <-events
		if ev.Kind != EventStateChanged || ev.State != st {
			t.Errorf("event = %+v, want state %s", ev, st)
		}
		if !ev.Time.Equal(testStart) {
			t.Errorf("event time = %v, want %v", ev.Time, testStart)
		}
	}
}

func TestSecurityStatus(t *testing.T) {
	h := onboarded(t)
	h.probe.IsEmulator = true

	st := h.s.SecurityStatus(context.Background())
	if st.State != Unlocked {
		t.Errorf("State = %s", st.State)
	}
	if !st.Verdict.Emulator || st.Verdict.Compromised {
		t.Errorf("Verdict = %+v", st.Verdict)
	}
	if !st.Allowed {
		t.Error("emulators are tolerated by the default policy")
	}
	if !st.SecretStored {
		t.Error("SecretStored = false")
	}
	if st.StoredAt == nil || st.StoredAt.IsZero() {
		t.Error("StoredAt should be reported for a stored secret")
	}
	if !st.Biometry.Available || st.Biometry.Kind != "test" {
		t.Errorf("Biometry = %+v", st.Biometry)
	}

	h.probe.IsCompromised = true
	st = h.s.SecurityStatus(context.Background())
	if st.Allowed || st.Reason != trust.ReasonCompromised {
		t.Errorf("status not recomputed: %+v", st)
	}
	if h.auth.callCount() != 0 {
		t.Error("SecurityStatus must not prompt")
	}
}
