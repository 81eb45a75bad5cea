package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

func TestSignMessage(t *testing.T) {
	h := onboarded(t)
	ctx := context.Background()
	msg := []byte("transfer 1 VPT to 0xabc")

	first, err := h.s.SignMessage(ctx, msg)
	if err != nil {
		t.Fatalf("SignMessage() error: %v", err)
	}
	if !wallet.Verify(msg, first.Signature, first.PublicKey) {
		t.Error("signature does not verify")
	}
	if !first.Address.Equal(h.s.Identity().Address) {
		t.Errorf("signing address = %s, want %s", first.Address, h.s.Identity().Address)
	}

	second, err := h.s.SignMessage(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(first.Signature) != string(second.Signature) {
		t.Error("signing is not deterministic")
	}

	// Every signature re-authenticates.
	if h.auth.callCount() != 2 {
		t.Errorf("prompts = %d, want 2", h.auth.callCount())
	}
	for _, p := range h.auth.prompts {
		if p != vault.SignPrompt {
			t.Errorf("prompt = %+v, want SignPrompt", p)
		}
	}

	msg[0] ^= 0x01
	if wallet.Verify(msg, first.Signature, first.PublicKey) {
		t.Error("signature verifies a mutated message")
	}
}

func TestSignMessage_Refused(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		want    error
		prompts int
	}{
		{
			name:  "locked",
			setup: func(h *harness) { h.s.Lock() },
			want:  ErrLocked,
		},
		{
			name:  "compromised while unlocked",
			setup: func(h *harness) { h.probe.IsCompromised = true },
			want:  trust.ErrTrustViolation,
		},
		{
			name:  "debugger while unlocked",
			setup: func(h *harness) { h.probe.HasDebugger = true },
			want:  trust.ErrTrustViolation,
		},
		{
			name:    "authentication declined",
			setup:   func(h *harness) { h.auth.deny = errors.New("cancelled") },
			want:    vault.ErrAuthFailed,
			prompts: 1,
		},
		{
			name:    "locked during prompt",
			setup:   func(h *harness) { h.auth.during = func() { h.s.Lock() } },
			want:    ErrLocked,
			prompts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := onboarded(t)
			tt.setup(h)

			signed, err := h.s.SignMessage(context.Background(), []byte("msg"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if signed != nil {
				t.Error("refused signing returned a signature")
			}
			if h.auth.callCount() != tt.prompts {
				t.Errorf("prompts = %d, want %d", h.auth.callCount(), tt.prompts)
			}
		})
	}
}

func TestWithKeyMaterial_Zeroed(t *testing.T) {
	h := onboarded(t)

	var kept *wallet.KeyMaterial
	err := h.s.WithKeyMaterial(context.Background(), vault.SignPrompt, func(km *wallet.KeyMaterial) error {
		if len(km.PrivateKey) != 32 || len(km.PublicKey) != 33 {
			t.Errorf("key sizes = %d/%d", len(km.PrivateKey), len(km.PublicKey))
		}
		kept = km
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range kept.PrivateKey {
		if b != 0 {
			t.Fatal("private key not zeroed after the operation")
		}
	}
}

func TestWithKeyMaterial_FreshPerCall(t *testing.T) {
	h := onboarded(t)
	ctx := context.Background()

	var ptrs []*wallet.KeyMaterial
	for i := 0; i < 2; i++ {
		h.s.WithKeyMaterial(ctx, vault.SignPrompt, func(km *wallet.KeyMaterial) error {
			ptrs = append(ptrs, km)
			return nil
		})
	}
	if len(ptrs) != 2 || ptrs[0] == ptrs[1] {
		t.Error("key material must not be shared across calls")
	}
}

func TestWithKeyMaterial_CallbackError(t *testing.T) {
	h := onboarded(t)
	boom := errors.New("boom")
	err := h.s.WithKeyMaterial(context.Background(), vault.SignPrompt, func(*wallet.KeyMaterial) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want callback error", err)
	}
}

func TestExportMnemonic(t *testing.T) {
	h := onboarded(t)

	var shown string
	err := h.s.ExportMnemonic(context.Background(), func(m string) error {
		if !h.screen.Protected() {
			t.Error("screen not protected while the phrase is shown")
		}
		shown = m
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if shown != testMnemonic {
		t.Errorf("exported %q", shown)
	}
	if h.screen.Protected() {
		t.Error("screen protection left enabled")
	}
	if h.auth.prompts[0] != vault.SeedPrompt {
		t.Errorf("prompt = %+v, want SeedPrompt", h.auth.prompts[0])
	}
}

func TestExportMnemonic_Locked(t *testing.T) {
	h := onboarded(t)
	h.s.Lock()
	called := false
	err := h.s.ExportMnemonic(context.Background(), func(string) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrLocked) || called {
		t.Errorf("error = %v, called = %v", err, called)
	}
}

func TestAutoLock_Lazy(t *testing.T) {
	h := onboarded(t)
	events, cancel := h.s.Subscribe()
	defer cancel()

	h.clock.SetTime(testStart.Add(4 * time.Minute))
	if h.s.State() != Unlocked {
		t.Fatal("locked before the idle timeout")
	}

	// Activity pushes the deadline out.
	if _, err := h.s.SignMessage(context.Background(), []byte("keepalive")); err != nil {
		t.Fatal(err)
	}
	h.clock.SetTime(testStart.Add(8 * time.Minute))
	if h.s.State() != Unlocked {
		t.Fatal("activity did not reset the idle timer")
	}

	h.clock.SetTime(testStart.Add(9 * time.Minute))
	if h.s.State() != Locked {
		t.Fatal("idle session not locked")
	}

	var sawAutoLock bool
	for len(events) > 0 {
		if ev := <-events; ev.Kind == EventAutoLocked {
			sawAutoLock = true
		}
	}
	if !sawAutoLock {
		t.Error("no auto-lock event")
	}

	if _, err := h.s.SignMessage(context.Background(), []byte("late")); !errors.Is(err, ErrLocked) {
		t.Errorf("SignMessage() after auto-lock error = %v, want ErrLocked", err)
	}
}

func TestAutoLock_Run(t *testing.T) {
	ticks := make(chan time.Duration, 4)
	h := newHarnessWithClock(t, clock.NewTestClockWithTickSignal(testStart, ticks))
	ctx := context.Background()
	h.s.Initialize(ctx)
	if err := h.s.OnboardingComplete(ctx, testMnemonic); err != nil {
		t.Fatal(err)
	}

	events, cancel := h.s.Subscribe()
	defer cancel()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- h.s.Run(runCtx) }()

	if d := <-ticks; d != DefaultIdleTimeout {
		t.Fatalf("first check in %s, want %s", d, DefaultIdleTimeout)
	}
	h.clock.SetTime(testStart.Add(DefaultIdleTimeout))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind != EventAutoLocked {
				continue
			}
			if ev.State != Locked {
				t.Errorf("auto-lock event state = %s", ev.State)
			}
		case <-timeout:
			t.Fatal("watcher did not lock the idle session")
		}
		break
	}

	stop()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestRun_Disabled(t *testing.T) {
	h := newHarness(t)
	h.s.idleTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v", err)
	}
}
