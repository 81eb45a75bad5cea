package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/Klingon-tech/vaultpass/internal/build"
	klog "github.com/Klingon-tech/vaultpass/internal/log"
)

// Reasons reported by a denied Decision.
const (
	ReasonCompromised = "Device is compromised (rooted/jailbroken)"
	ReasonDebugger    = "Debugger detected in release build"
	ReasonIntegrity   = "Binary integrity check failed"
	ReasonEmulator    = "Running on an emulator or virtual machine"
)

// ErrTrustViolation is matched by every *ViolationError.
var ErrTrustViolation = errors.New("trust violation")

// ViolationError reports why a sensitive operation was refused.
type ViolationError struct {
	Reason  string
	Verdict Verdict
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("trust violation: %s", e.Reason)
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrTrustViolation
}

// Verdict is a point-in-time trust posture. It is recomputed on every
// Evaluate call and never cached.
type Verdict struct {
	Compromised      bool            `json:"compromised"`
	DebuggerAttached bool            `json:"debugger_attached"`
	Emulator         bool            `json:"emulator"`
	IntegrityOK      bool            `json:"integrity_ok"`
	Integrity        IntegrityStatus `json:"integrity"`
	Failures         []string        `json:"failures,omitempty"`
	Deployment       string          `json:"deployment"`
	CheckedAt        time.Time       `json:"checked_at"`
}

// Secure reports a verdict with no findings at all.
func (v Verdict) Secure() bool {
	return !v.Compromised && !v.DebuggerAttached && !v.Emulator && v.Integrity == IntegrityPassed
}

// Decision is the result of the sensitive-operation gate.
type Decision struct {
	Allowed bool    `json:"allowed"`
	Reason  string  `json:"reason,omitempty"`
	Verdict Verdict `json:"verdict"`
}

// Err returns nil for an allowed decision and a *ViolationError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ViolationError{Reason: d.Reason, Verdict: d.Verdict}
}

// Policy selects the optional gate conditions.
type Policy struct {
	// RequireIntegrity blocks when the integrity check failed.
	RequireIntegrity bool
	// BlockEmulator blocks on emulators and virtual machines.
	BlockEmulator bool
}

// DefaultPolicy requires integrity and tolerates emulators.
var DefaultPolicy = Policy{RequireIntegrity: true}

// Evaluator produces trust verdicts and gates sensitive operations.
type Evaluator struct {
	probe      Probe
	policy     Policy
	deployment build.DeploymentType
	expected   string
	compute    HashFunc
	clock      clock.Clock
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithIntegrity overrides the reference hash and the runtime hash function.
func WithIntegrity(expected string, compute HashFunc) Option {
	return func(e *Evaluator) {
		e.expected = expected
		e.compute = compute
	}
}

// WithDeployment overrides the compiled deployment type.
func WithDeployment(d build.DeploymentType) Option {
	return func(e *Evaluator) { e.deployment = d }
}

// WithClock sets the clock used to stamp verdicts.
func WithClock(c clock.Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// NewEvaluator creates an evaluator. A nil probe uses the probe for the
// current operating system. By default the reference hash is
// build.IntegrityHash and the runtime hash is ExecutableHash.
func NewEvaluator(probe Probe, policy Policy, opts ...Option) *Evaluator {
	if probe == nil {
		probe = NewProbe()
	}
	e := &Evaluator{
		probe:      probe,
		policy:     policy,
		deployment: build.Deployment,
		expected:   build.IntegrityHash,
		compute:    ExecutableHash,
		clock:      clock.NewDefaultClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the active policy.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Deployment returns the deployment type the evaluator enforces.
func (e *Evaluator) Deployment() build.DeploymentType {
	return e.deployment
}

// Evaluate runs every check. A check that errors or panics is recorded in
// Failures and counts as failed.
func (e *Evaluator) Evaluate(ctx context.Context) Verdict {
	v := Verdict{
		Deployment: e.deployment.String(),
		CheckedAt:  e.clock.Now(),
	}

	v.Compromised = e.runCheck(ctx, &v, "root detection", e.probe.Compromised)
	v.DebuggerAttached = e.runCheck(ctx, &v, "debugger detection", e.probe.DebuggerAttached)
	v.Emulator = e.runCheck(ctx, &v, "emulator detection", e.probe.Emulator)

	status, err := CheckIntegrity(e.expected, e.compute, e.deployment == build.Development)
	v.Integrity = status
	v.IntegrityOK = status != IntegrityFailed
	if status == IntegrityFailed {
		v.Failures = append(v.Failures, fmt.Sprintf("integrity: %v", err))
	}
	return v
}

func (e *Evaluator) runCheck(ctx context.Context, v *Verdict, name string,
	check func(context.Context) (bool, error)) (detected bool) {

	defer func() {
		if r := recover(); r != nil {
			v.Failures = append(v.Failures, fmt.Sprintf("%s: panic: %v", name, r))
			detected = true
		}
	}()
	if err := ctx.Err(); err != nil {
		v.Failures = append(v.Failures, fmt.Sprintf("%s: %v", name, err))
		return true
	}
	found, err := check(ctx)
	if err != nil {
		klog.Trust.Warn().Err(err).Str("check", name).Msg("Trust check could not run, treating as failed")
		v.Failures = append(v.Failures, fmt.Sprintf("%s: %v", name, err))
		return true
	}
	return found
}

// Decide applies the policy to a verdict.
func (e *Evaluator) Decide(v Verdict) Decision {
	d := Decision{Verdict: v}
	switch {
	case v.Compromised:
		d.Reason = ReasonCompromised
	case v.DebuggerAttached && e.deployment != build.Development:
		d.Reason = ReasonDebugger
	case e.policy.RequireIntegrity && !v.IntegrityOK:
		d.Reason = ReasonIntegrity
	case e.policy.BlockEmulator && v.Emulator:
		d.Reason = ReasonEmulator
	default:
		d.Allowed = true
	}
	return d
}

// CanProceedWithSensitiveOperation is the gate every sensitive action
// calls. It evaluates a fresh verdict.
func (e *Evaluator) CanProceedWithSensitiveOperation(ctx context.Context) Decision {
	d := e.Decide(e.Evaluate(ctx))
	if !d.Allowed {
		klog.Trust.Warn().
			Str("reason", d.Reason).
			Strs("failures", d.Verdict.Failures).
			Msg("Sensitive operation blocked")
	}
	return d
}
