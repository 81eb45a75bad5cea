// Package trust evaluates whether the running process and device can be
// trusted with secret material. Every check fails closed: a check that
// cannot run counts as failed.
package trust

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by probe checks not available on this
// platform.
var ErrUnsupported = errors.New("check not supported on this platform")

// Probe is the platform capability behind the trust checks.
// A non-nil error means the check could not be performed.
type Probe interface {
	// Compromised reports a rooted or jailbroken device, or a process
	// running with superuser rights.
	Compromised(ctx context.Context) (bool, error)
	// DebuggerAttached reports a tracer attached to this process.
	DebuggerAttached(ctx context.Context) (bool, error)
	// Emulator reports a virtual machine or simulator.
	Emulator(ctx context.Context) (bool, error)
}

// NewProbe returns the probe for the current operating system.
func NewProbe() Probe {
	return newOSProbe()
}

// StaticProbe reports fixed results. It is used for tests and for hosts
// where an external attestation service has already produced a posture.
type StaticProbe struct {
	IsCompromised bool
	HasDebugger   bool
	IsEmulator    bool
	Err           error
}

func (p StaticProbe) Compromised(context.Context) (bool, error) {
	return p.IsCompromised, p.Err
}

func (p StaticProbe) DebuggerAttached(context.Context) (bool, error) {
	return p.HasDebugger, p.Err
}

func (p StaticProbe) Emulator(context.Context) (bool, error) {
	return p.IsEmulator, p.Err
}
