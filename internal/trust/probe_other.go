//go:build !linux && !darwin

package trust

import "context"

type unsupportedProbe struct{}

func newOSProbe() Probe { return unsupportedProbe{} }

func (unsupportedProbe) Compromised(context.Context) (bool, error) {
	return true, ErrUnsupported
}

func (unsupportedProbe) DebuggerAttached(context.Context) (bool, error) {
	return true, ErrUnsupported
}

func (unsupportedProbe) Emulator(context.Context) (bool, error) {
	return true, ErrUnsupported
}
