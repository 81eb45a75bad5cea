package trust

import (
	"sync/atomic"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
)

// ScreenGuard toggles screen capture protection while secrets are shown.
type ScreenGuard interface {
	SetProtected(enabled bool) error
}

// LogScreenGuard records the requested protection state. Headless hosts
// use it where there is no screen to protect.
type LogScreenGuard struct {
	enabled atomic.Bool
}

// SetProtected records and logs the state.
func (g *LogScreenGuard) SetProtected(enabled bool) error {
	g.enabled.Store(enabled)
	klog.Trust.Debug().Bool("enabled", enabled).Msg("Screen protection changed")
	return nil
}

// Protected reports the last requested state.
func (g *LogScreenGuard) Protected() bool {
	return g.enabled.Load()
}
