//go:build darwin

package trust

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// pTraced is P_TRACED from <sys/proc.h>.
const pTraced = 0x00000800

// Jailbreak artefacts on iOS.
var jailbreakPaths = []string{
	"/Applications/Cydia.app",
	"/Library/MobileSubstrate/MobileSubstrate.dylib",
	"/bin/bash",
	"/usr/sbin/sshd",
	"/etc/apt",
	"/private/var/lib/apt",
}

type darwinProbe struct{}

func newOSProbe() Probe { return darwinProbe{} }

func (darwinProbe) Compromised(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if os.Geteuid() == 0 {
		return true, nil
	}
	// macOS ships /bin/bash; the path list only applies on iOS devices.
	if runtime.GOOS != "ios" {
		return false, nil
	}
	for _, path := range jailbreakPaths {
		_, err := os.Lstat(path)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
			return true, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return false, nil
}

func (darwinProbe) DebuggerAttached(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	kp, err := unix.SysctlKinfoProc("kern.proc.pid", os.Getpid())
	if err != nil {
		return true, fmt.Errorf("sysctl kern.proc.pid: %w", err)
	}
	return kp.Proc.P_flag&pTraced != 0, nil
}

func (darwinProbe) Emulator(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	vmm, err := unix.SysctlUint32("kern.hv_vmm_present")
	if err != nil {
		return true, fmt.Errorf("sysctl kern.hv_vmm_present: %w", err)
	}
	return vmm != 0, nil
}
