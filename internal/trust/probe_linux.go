//go:build linux

package trust

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Root and Magisk artefacts. Plain /usr/bin/su is present on every Linux
// distribution and is not listed.
var suPaths = []string{
	"/system/bin/su",
	"/system/xbin/su",
	"/sbin/su",
	"/su/bin/su",
	"/system/app/Superuser.apk",
	"/data/adb/magisk",
	"/sbin/.magisk",
	"/cache/.disable_magisk",
}

// DMI product names of common hypervisors, lowercased.
var vmProducts = []string{
	"virtualbox",
	"vmware",
	"kvm",
	"qemu",
	"bochs",
	"virtual machine",
	"hvm domu",
	"standard pc",
	"android sdk",
	"goldfish",
}

type linuxProbe struct {
	root string // filesystem root, "/" outside tests
	euid func() int
}

func newOSProbe() Probe {
	return &linuxProbe{root: "/", euid: os.Geteuid}
}

func (p *linuxProbe) path(name string) string {
	return filepath.Join(p.root, name)
}

func (p *linuxProbe) Compromised(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if p.euid() == 0 {
		return true, nil
	}
	// An artefact that cannot be checked counts as present, including a
	// denied stat.
	for _, name := range suPaths {
		_, err := os.Lstat(p.path(name))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return true, fmt.Errorf("stat %s: %w", name, err)
		}
	}
	return false, nil
}

func (p *linuxProbe) DebuggerAttached(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	f, err := os.Open(p.path("proc/self/status"))
	if err != nil {
		return true, fmt.Errorf("read process status: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "TracerPid:") {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "TracerPid:")))
		if err != nil {
			return true, fmt.Errorf("parse TracerPid: %w", err)
		}
		return pid != 0, nil
	}
	if err := sc.Err(); err != nil {
		return true, fmt.Errorf("read process status: %w", err)
	}
	return true, errors.New("TracerPid not found in process status")
}

func (p *linuxProbe) Emulator(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	cpuinfo, err := os.ReadFile(p.path("proc/cpuinfo"))
	if err != nil {
		return true, fmt.Errorf("read cpuinfo: %w", err)
	}
	if hasHypervisorFlag(cpuinfo) {
		return true, nil
	}

	// DMI is absent on many ARM boards; only a positive match counts.
	product, err := os.ReadFile(p.path("sys/class/dmi/id/product_name"))
	if err == nil {
		name := strings.ToLower(strings.TrimSpace(string(product)))
		for _, vm := range vmProducts {
			if strings.Contains(name, vm) {
				return true, nil
			}
		}
	}
	return false, nil
}

func hasHypervisorFlag(cpuinfo []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(cpuinfo))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "flags") {
			continue
		}
		_, flags, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		for _, f := range strings.Fields(flags) {
			if f == "hypervisor" {
				return true
			}
		}
	}
	return false
}
