package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
)

// DeviceKeyFile is the device key file name inside the vault directory.
const DeviceKeyFile = "device.key"

// LoadDeviceKey reads the device sealing key at path, creating it from
// crypto/rand on first use. The file is only readable by the owner.
func LoadDeviceKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(key) != DeviceKeySize {
			clear(key)
			return nil, fmt.Errorf("device key %s: expected %d bytes", path, DeviceKeySize)
		}
		if info, statErr := os.Stat(path); statErr == nil && info.Mode().Perm()&0o077 != 0 {
			klog.Vault.Warn().Str("path", path).Str("mode", info.Mode().Perm().String()).
				Msg("Device key is readable by other users")
		}
		return key, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read device key: %w", err)
	}
	return createDeviceKey(path, rand.Reader)
}

func createDeviceKey(path string, entropy io.Reader) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	key := make([]byte, DeviceKeySize)
	if _, err := io.ReadFull(entropy, key); err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		clear(key)
		return nil, fmt.Errorf("create device key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		os.Remove(path)
		clear(key)
		return nil, fmt.Errorf("write device key: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		clear(key)
		return nil, fmt.Errorf("write device key: %w", err)
	}
	klog.Vault.Info().Str("path", path).Msg("Generated device key")
	return key, nil
}

// NewDeviceSealer loads (or creates) the device key in dir and returns a
// sealer for it. The key bytes are cleared once the cipher is built.
func NewDeviceSealer(dir string) (*Sealer, error) {
	key, err := LoadDeviceKey(filepath.Join(dir, DeviceKeyFile))
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return NewSealer(key)
}
