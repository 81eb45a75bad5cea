package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/vaultpass/config"
	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/internal/storage"
	"github.com/Klingon-tech/vaultpass/internal/vault"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openDB opens the key-value store for the configured backend. The memory
// backend keeps everything, including the passcode verifier, in process.
func openDB(cfg *config.Config) (storage.DB, error) {
	if cfg.Vault.Backend == config.BackendMemory {
		klog.Storage.Warn().Msg("Memory backend: the wallet is lost when the process exits")
		return storage.NewMemory(), nil
	}
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}
	klog.Storage.Info().Str("path", cfg.DBDir()).Msg("Database opened")
	return db, nil
}

// openSecretStore returns the sealed secret store for the configured backend.
func openSecretStore(cfg *config.Config, db storage.DB, sealer *vault.Sealer) (vault.SecretStore, error) {
	switch cfg.Vault.Backend {
	case config.BackendFile:
		fs, err := vault.NewFileStore(cfg.VaultDir(), sealer)
		if err != nil {
			return nil, fmt.Errorf("open keystore in %s: %w", cfg.VaultDir(), err)
		}
		return fs, nil
	case config.BackendBadger, config.BackendMemory:
		return vault.NewSealedStore(storage.NewPrefixDB(db, prefixVault), sealer), nil
	default:
		return nil, fmt.Errorf("unsupported vault backend: %s", cfg.Vault.Backend)
	}
}
