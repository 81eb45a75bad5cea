// Package config handles daemon configuration.
//
// Settings are layered: defaults, then the vaultpass.conf file, then
// VAULTPASS_* environment variables, then command-line flags. The build
// flavour and the integrity reference hash are compile-time only (see
// internal/build) and cannot be set here.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// VaultBackend selects where the sealed secret is kept.
type VaultBackend string

const (
	BackendBadger VaultBackend = "badger" // sealed blob in the on-disk KV store
	BackendFile   VaultBackend = "file"   // sealed JSON keystore file
	BackendMemory VaultBackend = "memory" // in-process only, lost on exit
)

// AuthPasscode is the only authentication method on headless hosts.
const AuthPasscode = "passcode"

// Config holds the daemon configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	Vault   VaultConfig
	Auth    AuthConfig
	Wallet  WalletConfig
	Trust   TrustConfig
	Session SessionConfig
	RPC     RPCConfig
	Log     LogConfig
}

// VaultConfig holds secret storage settings.
type VaultConfig struct {
	Backend VaultBackend `conf:"vault.backend"`
}

// AuthConfig holds user authentication settings.
type AuthConfig struct {
	Method string `conf:"auth.method"`
}

// WalletConfig selects the key derivation and address schemes.
type WalletConfig struct {
	Derivation string `conf:"wallet.derivation"` // seed or bip44
	Address    string `conf:"wallet.address"`    // keccak or blake3
}

// TrustConfig holds the optional trust gate conditions.
type TrustConfig struct {
	RequireIntegrity bool `conf:"trust.require_integrity" split_words:"true"`
	BlockEmulator    bool `conf:"trust.block_emulator" split_words:"true"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	IdleTimeout time.Duration `conf:"session.idle_timeout" split_words:"true"` // 0 disables auto-lock
}

// RPCConfig holds the UI bridge settings.
type RPCConfig struct {
	Enabled bool     `conf:"rpc.enabled"`
	Addr    string   `conf:"rpc.addr"`
	Port    int      `conf:"rpc.port"`
	Allowed []string `conf:"rpc.allowed"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.vaultpass
//	macOS:   ~/Library/Application Support/VaultPass
//	Windows: %APPDATA%\VaultPass
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultpass"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "VaultPass")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "VaultPass")
		}
		return filepath.Join(home, "AppData", "Roaming", "VaultPass")
	default:
		return filepath.Join(home, ".vaultpass")
	}
}

// VaultDir holds the device key and the file-backed keystore.
func (c *Config) VaultDir() string {
	return filepath.Join(c.DataDir, "vault")
}

// DBDir returns the key-value database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "vaultpass.conf")
}

// RPCEndpoint returns the host:port the RPC server listens on.
func (c *Config) RPCEndpoint() string {
	return joinHostPort(c.RPC.Addr, c.RPC.Port)
}
