package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Klingon-tech/vaultpass/internal/build"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help           bool
	Version        bool
	EnrollPasscode   bool
	UnenrollPasscode bool

	// Core
	DataDir string
	Config  string

	// Vault / wallet
	VaultBackend  string
	Derivation    string
	AddressScheme string

	// Trust
	RequireIntegrity bool
	BlockEmulator    bool

	// Session
	IdleTimeout time.Duration

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags whose zero value is meaningful.
	SetRequireIntegrity bool
	SetBlockEmulator    bool
	SetIdleTimeout      bool
	SetRPC              bool
	SetLogJSON          bool
}

// ParseFlags parses os.Args, exiting on error.
func ParseFlags() *Flags {
	f, err := ParseFlagsFrom(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// ParseFlagsFrom parses args. Parse errors are reported to errOut.
func ParseFlagsFrom(args []string, errOut io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("vaultpassd", flag.ContinueOnError)
	fs.SetOutput(errOut)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")
	fs.BoolVar(&f.EnrollPasscode, "enroll-passcode", false, "Enroll the device passcode and exit")
	fs.BoolVar(&f.UnenrollPasscode, "unenroll-passcode", false, "Remove the device passcode and exit")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Vault / wallet
	fs.StringVar(&f.VaultBackend, "vault-backend", "", "Vault backend (badger, file, memory)")
	fs.StringVar(&f.Derivation, "derivation", "", "Key derivation scheme (seed, bip44)")
	fs.StringVar(&f.AddressScheme, "address-scheme", "", "Address scheme (keccak, blake3)")

	// Trust
	fs.BoolVar(&f.RequireIntegrity, "require-integrity", true, "Block sensitive actions on integrity failure")
	fs.BoolVar(&f.BlockEmulator, "block-emulator", false, "Block sensitive actions on emulators")

	// Session
	fs.DurationVar(&f.IdleTimeout, "idle-timeout", 0, "Auto-lock after this much inactivity (0 disables)")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC bridge")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetRequireIntegrity = isFlagSet(fs, "require-integrity")
	f.SetBlockEmulator = isFlagSet(fs, "block-emulator")
	f.SetIdleTimeout = isFlagSet(fs, "idle-timeout")
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Vault / wallet
	if f.VaultBackend != "" {
		cfg.Vault.Backend = VaultBackend(strings.ToLower(f.VaultBackend))
	}
	if f.Derivation != "" {
		cfg.Wallet.Derivation = strings.ToLower(f.Derivation)
	}
	if f.AddressScheme != "" {
		cfg.Wallet.Address = strings.ToLower(f.AddressScheme)
	}

	// Trust
	if f.SetRequireIntegrity {
		cfg.Trust.RequireIntegrity = f.RequireIntegrity
	}
	if f.SetBlockEmulator {
		cfg.Trust.BlockEmulator = f.BlockEmulator
	}

	// Session
	if f.SetIdleTimeout {
		cfg.Session.IdleTimeout = f.IdleTimeout
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.Allowed = parseStringList(f.RPCAllowed)
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `VaultPass - wallet security daemon

Usage:
  vaultpassd [options]
  vaultpassd --enroll-passcode
  vaultpassd --unenroll-passcode
  vaultpassd --help

Commands:
  --help, -h          Show this help message
  --version, -v       Show version information
  --enroll-passcode     Enroll (or replace) the device passcode and exit
  --unenroll-passcode   Remove the device passcode and exit (no wallet may be stored)

Core Options:
  --datadir       Data directory (default: ~/.vaultpass)
  --config, -c    Config file path (default: <datadir>/vaultpass.conf)

Wallet Options:
  --vault-backend    Where the sealed mnemonic is kept: badger (default), file, memory
  --derivation       Key derivation: seed (default) or bip44
  --address-scheme   Address format: keccak (default) or blake3

Trust Options:
  --require-integrity   Block sensitive actions on integrity failure (default: true)
  --block-emulator      Block sensitive actions on emulators (default: false)

Session Options:
  --idle-timeout   Auto-lock after inactivity, e.g. 5m (0 disables)

RPC Options:
  --rpc           Enable RPC bridge (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (default: 9645)
  --rpc-allowed   Allowed IPs or CIDRs for RPC (comma-separated)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/vaultpassd.log)
  --log-json      Output logs as JSON

Environment:
`
	fmt.Print(usage)
	PrintEnvUsage(os.Stdout)
	fmt.Print(`
Examples:
  # Enroll a passcode, then start the daemon
  vaultpassd --enroll-passcode
  vaultpassd

  # Keep the sealed secret in a keystore file
  vaultpassd --vault-backend=file
`)
}

// Load loads configuration from os.Args. It exits for --help and
// --version.
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Printf("vaultpassd version %s (%s)\n", build.Version, build.Deployment)
		os.Exit(0)
	}

	cfg, err := Resolve(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// Resolve builds the configuration for already-parsed flags with the
// following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. VAULTPASS_* environment
// 5. Command-line flags
func Resolve(flags *Flags) (*Config, error) {
	cfg := Default()

	// The data directory decides where the config file lives.
	if dir := os.Getenv(EnvPrefix + "_DATADIR"); dir != "" {
		cfg.DataDir = dir
	}
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. This is idempotent, safe to call on
// every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.VaultDir(),
		cfg.DBDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
