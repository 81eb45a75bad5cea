package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration values from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "datadir":
		cfg.DataDir = value

	// Vault
	case "vault.backend":
		cfg.Vault.Backend = VaultBackend(strings.ToLower(value))

	// Auth
	case "auth.method":
		cfg.Auth.Method = strings.ToLower(value)

	// Wallet
	case "wallet.derivation":
		cfg.Wallet.Derivation = strings.ToLower(value)
	case "wallet.address":
		cfg.Wallet.Address = strings.ToLower(value)

	// Trust
	case "trust.require_integrity":
		cfg.Trust.RequireIntegrity = parseBool(value)
	case "trust.block_emulator":
		cfg.Trust.BlockEmulator = parseBool(value)

	// Session
	case "session.idle_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Session.IdleTimeout = d

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.Allowed = parseStringList(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string) error {
	content := `# VaultPass Daemon Configuration
#
# Precedence: defaults < this file < VAULTPASS_* environment < flags.
# The build flavour (development/production) and the integrity reference
# hash are fixed at compile time and cannot be changed here.

# Data directory (default: ~/.vaultpass)
# datadir = ~/.vaultpass

# ============================================================================
# Vault
# ============================================================================

# Where the sealed mnemonic is kept: badger, file, or memory
vault.backend = badger

# ============================================================================
# Authentication
# ============================================================================

# Enroll a passcode with: vaultpassd --enroll-passcode
auth.method = passcode

# ============================================================================
# Wallet
# ============================================================================

# Key derivation: seed (first 32 seed bytes) or bip44 (m/44'/60'/0'/0/0)
wallet.derivation = seed

# Address format: keccak (EIP-55) or blake3
wallet.address = keccak

# ============================================================================
# Trust
# ============================================================================

# Block sensitive actions when the binary integrity check fails.
# Cannot be disabled in production builds.
trust.require_integrity = true

# Block sensitive actions on emulators and virtual machines
trust.block_emulator = false

# ============================================================================
# Session
# ============================================================================

# Lock after this much inactivity (0 disables)
session.idle_timeout = 5m

# ============================================================================
# RPC Bridge
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(DefaultRPCPort) + `
rpc.allowed = 127.0.0.1,::1

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0600)
}
