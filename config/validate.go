package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/Klingon-tech/vaultpass/internal/build"
	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

// Validate checks the config for operator mistakes.
func Validate(cfg *Config) error {
	return validate(cfg, build.Deployment)
}

func validate(cfg *Config, deployment build.DeploymentType) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is empty")
	}

	switch cfg.Vault.Backend {
	case BackendBadger, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("vault.backend must be %q, %q or %q", BackendBadger, BackendFile, BackendMemory)
	}
	if cfg.Auth.Method != AuthPasscode {
		return fmt.Errorf("auth.method must be %q", AuthPasscode)
	}

	if _, err := wallet.NewDeriver(wallet.DerivationScheme(cfg.Wallet.Derivation), nil); err != nil {
		return fmt.Errorf("wallet.derivation: %w", err)
	}
	if _, err := wallet.AddressSchemeByName(cfg.Wallet.Address); err != nil {
		return fmt.Errorf("wallet.address: %w", err)
	}

	if !cfg.Trust.RequireIntegrity && deployment == build.Production {
		return fmt.Errorf("trust.require_integrity cannot be disabled in a %s build", deployment)
	}
	if cfg.Session.IdleTimeout < 0 {
		return fmt.Errorf("session.idle_timeout must not be negative")
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.RPC.Enabled && net.ParseIP(cfg.RPC.Addr) == nil && cfg.RPC.Addr != "localhost" {
		return fmt.Errorf("rpc.addr %q is not an IP address", cfg.RPC.Addr)
	}
	for i, entry := range cfg.RPC.Allowed {
		if err := validateAllowed(entry); err != nil {
			return fmt.Errorf("rpc.allowed[%d]: %w", i, err)
		}
	}

	if !klog.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	return nil
}

func validateAllowed(entry string) error {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("invalid CIDR %q", entry)
		}
		return nil
	}
	if net.ParseIP(entry) == nil {
		return fmt.Errorf("invalid IP %q", entry)
	}
	return nil
}

// LoopbackOnly reports whether the RPC bridge can only be reached from
// this host.
func (c *Config) LoopbackOnly() bool {
	if !c.RPC.Enabled {
		return true
	}
	if c.RPC.Addr == "localhost" {
		return true
	}
	ip := net.ParseIP(c.RPC.Addr)
	return ip != nil && ip.IsLoopback()
}
