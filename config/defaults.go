package config

import (
	"net"
	"strconv"

	"github.com/Klingon-tech/vaultpass/internal/session"
)

// DefaultRPCPort is the default UI bridge port.
const DefaultRPCPort = 9645

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Vault: VaultConfig{
			Backend: BackendBadger,
		},
		Auth: AuthConfig{
			Method: AuthPasscode,
		},
		Wallet: WalletConfig{
			Derivation: "seed",
			Address:    "keccak",
		},
		Trust: TrustConfig{
			RequireIntegrity: true,
			BlockEmulator:    false,
		},
		Session: SessionConfig{
			IdleTimeout: session.DefaultIdleTimeout,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    "127.0.0.1",
			Port:    DefaultRPCPort,
			Allowed: []string{"127.0.0.1", "::1"},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
