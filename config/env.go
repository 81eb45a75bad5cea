package config

import (
	"fmt"
	"io"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. VAULTPASS_RPC_PORT or
// VAULTPASS_SESSION_IDLE_TIMEOUT.
const EnvPrefix = "VAULTPASS"

const envUsageFormat = `{{range .}}  {{usage_key .}} ({{usage_type .}})
{{end}}`

// ApplyEnv applies VAULTPASS_* environment overrides to cfg. Variables
// that are not set leave cfg unchanged.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// PrintEnvUsage writes the recognised environment variables to w.
func PrintEnvUsage(w io.Writer) error {
	return envconfig.Usagef(EnvPrefix, &Config{}, w, envUsageFormat)
}
