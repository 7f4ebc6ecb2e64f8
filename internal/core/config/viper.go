package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (RE_SERVICE_PORT, ...).
const EnvPrefix = "RE"

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultServiceConfig
	d := DefaultServiceConfig()
	v.SetDefault("service.host", d.Host)
	v.SetDefault("service.port", d.Port)
	v.SetDefault("service.http_host", d.HTTPHost)
	v.SetDefault("service.http_port", d.HTTPPort)
	v.SetDefault("service.request_timeout", d.RequestTimeout.String())
	v.SetDefault("service.max_batch_size", d.MaxBatchSize)
	v.SetDefault("rules.file", "")
	v.SetDefault("rules.watch", false)
	v.SetDefault("database.url", d.DBURL)
	v.SetDefault("metrics.namespace", d.MetricsNamespace)

	// Bind environment variables with RE_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(configPath); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{
		Host:             v.GetString("service.host"),
		Port:             v.GetInt("service.port"),
		HTTPHost:         v.GetString("service.http_host"),
		HTTPPort:         v.GetInt("service.http_port"),
		RequestTimeout:   v.GetDuration("service.request_timeout"),
		MaxBatchSize:     v.GetInt("service.max_batch_size"),
		RulesFile:        v.GetString("rules.file"),
		WatchRules:       v.GetBool("rules.watch"),
		DBURL:            v.GetString("database.url"),
		MetricsNamespace: v.GetString("metrics.namespace"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoSecretsInConfig enforces environment-only database credentials.
// The file is read on its own so environment overrides do not mask it.
func validateNoSecretsInConfig(configPath string) error {
	if configPath == "" {
		return nil
	}
	f := viper.New()
	f.SetConfigFile(configPath)
	if err := f.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if hasCredentials(f.GetString("database.url")) {
		return fmt.Errorf("database credentials not allowed in config files (use %s_DATABASE_URL environment variable)", EnvPrefix)
	}
	return nil
}
