package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "RELAYHUB"
	envConfigDefaultPath = "RELAYHUB_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, an optional YAML file and
// RELAYHUB_* env vars, validates it, and returns the resolved file path.
// Precedence: defaults < config file < env vars. CLI flags are applied by the
// caller through UpdateFrom.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults(cfg) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	switch err := v.ReadInConfig(); {
	case err == nil:
	case isNotExist(err):
		if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil {
			logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
		} else {
			logger.Info().Str("path", configPath).Msg("created default config")
		}
	default:
		return cfg, configPath, fmt.Errorf("read config: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, configPath, nil
}

// defaults flattens cfg into viper keys so env vars resolve for every field.
func defaults(cfg Config) map[string]any {
	return map[string]any{
		"addr":                       cfg.Addr,
		"read_header_timeout":        cfg.ReadHeaderTimeout,
		"shutdown_timeout":           cfg.ShutdownTimeout,
		"database_path":              cfg.DatabasePath,
		"log_level":                  cfg.LogLevel,
		"log_format":                 cfg.LogFormat,
		"jwt_secret":                 cfg.JWTSecret,
		"jwt_issuer":                 cfg.JWTIssuer,
		"jwt_audience":               cfg.JWTAudience,
		"jwt_ttl":                    cfg.JWTTTL,
		"rate_limit_per_minute":      cfg.RateLimitPerMinute,
		"attesters":                  cfg.Attesters,
		"keeper_enabled":             cfg.KeeperEnabled,
		"keeper_schedule":            cfg.KeeperSchedule,
		"keeper_address":             cfg.KeeperAddress,
		"keeper_batch":               cfg.KeeperBatch,
		"bootstrap.owner":            cfg.Bootstrap.Owner,
		"bootstrap.min_stake":        cfg.Bootstrap.MinStake,
		"bootstrap.challenge_period": cfg.Bootstrap.ChallengePeriod,
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	var problems []string

	if c.JWTSecret == "" {
		problems = append(problems, "jwt_secret is empty")
	}
	if c.JWTTTL <= 0 {
		problems = append(problems, "jwt_ttl must be positive")
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not console or json", c.LogFormat))
	}
	if c.KeeperEnabled {
		if _, err := cron.ParseStandard(c.KeeperSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("keeper_schedule %q: %v", c.KeeperSchedule, err))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, defaultConfigName)
	}
	return defaultConfigName
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
