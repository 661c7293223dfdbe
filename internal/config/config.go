package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// RateLimitPerMinute caps mutating requests per client IP. 0 disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	// Attesters are the hex addresses whose signatures count as proofs.
	Attesters []string `mapstructure:"attesters" yaml:"attesters"`

	KeeperEnabled  bool   `mapstructure:"keeper_enabled" yaml:"keeper_enabled"`
	KeeperSchedule string `mapstructure:"keeper_schedule" yaml:"keeper_schedule"`
	KeeperAddress  string `mapstructure:"keeper_address" yaml:"keeper_address"`
	KeeperBatch    int    `mapstructure:"keeper_batch" yaml:"keeper_batch"`

	Bootstrap Bootstrap `mapstructure:"bootstrap" yaml:"bootstrap"`
}

// Bootstrap initializes the hub at startup when Owner is set and the hub has
// no owner yet.
type Bootstrap struct {
	Owner           string `mapstructure:"owner" yaml:"owner"`
	MinStake        string `mapstructure:"min_stake" yaml:"min_stake"`
	ChallengePeriod uint64 `mapstructure:"challenge_period" yaml:"challenge_period"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		DatabasePath:       "relayhub.db",
		LogLevel:           "info",
		LogFormat:          "console",
		JWTSecret:          "change-me",
		JWTIssuer:          "relayhub",
		JWTAudience:        "relayhub-api",
		JWTTTL:             24 * time.Hour,
		RateLimitPerMinute: 120,
		KeeperSchedule:     "@every 30s",
		KeeperBatch:        100,
		Bootstrap: Bootstrap{
			MinStake:        "0",
			ChallengePeriod: 3600,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.KeeperSchedule != "" {
		c.KeeperSchedule = other.KeeperSchedule
	}
	if other.KeeperAddress != "" {
		c.KeeperAddress = other.KeeperAddress
	}
	if len(other.Attesters) > 0 {
		c.Attesters = other.Attesters
	}
}
