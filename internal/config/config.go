package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data sources.
const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DataSource        string        `mapstructure:"DATA_SOURCE"`
	DatasetFile       string        `mapstructure:"DATASET_FILE"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	SearchFoldAccents bool          `mapstructure:"SEARCH_FOLD_ACCENTS"`
}

var defaults = map[string]any{
	"PORT":                "8000",
	"ENV":                 "development",
	"LOG_LEVEL":           "info",
	"DATA_SOURCE":         SourceMemory,
	"DB_MAX_CONNS":        20,
	"DB_MIN_CONNS":        5,
	"MIGRATIONS_DIR":      "",
	"CORS_ORIGINS":        "http://localhost:3000",
	"RATE_LIMIT_RPS":      100,
	"RATE_LIMIT_BURST":    200,
	"BODY_LIMIT":          "64K",
	"REQUEST_TIMEOUT":     "30s",
	"SESSION_TTL":         "30m",
	"SEARCH_FOLD_ACCENTS": false,
}

var unset = []string{
	"DATASET_FILE", "DATABASE_URL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
}

// Load reads the configuration from the environment and an optional .env
// file in the working directory. It does not validate; call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
		v.BindEnv(k)
	}
	for _, k := range unset {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.DataSource = strings.ToLower(strings.TrimSpace(cfg.DataSource))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether patients and aggregates are served from
// Postgres rather than the in-memory dataset.
func (c *Config) UsesPostgres() bool {
	return c.DataSource == SourcePostgres
}

// Validate checks that the configuration is safe to run. Outside
// development a token issuer or a signing key is required.
func (c *Config) Validate() error {
	switch c.DataSource {
	case SourceMemory:
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE=%s", SourcePostgres)
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", SourceMemory, SourcePostgres, c.DataSource)
	}

	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
