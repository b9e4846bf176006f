package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/vincemic/ai-fhir-pit/internal/settings"
)

// Settings store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	FHIRServerURL  string   `mapstructure:"FHIR_SERVER_URL"`
	FHIRServerName string   `mapstructure:"FHIR_SERVER_NAME"`
	FHIRAPIKey     string   `mapstructure:"FHIR_API_KEY"`
	FHIRTimeoutMS  int      `mapstructure:"FHIR_TIMEOUT_MS"`
	SettingsStore  string   `mapstructure:"SETTINGS_STORE"`
	SettingsFile   string   `mapstructure:"SETTINGS_FILE"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	SyntheticBatch int      `mapstructure:"SYNTHETIC_BATCH_SIZE"`
}

var keys = []string{
	"PORT", "ENV",
	"FHIR_SERVER_URL", "FHIR_SERVER_NAME", "FHIR_API_KEY", "FHIR_TIMEOUT_MS",
	"SETTINGS_STORE", "SETTINGS_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT_SECONDS", "SYNTHETIC_BATCH_SIZE",
}

// Load reads the configuration from the environment and an optional .env
// file in the working directory. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("FHIR_SERVER_URL", "https://hapi.fhir.org/baseR4")
	v.SetDefault("FHIR_SERVER_NAME", "HAPI FHIR Test Server")
	v.SetDefault("FHIR_TIMEOUT_MS", 10000)
	v.SetDefault("SETTINGS_STORE", StoreFile)
	v.SetDefault("SETTINGS_FILE", "data/console-settings.json")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:4200")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 60)
	v.SetDefault("SYNTHETIC_BATCH_SIZE", 20)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.SettingsStore = strings.ToLower(strings.TrimSpace(cfg.SettingsStore))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in development mode: API authentication is disabled")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DefaultServer is the FHIR connection used until settings are saved, and
// again after a reset.
func (c *Config) DefaultServer() settings.ServerSettings {
	return settings.ServerSettings{
		ServerURL:  strings.TrimRight(strings.TrimSpace(c.FHIRServerURL), "/"),
		ServerName: c.FHIRServerName,
		APIKey:     c.FHIRAPIKey,
		Timeout:    c.FHIRTimeoutMS,
	}
}

// Validate checks that the configuration is usable. Outside development a
// JWT verification source is required so the API is never left open.
func (c *Config) Validate() error {
	if err := c.DefaultServer().Validate(); err != nil {
		return fmt.Errorf("FHIR_SERVER_URL: %w", err)
	}
	if c.FHIRTimeoutMS < 0 {
		return fmt.Errorf("FHIR_TIMEOUT_MS must not be negative")
	}

	switch c.SettingsStore {
	case StoreMemory:
	case StoreFile:
		if c.SettingsFile == "" {
			return fmt.Errorf("SETTINGS_FILE is required when SETTINGS_STORE is %q", StoreFile)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SETTINGS_STORE is %q", StorePostgres)
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SETTINGS_STORE is %q", StoreRedis)
		}
	default:
		return fmt.Errorf("SETTINGS_STORE must be one of memory, file, postgres or redis, got %q", c.SettingsStore)
	}

	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.AuthJWKSURL != "" {
		if u, err := url.Parse(c.AuthJWKSURL); err != nil || u.Host == "" {
			return fmt.Errorf("AUTH_JWKS_URL is not a valid URL: %q", c.AuthJWKSURL)
		}
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must not be negative")
	}
	if c.SyntheticBatch < 1 {
		return fmt.Errorf("SYNTHETIC_BATCH_SIZE must be at least 1")
	}
	return nil
}
