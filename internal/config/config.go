package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-level setting the auth core consumes.
// Values come from environment variables; cmd/server optionally loads a
// .env file first.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"Pulsetrack"`
	Env     string `env:"ENV" envDefault:"DEV"`
	Port    string `env:"PORT" envDefault:"8080"`

	// BaseURL is the public URL of this server, used to build the OAuth
	// redirect URI (e.g. "https://api.pulsetrack.app").
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	// FrontendURL is where the browser is sent after the OAuth flow
	// finishes, with ?auth=success or ?auth=error appended.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	// IssuerURL is the OIDC issuer used for discovery. Overridable so
	// tests can point the flow at a fake provider.
	IssuerURL string `env:"OIDC_ISSUER_URL" envDefault:"https://accounts.google.com"`

	SessionTTLSeconds int `env:"SESSION_TTL_SECONDS" envDefault:"86400"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/pulsetrack.db"`
}

// New parses configuration from the environment.
func New() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// Validate checks settings that are fatal at startup when missing.
func (c Config) Validate() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	return nil
}

// ListenAddr returns the address for http.Server, ensuring a leading colon.
func (c Config) ListenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// SessionTTL returns the configured session lifetime as a duration.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// RedirectURL is the OAuth callback URL registered with the provider.
func (c Config) RedirectURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/auth/google/callback"
}

// IsProduction reports whether the server runs in a production-like mode.
// Cookie Secure flags key off this.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "PROD") || strings.EqualFold(c.Env, "production")
}
