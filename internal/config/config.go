package config

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string   `mapstructure:"REDIS_URL"`
	JWTSigningKey      string   `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer          string   `mapstructure:"JWT_ISSUER"`
	JWTAudience        string   `mapstructure:"JWT_AUDIENCE"`
	JWTLifetimeMinutes int      `mapstructure:"JWT_LIFETIME_MINUTES"`
	JWTClockSkewSecs   int      `mapstructure:"JWT_CLOCK_SKEW_SECONDS"`
	LoginMaxAttempts   int      `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginLockoutMins   int      `mapstructure:"LOGIN_LOCKOUT_MINUTES"`
	RegistrationRoles  []string `mapstructure:"REGISTRATION_ROLES"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	RequestTimeoutSecs int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	RateLimitRPS       float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `mapstructure:"RATE_LIMIT_BURST"`
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed. Empty means
	// the socket address is the client.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "clinic-api")
	v.SetDefault("JWT_AUDIENCE", "clinic-clients")
	v.SetDefault("JWT_LIFETIME_MINUTES", 60)
	v.SetDefault("JWT_CLOCK_SKEW_SECONDS", 30)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_LOCKOUT_MINUTES", 15)
	v.SetDefault("REGISTRATION_ROLES", "Admin,Doctor,Patient")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
		"JWT_SIGNING_KEY", "JWT_ISSUER", "JWT_AUDIENCE", "JWT_LIFETIME_MINUTES",
		"JWT_CLOCK_SKEW_SECONDS", "LOGIN_MAX_ATTEMPTS", "LOGIN_LOCKOUT_MINUTES",
		"REGISTRATION_ROLES", "CORS_ORIGINS", "REQUEST_TIMEOUT_SECONDS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUSTED_PROXIES",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.RegistrationRoles = splitList(v.GetString("REGISTRATION_ROLES"))
	cfg.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Set ENV=production and a strong JWT_SIGNING_KEY before deploying.")
	}

	return cfg, nil
}

// splitList parses a comma-separated env value, trimming blanks.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
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

// TokenLifetime is the validity window of issued session tokens.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.JWTLifetimeMinutes) * time.Minute
}

func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.JWTClockSkewSecs) * time.Second
}

func (c *Config) LoginLockout() time.Duration {
	return time.Duration(c.LoginLockoutMins) * time.Minute
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// Validate checks that the configuration is safe to run. A signing key is
// always required; in production it must be at least 32 bytes.
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	if c.IsProduction() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes in production, got %d", len(c.JWTSigningKey))
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		return fmt.Errorf("JWT_ISSUER and JWT_AUDIENCE must both be set")
	}
	if c.JWTLifetimeMinutes <= 0 {
		return fmt.Errorf("JWT_LIFETIME_MINUTES must be positive, got %d", c.JWTLifetimeMinutes)
	}
	if c.JWTClockSkewSecs < 0 {
		return fmt.Errorf("JWT_CLOCK_SKEW_SECONDS must not be negative")
	}
	if c.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSecs)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.LoginMaxAttempts < 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must not be negative")
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES contains invalid CIDR %q", cidr)
		}
	}
	for _, r := range c.RegistrationRoles {
		switch r {
		case "Admin", "Doctor", "Patient":
		default:
			return fmt.Errorf("REGISTRATION_ROLES contains unknown role %q", r)
		}
	}
	return nil
}
