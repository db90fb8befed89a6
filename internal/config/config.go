package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Sync     SyncConfig
	Secrets  SecretsConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT" env-default:"8080"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`
}

// RedisConfig is optional; an empty host falls back to in-process run leases.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD"`
}

type AuthConfig struct {
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTIssuer      string        `env:"JWT_ISSUER"`
	JWTAudience    string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TTL"`
}

// ProviderConfig holds the application-wide OAuth client and call-log paging settings.
type ProviderConfig struct {
	BaseURL      string        `env:"PROVIDER_BASE_URL"`
	ClientID     string        `env:"PROVIDER_CLIENT_ID"`
	ClientSecret string        `env:"PROVIDER_CLIENT_SECRET"`
	PageSize     int           `env:"PROVIDER_PAGE_SIZE" env-default:"100"`
	PageDelay    time.Duration `env:"PROVIDER_PAGE_DELAY" env-default:"200ms"`
	HTTPTimeout  time.Duration `env:"PROVIDER_HTTP_TIMEOUT" env-default:"30s"`
}

type SyncConfig struct {
	// Schedule is a 5-field cron expression; empty disables the in-process scheduler.
	Schedule        string        `env:"SYNC_SCHEDULE"`
	Deadline        time.Duration `env:"SYNC_DEADLINE" env-default:"10m"`
	BootstrapWindow time.Duration `env:"SYNC_BOOTSTRAP_WINDOW" env-default:"24h"`
	RefreshSkew     time.Duration `env:"SYNC_REFRESH_SKEW" env-default:"5m"`
	Timezone        string        `env:"SYNC_TIMEZONE" env-default:"UTC"`
	LeaseTTL        time.Duration `env:"SYNC_LEASE_TTL" env-default:"15m"`
}

type SecretsConfig struct {
	// TokenEncryptionKey is base64; empty stores provider tokens in the clear (not allowed in production).
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
}

func Load() (Config, error) {
	var c Config
	if err := cleanenv.ReadEnv(&c); err != nil {
		return Config{}, fmt.Errorf("config: read env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadAuth reads only the token settings, for tools that mint tokens without running the service.
func LoadAuth() (AuthConfig, error) {
	var a AuthConfig
	if err := cleanenv.ReadEnv(&a); err != nil {
		return AuthConfig{}, fmt.Errorf("config: read env: %w", err)
	}
	if a.JWTSecret == "" {
		return AuthConfig{}, errors.New("JWT_SECRET is required")
	}
	return a, nil
}

// Validate checks required values and fills env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	c.App.Env = strings.TrimSpace(c.App.Env)
	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived operator tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if u, err := url.Parse(c.Provider.BaseURL); c.Provider.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PROVIDER_BASE_URL must be an absolute URL, got %q", c.Provider.BaseURL))
	}
	if c.Provider.ClientID == "" {
		errs = append(errs, errors.New("PROVIDER_CLIENT_ID is required"))
	}
	if c.Provider.ClientSecret == "" {
		errs = append(errs, errors.New("PROVIDER_CLIENT_SECRET is required"))
	}
	if c.Provider.PageSize <= 0 || c.Provider.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("PROVIDER_PAGE_SIZE must be between 1 and 1000, got %d", c.Provider.PageSize))
	}
	if c.Provider.PageDelay < 0 {
		errs = append(errs, errors.New("PROVIDER_PAGE_DELAY must not be negative"))
	}

	if c.Sync.Schedule != "" {
		if _, err := gocron.NewScheduler(time.UTC).Cron(c.Sync.Schedule).Do(func() {}); err != nil {
			errs = append(errs, fmt.Errorf("SYNC_SCHEDULE is not a valid cron expression: %w", err))
		}
	}
	if c.Sync.Deadline <= 0 {
		errs = append(errs, errors.New("SYNC_DEADLINE must be positive"))
	}
	if c.Sync.LeaseTTL < c.Sync.Deadline {
		// A lease shorter than a run would let a second run start on the same integration.
		c.Sync.LeaseTTL = c.Sync.Deadline + time.Minute
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SYNC_TIMEZONE is not a valid IANA zone: %q", c.Sync.Timezone))
	}

	if c.IsProduction() && c.Secrets.TokenEncryptionKey == "" {
		errs = append(errs, errors.New("TOKEN_ENCRYPTION_KEY is required in production"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// RedisEnabled reports whether run leases go through Redis.
func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Location is the zone that defines "today" for the rollup. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
