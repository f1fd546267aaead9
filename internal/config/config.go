package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	RedisURL        string `envconfig:"REDIS_URL"`
	CacheTTLSeconds int    `envconfig:"CACHE_TTL_SECONDS" default:"60"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`

	// Used once to create the first admin when the postgres users table is
	// empty.
	BootstrapAdminUsername string `envconfig:"BOOTSTRAP_ADMIN_USERNAME" default:"admin"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	// ReferenceTimezone decides which calendar day a sale belongs to for
	// same-day edits and cancellations.
	ReferenceTimezone string `envconfig:"REFERENCE_TIMEZONE" default:"America/Sao_Paulo"`

	ServiceName    string `envconfig:"SERVICE_NAME" default:"mercadinho-pos"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"json"`
	LogWarnStack   bool   `envconfig:"LOG_WARN_STACK" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// LoadDotEnv reads .env files into the process environment. A missing file
// is reported but harmless.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.CacheTTLSeconds < 1 {
		cfg.CacheTTLSeconds = 60
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("REFERENCE_TIMEZONE %q: %w", c.ReferenceTimezone, err)
	}
	return loc, nil
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
