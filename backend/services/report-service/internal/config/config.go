package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "sessionexport/backend/libs/config"
	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
)

const defaultPort = "3000"

// HTTPConfig configures the inbound server.
type HTTPConfig struct {
	Port                string   `yaml:"port" env:"REPORT_HTTP_PORT"`
	WriteTimeoutSeconds int      `yaml:"writeTimeoutSeconds" env:"REPORT_HTTP_WRITE_TIMEOUT"`
	AllowedOrigins      []string `yaml:"allowedOrigins" env:"REPORT_ALLOWED_ORIGINS"`
}

// UpstreamConfig points at the charging station management API.
type UpstreamConfig struct {
	BaseURL            string `yaml:"baseUrl" env:"ETREL_BASE_URL"`
	Email              string `yaml:"email" env:"ETREL_EMAIL"`
	Password           string `yaml:"password" env:"ETREL_PASSWORD"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify" env:"ETREL_INSECURE_SKIP_VERIFY"`
	TimeoutSeconds     int    `yaml:"timeoutSeconds" env:"ETREL_TIMEOUT"`
}

// Config defines report service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Report   struct {
		UnitPrice decimal.Decimal `yaml:"unitPrice" env:"REPORT_UNIT_PRICE"`
	} `yaml:"report"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"REPORT_JWT_SECRET"`
	} `yaml:"auth"`
	Database struct {
		DSN string `yaml:"dsn" env:"REPORT_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REPORT_REDIS_ADDR"`
		Password string `yaml:"password" env:"REPORT_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REPORT_REDIS_DB"`
	} `yaml:"redis"`
	RateLimit struct {
		Requests      int `yaml:"requests" env:"REPORT_RATE_LIMIT_REQUESTS"`
		WindowSeconds int `yaml:"windowSeconds" env:"REPORT_RATE_LIMIT_WINDOW"`
	} `yaml:"rateLimit"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:                defaultPort,
			WriteTimeoutSeconds: 120,
			AllowedOrigins:      []string{"*"},
		},
		Upstream: UpstreamConfig{
			InsecureSkipVerify: true,
			TimeoutSeconds:     30,
		},
	}
	cfg.Report.UnitPrice = decimal.RequireFromString("0.30")
	cfg.RateLimit.Requests = 10
	cfg.RateLimit.WindowSeconds = 60

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, apperr.Configuration("load", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, apperr.Configuration(err.Error(), nil)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	base := strings.TrimSpace(c.Upstream.BaseURL)
	if base == "" {
		return errors.New("upstream base url required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream base url %q must be an absolute http(s) url", base)
	}
	if c.Report.UnitPrice.IsNegative() {
		return errors.New("report unit price must not be negative")
	}
	if c.RateLimit.Requests < 0 {
		return errors.New("rate limit requests must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// WriteTimeout bounds how long one export response may take.
func (c *Config) WriteTimeout() time.Duration {
	if c.HTTP.WriteTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.HTTP.WriteTimeoutSeconds) * time.Second
}

// UpstreamTimeout returns the per-call timeout of the upstream client.
func (c *Config) UpstreamTimeout() time.Duration {
	if c.Upstream.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// RateLimitWindow returns the limiter window.
func (c *Config) RateLimitWindow() time.Duration {
	if c.RateLimit.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// StaticCredentials returns the configured operator login, used when a request carries none.
func (c *Config) StaticCredentials() models.Credentials {
	return models.Credentials{Identifier: c.Upstream.Email, Secret: c.Upstream.Password}
}
