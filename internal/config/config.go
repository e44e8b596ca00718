package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database

	Stripe  Stripe  `envPrefix:"STRIPE_"`
	Webhook Webhook `envPrefix:"STRIPE_"`
	Auth    Auth
}

// SyncConfig is the subset the one-shot catalog sync needs.
type SyncConfig struct {
	Environment Environment
	Log         Log
	Database    Database

	Stripe Stripe `envPrefix:"STRIPE_"`
}

type Stripe struct {
	SecretKey    string `env:"SECRET_KEY,required,notEmpty"`
	FreePriceID  string `env:"FREE_PRICE_ID" envDefault:"price_FREE"`
	SyncPageSize int64  `env:"SYNC_PAGE_SIZE" envDefault:"100"`
	SiteURL      string `env:"SITE_URL" envDefault:"http://localhost:5173"`
}

type Webhook struct {
	Secret    string        `env:"WEBHOOK_SECRET,required,notEmpty"`
	Tolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
}

type Database struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	URL             string        `env:"DATABASE_URL,required"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"50"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Load parses the process environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Stripe.clampPageSize()
	return cfg, nil
}

// LoadSync parses only what the catalog sync uses, so webhook and auth
// secrets need not be set.
func LoadSync() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Stripe.clampPageSize()
	return cfg, nil
}

func (s *Stripe) clampPageSize() {
	if s.SyncPageSize < 1 || s.SyncPageSize > 100 {
		s.SyncPageSize = 100
	}
}
