package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the service. Every field can be set from the environment.
type Config struct {
	ListenAddr string `env:"KEYGATE_LISTEN_ADDR" envDefault:":9000"`

	// RedisURL switches the stores and event publisher to Redis. Empty means
	// single-instance in-memory stores.
	RedisURL string `env:"KEYGATE_REDIS_URL"`

	RPID   string `env:"KEYGATE_RP_ID"     envDefault:"localhost"`
	Origin string `env:"KEYGATE_RP_ORIGIN" envDefault:"http://localhost:9000"`

	ChallengeTTL time.Duration `env:"KEYGATE_CHALLENGE_TTL" envDefault:"60s"`
	AccessTTL    time.Duration `env:"KEYGATE_ACCESS_TTL"    envDefault:"15m"`
	RefreshTTL   time.Duration `env:"KEYGATE_REFRESH_TTL"   envDefault:"168h"`

	// SigningKeyPEM is an EC private key in PEM form. Empty generates an
	// ephemeral key, which invalidates all tokens on restart.
	SigningKeyPEM string `env:"KEYGATE_SIGNING_KEY"`

	// Optional account seeded at startup for the password/PIN fallback.
	SeedUserID   string `env:"KEYGATE_SEED_USER"`
	SeedPassword string `env:"KEYGATE_SEED_PASSWORD"`
	SeedPIN      string `env:"KEYGATE_SEED_PIN"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// SigningKey returns the configured token signing key, or a fresh ephemeral
// one when none is configured.
func (c Config) SigningKey() (*ecdsa.PrivateKey, error) {
	if c.SigningKeyPEM == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	block, _ := pem.Decode([]byte(c.SigningKeyPEM))
	if block == nil {
		return nil, errors.New("signing key is not valid PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}
