// Package config loads the chainauth service configuration from the
// environment, an optional .env file and a chains.yaml file.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/service"
)

const (
	configDirPathEnv     = "CHAINAUTH_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// Config represents the overall application configuration
type Config struct {
	Log   log.Config
	Auth  service.Config
	HTTP  HTTPConfig
	Redis RedisConfig

	// SigningKeyPath points to a PEM encoded P-256 key used for ES256
	// tokens. When empty an ephemeral key is generated at startup.
	SigningKeyPath string `env:"CHAINAUTH_SIGNING_KEY_PATH"`
	// HederaMirrorURL enables Hedera verification through a mirror node.
	HederaMirrorURL string `env:"CHAINAUTH_HEDERA_MIRROR_URL"`
	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool `env:"CHAINAUTH_METRICS_ENABLED" env-default:"true"`

	Chains []ChainConfig
}

type HTTPConfig struct {
	Addr string `env:"CHAINAUTH_HTTP_ADDR" env-default:":9000"`
}

type RedisConfig struct {
	URL    string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	Prefix string `env:"CHAINAUTH_REDIS_PREFIX" env-default:"chainauth:"`
}

// Load builds configuration from environment variables. The config
// directory holds the optional .env and chains.yaml files.
func Load(lg log.Logger) (*Config, error) {
	if lg == nil {
		lg = log.NewNoopLogger()
	}
	lg = lg.WithName("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	// Load .env files
	configDotEnvPath := filepath.Join(configDirPath, ".env")
	if err := godotenv.Load(configDotEnvPath); err != nil {
		lg.Debug(".env file not loaded", "path", configDotEnvPath)
	}

	var conf Config
	if err := cleanenv.ReadEnv(&conf); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	chains, err := LoadChains(configDirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chains: %w", err)
	}
	conf.Chains = chains
	lg.Info("configuration loaded", "domain", conf.Auth.Domain, "chains", len(chains))

	return &conf, nil
}

// SigningKey reads the ES256 key. It returns nil, nil when no path is
// configured.
func (c *Config) SigningKey() (*ecdsa.PrivateKey, error) {
	if c.SigningKeyPath == "" {
		return nil, nil
	}
	pemBytes, err := os.ReadFile(c.SigningKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if key.Curve.Params().Name != "P-256" {
		return nil, errors.New("signing key must be on P-256")
	}
	return key, nil
}
