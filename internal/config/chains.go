package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/layer-3/chainauth/core"
)

const chainsFileName = "chains.yaml"

var chainNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$`)

// ChainsConfig is the root of chains.yaml.
type ChainsConfig struct {
	Chains []ChainConfig `yaml:"chains"`
}

// ChainConfig describes one RPC backed chain.
type ChainConfig struct {
	// Name is the identifier used in URLs, snake_case ("ethereum", "polygon_amoy").
	Name     string              `yaml:"name"`
	Type     core.BlockchainType `yaml:"type"`
	ChainID  string              `yaml:"chain_id"`
	Disabled bool                `yaml:"disabled"`
	// Endpoints are tried in order, the first is the primary. They are
	// overridden by <NAME>_RPC_URLS (comma separated) when set.
	Endpoints []string      `yaml:"endpoints"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RPCEnvName is the variable overriding a chain's endpoints.
func (c ChainConfig) RPCEnvName() string {
	return strings.ToUpper(c.Name) + "_RPC_URLS"
}

// LoadChains reads <configDirPath>/chains.yaml and returns the enabled
// chains. A missing file yields no chains.
func LoadChains(configDirPath string) ([]ChainConfig, error) {
	f, err := os.Open(filepath.Join(configDirPath, chainsFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg ChainsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}

	return cfg.enabled()
}

func (cfg ChainsConfig) enabled() ([]ChainConfig, error) {
	seen := make(map[string]bool)
	var out []ChainConfig
	for _, c := range cfg.Chains {
		if c.Disabled {
			continue
		}
		if !chainNameRegex.MatchString(c.Name) {
			return nil, fmt.Errorf("invalid chain name '%s', should match snake_case format", c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate chain '%s'", c.Name)
		}
		seen[c.Name] = true

		t, err := core.ParseBlockchainType(string(c.Type))
		if err != nil {
			return nil, fmt.Errorf("chain '%s': %w", c.Name, err)
		}
		c.Type = t

		if env := os.Getenv(c.RPCEnvName()); env != "" {
			c.Endpoints = splitList(env)
		}
		if len(c.Endpoints) == 0 {
			return nil, fmt.Errorf("chain '%s' has no endpoints, set %s", c.Name, c.RPCEnvName())
		}
		out = append(out, c)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
