// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "MARKETPLACE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the configuration shared by the bank, house, and agent
// binaries. Each binary reads its own section plus Transport.
type Config struct {
	Environment Environment `yaml:"environment"`

	Bank      BankConfig      `yaml:"bank"`
	House     HouseConfig     `yaml:"house"`
	Agent     AgentConfig     `yaml:"agent"`
	Transport TransportConfig `yaml:"transport"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Bank      *BankConfig      `yaml:"bank,omitempty"`
	House     *HouseConfig     `yaml:"house,omitempty"`
	Agent     *AgentConfig     `yaml:"agent,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
}

// BankConfig configures market-bank.
type BankConfig struct {
	// Listen is the address the bank accepts connections on.
	// Default: :8080
	Listen string `yaml:"listen"`
}

// HouseConfig configures market-house.
type HouseConfig struct {
	// Listen is the address the house accepts agent connections on.
	// Default: :8081
	Listen string `yaml:"listen"`

	// Advertise is the host announced to the bank. Agents dial
	// Advertise plus the listening port.
	// Default: localhost
	Advertise string `yaml:"advertise"`

	// BankAddress is the bank's host:port.
	// Default: localhost:8080
	BankAddress string `yaml:"bank_address"`

	// WaitTime is how long each item stays open once listed.
	// Default: 30s
	WaitTime string `yaml:"wait_time"`

	// MaxLive is the number of items open at once.
	// Default: 3
	MaxLive int `yaml:"max_live"`

	// Catalog is the item file (text, or .json/.jsonc).
	// Default: items.txt
	Catalog string `yaml:"catalog"`
}

// AgentConfig configures market-agent.
type AgentConfig struct {
	// BankAddress is the bank's host:port.
	// Default: localhost:8080
	BankAddress string `yaml:"bank_address"`

	// InitialDeposit is deposited into the agent's new account.
	// Default: 0
	InitialDeposit string `yaml:"initial_deposit"`

	// ConnectTimeout bounds connecting to one auction house.
	// Default: 10s
	ConnectTimeout string `yaml:"connect_timeout"`
}

// TransportConfig configures every connection.
type TransportConfig struct {
	// Compression is none, lz4, or zstd.
	// Default: none (development), zstd (production)
	Compression string `yaml:"compression"`

	// CompressThreshold is the smallest frame that is compressed.
	// Default: 1024
	CompressThreshold int `yaml:"compress_threshold"`

	// CallTimeout bounds each request. 0s waits indefinitely.
	// Default: 0s (development), 30s (production)
	CallTimeout string `yaml:"call_timeout"`

	// RetryDelay is the wait between failed connect attempts.
	// Default: 1s
	RetryDelay string `yaml:"retry_delay"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Bank: BankConfig{
			Listen: ":8080",
		},
		House: HouseConfig{
			Listen:      ":8081",
			Advertise:   "localhost",
			BankAddress: "localhost:8080",
			WaitTime:    "30s",
			MaxLive:     3,
			Catalog:     "items.txt",
		},
		Agent: AgentConfig{
			BankAddress:    "localhost:8080",
			InitialDeposit: "0",
			ConnectTimeout: "10s",
		},
		Transport: TransportConfig{
			Compression:       "none",
			CompressThreshold: 1024,
			CallTimeout:       "0s",
			RetryDelay:        "1s",
		},
	}
}

// Resolve loads the file at path when it is set, else the file named
// by MARKETPLACE_CONFIG, else returns Default.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// Load loads configuration from the file named by MARKETPLACE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your marketplace.yaml, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, on top of
// Default, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Transport: &TransportConfig{CallTimeout: "30s", Compression: "zstd"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Bank != nil && overrides.Bank.Listen != "" {
		c.Bank.Listen = overrides.Bank.Listen
	}

	if house := overrides.House; house != nil {
		override(&c.House.Listen, house.Listen)
		override(&c.House.Advertise, house.Advertise)
		override(&c.House.BankAddress, house.BankAddress)
		override(&c.House.WaitTime, house.WaitTime)
		override(&c.House.Catalog, house.Catalog)
		if house.MaxLive != 0 {
			c.House.MaxLive = house.MaxLive
		}
	}

	if agent := overrides.Agent; agent != nil {
		override(&c.Agent.BankAddress, agent.BankAddress)
		override(&c.Agent.InitialDeposit, agent.InitialDeposit)
		override(&c.Agent.ConnectTimeout, agent.ConnectTimeout)
	}

	if transport := overrides.Transport; transport != nil {
		override(&c.Transport.Compression, transport.Compression)
		override(&c.Transport.CallTimeout, transport.CallTimeout)
		override(&c.Transport.RetryDelay, transport.RetryDelay)
		if transport.CompressThreshold != 0 {
			c.Transport.CompressThreshold = transport.CompressThreshold
		}
	}
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.House.Catalog = expandVars(c.House.Catalog, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Bank.Listen == "" {
		errs = append(errs, errors.New("bank.listen is required"))
	}
	if c.House.Listen == "" {
		errs = append(errs, errors.New("house.listen is required"))
	}
	if c.House.BankAddress == "" {
		errs = append(errs, errors.New("house.bank_address is required"))
	}
	if c.Agent.BankAddress == "" {
		errs = append(errs, errors.New("agent.bank_address is required"))
	}
	if c.House.MaxLive < 1 {
		errs = append(errs, fmt.Errorf("house.max_live must be at least 1, got %d", c.House.MaxLive))
	}

	durations := []struct {
		name     string
		value    string
		positive bool
	}{
		{"house.wait_time", c.House.WaitTime, true},
		{"agent.connect_timeout", c.Agent.ConnectTimeout, true},
		{"transport.call_timeout", c.Transport.CallTimeout, false},
		{"transport.retry_delay", c.Transport.RetryDelay, true},
	}
	for _, entry := range durations {
		duration, err := time.ParseDuration(entry.value)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		case duration < 0 || (entry.positive && duration == 0):
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", entry.name, entry.value))
		}
	}

	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.Transport.Compression) {
		errs = append(errs, fmt.Errorf("transport.compression must be one of: %v", compressions))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// WaitDuration returns house.wait_time as a duration. Call after
// Validate.
func (h HouseConfig) WaitDuration() time.Duration {
	return mustDuration(h.WaitTime)
}

// ConnectDuration returns agent.connect_timeout as a duration.
func (a AgentConfig) ConnectDuration() time.Duration {
	return mustDuration(a.ConnectTimeout)
}

// CallDuration returns transport.call_timeout as a duration.
func (t TransportConfig) CallDuration() time.Duration {
	return mustDuration(t.CallTimeout)
}

// RetryDuration returns transport.retry_delay as a duration.
func (t TransportConfig) RetryDuration() time.Duration {
	return mustDuration(t.RetryDelay)
}

// mustDuration parses a duration that Validate has already accepted.
// Unparseable values yield zero.
func mustDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}
