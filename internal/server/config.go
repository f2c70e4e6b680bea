package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
	Feed   *FeedConfig    `hcl:"feed,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	Port           int    `hcl:"port,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	MaxConnections int    `hcl:"max_connections,optional"`
	MaxSpectators  int    `hcl:"max_spectators,optional"`
	MaxTables      int    `hcl:"max_tables,optional"`
}

// TableConfig defines one table to create at startup.
type TableConfig struct {
	Name           string `hcl:"name,label"`
	MaxPlayers     int    `hcl:"max_players,optional"`
	Ranked         bool   `hcl:"ranked,optional"`
	SmallBlind     int    `hcl:"small_blind,optional"`
	BigBlind       int    `hcl:"big_blind,optional"`
	StartingChips  int    `hcl:"starting_chips,optional"`
	TurnTimeoutSec int    `hcl:"turn_timeout_sec,optional"`
	BuyInMin       int    `hcl:"buy_in_min,optional"` // ranked only
	BuyInMax       int    `hcl:"buy_in_max,optional"` // ranked only
}

// FeedConfig points at the external chip bank. Ranked tables cannot be
// configured without it.
type FeedConfig struct {
	URL    string `hcl:"url"`
	Secret string `hcl:"secret,optional"`
}

// DefaultConfig returns the configuration used when no file is present:
// one free table, no ranked play.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:        "localhost",
			Port:           8080,
			LogLevel:       "info",
			MaxConnections: 500,
			MaxSpectators:  200,
			MaxTables:      10,
		},
		Tables: []TableConfig{
			{
				Name:          "main",
				MaxPlayers:    6,
				StartingChips: 500,
			},
		},
	}
}

// Load reads configuration from an HCL file, falling back to defaults
// when the file does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Server.MaxConnections == 0 {
		config.Server.MaxConnections = 500
	}
	if config.Server.MaxSpectators == 0 {
		config.Server.MaxSpectators = 200
	}
	if config.Server.MaxTables == 0 {
		config.Server.MaxTables = 10
	}

	for i := range config.Tables {
		tc := &config.Tables[i]
		if tc.MaxPlayers == 0 {
			tc.MaxPlayers = 6
		}
		if !tc.Ranked && tc.StartingChips == 0 {
			tc.StartingChips = 500
		}
		if tc.TurnTimeoutSec == 0 {
			tc.TurnTimeoutSec = 45
		}
		if tc.Ranked {
			if tc.BuyInMin == 0 {
				tc.BuyInMin = tc.BigBlind * 20
			}
			if tc.BuyInMax == 0 {
				tc.BuyInMax = tc.BigBlind * 200
			}
		}
	}

	return &config, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}
	if len(c.Tables) > c.Server.MaxTables {
		return fmt.Errorf("%d tables configured, limit is %d", len(c.Tables), c.Server.MaxTables)
	}

	seen := make(map[string]bool)
	for _, tc := range c.Tables {
		if !tableIDPattern.MatchString(tc.Name) {
			return fmt.Errorf("table %q: name must match %s", tc.Name, tableIDPattern)
		}
		if seen[tc.Name] {
			return fmt.Errorf("table %q: duplicate name", tc.Name)
		}
		seen[tc.Name] = true
		if tc.MaxPlayers < 2 || tc.MaxPlayers > 10 {
			return fmt.Errorf("table %q: max players must be between 2 and 10", tc.Name)
		}
		if tc.Ranked {
			if c.Feed == nil {
				return fmt.Errorf("table %q: ranked tables require a feed block", tc.Name)
			}
			if tc.SmallBlind <= 0 || tc.BigBlind <= tc.SmallBlind {
				return fmt.Errorf("table %q: ranked tables need explicit blinds", tc.Name)
			}
			if tc.BuyInMin >= tc.BuyInMax {
				return fmt.Errorf("table %q: buy-in minimum must be less than maximum", tc.Name)
			}
		}
	}
	if c.Feed != nil && c.Feed.URL == "" {
		return fmt.Errorf("feed block requires a url")
	}
	return nil
}

// ListenAddress returns the host:port to bind.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TurnTimeout converts a table's configured timeout.
func (tc *TableConfig) TurnTimeout() time.Duration {
	return time.Duration(tc.TurnTimeoutSec) * time.Second
}
