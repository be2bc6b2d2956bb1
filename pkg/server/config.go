package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gohall/pkg/protocol"
)

// Config holds server configuration. It is fixed once the server starts.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`     // TCP bind address (e.g. ":34567")
	MaxClients    int           `yaml:"max_clients"`     // simultaneous connections accepted
	GameCadence   int           `yaml:"cadence_minutes"` // minutes between round starts
	RoundDuration int           `yaml:"round_seconds"`   // seconds a round stays open
	TickInterval  time.Duration `yaml:"tick"`            // bounded wait of the main loop
	WriteTimeout  time.Duration `yaml:"write_timeout"`   // per-write deadline for peers
	MaxLineLength int           `yaml:"max_line_length"` // longest accepted command line in bytes
	StoreLocation string        `yaml:"store"`           // SQLite path, redis:// URL or ":memory:"
	MetricsAddr   string        `yaml:"metrics_addr"`    // HTTP bind address for /metrics (empty = disabled)

	// CLI-only actions (run and exit)
	ExportUsers bool `yaml:"-"` // export all users as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":34567",
		MaxClients:    100,
		GameCadence:   1,
		RoundDuration: 40,
		TickInterval:  250 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
		MaxLineLength: protocol.MaxLineLength,
		StoreLocation: "gohall.db",
		MetricsAddr:   ":34568",
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys missing from
// the file keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return errors.New("config: listen address must not be empty")
	case c.MaxClients < 1:
		return fmt.Errorf("config: max clients must be at least 1, got %d", c.MaxClients)
	case c.GameCadence < 1:
		return fmt.Errorf("config: cadence must be at least 1 minute, got %d", c.GameCadence)
	case c.RoundDuration < 1:
		return fmt.Errorf("config: round duration must be at least 1 second, got %d", c.RoundDuration)
	case c.TickInterval <= 0:
		return fmt.Errorf("config: tick interval must be positive, got %s", c.TickInterval)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("config: write timeout must be positive, got %s", c.WriteTimeout)
	case c.MaxLineLength < 16:
		return fmt.Errorf("config: max line length must be at least 16, got %d", c.MaxLineLength)
	case c.StoreLocation == "":
		return errors.New("config: store location must not be empty")
	}
	return nil
}

func (c Config) cadence() time.Duration {
	return time.Duration(c.GameCadence) * time.Minute
}

func (c Config) roundDuration() time.Duration {
	return time.Duration(c.RoundDuration) * time.Second
}
