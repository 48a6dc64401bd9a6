// CLAUDE:SUMMARY Exporter configuration (listen address, database, output directory, file name, default mode) and YAML loader.
package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/tabxport/horosafe"
	"github.com/hazyhaar/tabxport/shield"
	"github.com/hazyhaar/tabxport/tabular"
)

// Config holds the exporter configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	DBPath      string `yaml:"db_path"`
	OutputDir   string `yaml:"output_dir"`
	FileName    string `yaml:"file_name"`
	DefaultMode string `yaml:"default_mode"`
	// MaxConns caps concurrent HTTP connections.
	MaxConns int `yaml:"max_conns"`
	// AdminTokenHash is the bcrypt hash of the token guarding /admin.
	// Empty disables the admin routes.
	AdminTokenHash string `yaml:"admin_token_hash"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8087"
	}
	if c.DBPath == "" {
		c.DBPath = "tabxport.db"
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.FileName == "" {
		c.FileName = tabular.DefaultFileName
	}
	if c.DefaultMode == "" {
		c.DefaultMode = string(tabular.ModeCombined)
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate fills defaults and checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	c.defaults()
	if _, err := tabular.ParseMode(c.DefaultMode); err != nil {
		return fmt.Errorf("exporter: default_mode: %w", err)
	}
	if err := horosafe.FileName(c.FileName); err != nil {
		return fmt.Errorf("exporter: file_name %q: %w", c.FileName, err)
	}
	if !strings.EqualFold(filepath.Ext(c.FileName), ".xlsx") {
		return fmt.Errorf("exporter: file_name %q must end in .xlsx", c.FileName)
	}
	if c.AdminTokenHash != "" {
		if err := shield.CheckTokenHash(c.AdminTokenHash); err != nil {
			return fmt.Errorf("exporter: admin_token_hash: %w", err)
		}
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("exporter: parse %s: %w", path, err)
	}
	return cfg, nil
}
