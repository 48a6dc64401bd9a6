package exporter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/tabxport/tabular"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8087" || cfg.DBPath != "tabxport.db" || cfg.OutputDir != "." {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.FileName != tabular.DefaultFileName || cfg.DefaultMode != "combined" || cfg.MaxConns != 256 || cfg.Logger == nil {
		t.Errorf("defaults: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"sheets mode", Config{DefaultMode: "sheets"}, true},
		{"custom name", Config{FileName: "report.XLSX"}, true},
		{"unknown mode", Config{DefaultMode: "pivot"}, false},
		{"path in name", Config{FileName: "out/report.xlsx"}, false},
		{"wrong extension", Config{FileName: "report.csv"}, false},
		{"plaintext admin token", Config{AdminTokenHash: "hunter2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}

	cfg := Config{DefaultMode: "pivot"}
	if err := cfg.Validate(); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("unknown mode: got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabxport.yaml")
	data := []byte(`
listen: ":9000"
db_path: /var/lib/tabxport/outputs.db
output_dir: /srv/exports
default_mode: sheets
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" || cfg.DBPath != "/var/lib/tabxport/outputs.db" ||
		cfg.OutputDir != "/srv/exports" || cfg.DefaultMode != "sheets" {
		t.Errorf("loaded: %+v", cfg)
	}
	if cfg.FileName != "" {
		t.Errorf("defaults applied on load: %q", cfg.FileName)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
