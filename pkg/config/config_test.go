package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name     string        `yaml:"name"`
	Port     int           `yaml:"port"`
	Debounce time.Duration `yaml:"debounce"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeFile(t, "name: folio\ndebounce: 250ms\n")
	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "folio" || cfg.Port != 8080 || cfg.Debounce != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("FOLIO_TEST_PORT", "9090")
	path := writeFile(t, "port: ${FOLIO_TEST_PORT}\n")
	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
}

func TestLoadValidates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	var cfg sample
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := sample{Port: 1}
	if err := LoadOptional(missing, &cfg); err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if err := LoadOptional("", &cfg); err != nil {
		t.Fatalf("empty name should fall back to defaults: %v", err)
	}

	var bad sample
	if err := LoadOptional(missing, &bad); err == nil {
		t.Fatal("invalid defaults should still fail validation")
	}

	path := writeFile(t, "port: 7\n")
	if err := LoadOptional(path, &cfg); err != nil || cfg.Port != 7 {
		t.Fatalf("LoadOptional = %v, port %d", err, cfg.Port)
	}
}
