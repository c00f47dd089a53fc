package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pizzaz/pizzazd/pkg/ratelimit"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.ManifestPath != DefaultManifestPath {
		t.Errorf("ManifestPath = %q", cfg.ManifestPath)
	}
	if cfg.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty", cfg.RefreshToken)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pizzazd.yaml")
	content := `
port: 9100
manifestPath: /etc/pizzaz/widgets.json
refreshToken: sesame
refreshRateLimit: 5/1m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.ManifestPath != "/etc/pizzaz/widgets.json" {
		t.Errorf("ManifestPath = %q", cfg.ManifestPath)
	}
	if cfg.RefreshToken != "sesame" {
		t.Errorf("RefreshToken = %q", cfg.RefreshToken)
	}

	spec := cfg.RateLimit(nil)
	if spec.Limit != 5 || spec.Window != time.Minute {
		t.Errorf("RateLimit = %+v", spec)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pizzazd.yaml")
	if err := os.WriteFile(path, []byte("port: 9100\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPort, "9200")
	t.Setenv(EnvManifestPath, "/srv/widgets.json")
	t.Setenv(EnvRefreshToken, "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d, want env override", cfg.Port)
	}
	if cfg.ManifestPath != "/srv/widgets.json" {
		t.Errorf("ManifestPath = %q", cfg.ManifestPath)
	}
	if cfg.RefreshToken != "from-env" {
		t.Errorf("RefreshToken = %q", cfg.RefreshToken)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv(EnvPort, "99999")
	if _, err := Load(""); err == nil {
		t.Error("Load accepted out-of-range port")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted missing config file")
	}
}

func TestRateLimitFallback(t *testing.T) {
	cfg := Default()
	cfg.RefreshRateLimit = "not-a-spec"

	spec := cfg.RateLimit(nil)
	if spec != ratelimit.DefaultSpec() {
		t.Errorf("spec = %+v, want default", spec)
	}
}
