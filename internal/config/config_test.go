package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.AcceptedMediaType != "text/csv" || cfg.DownloadName != "processed_dataset.csv" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RequestTimeout != 0 {
		t.Fatalf("expected no request timeout by default, got %s", cfg.RequestTimeout)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.EndpointURL != defaultEndpointURL {
		t.Fatalf("expected default endpoint, got %q", cfg.EndpointURL)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadReadsAndNormalizes(t *testing.T) {
	path := writeConfig(t, "port: 9090\nendpoint_url: \" https://clean.example/process \"\nrequest_timeout: 45s\nsession_ttl: 5m\nlog_level: DEBUG\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.EndpointURL != "https://clean.example/process" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.RequestTimeout != 45*time.Second || cfg.SessionTTL != 5*time.Minute {
		t.Fatalf("durations not parsed: %+v", cfg)
	}
	if cfg.AcceptedMediaType != "text/csv" || cfg.DownloadName != "processed_dataset.csv" {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", cfg.Level())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"relative endpoint": "endpoint_url: /process\n",
		"ftp endpoint":      "endpoint_url: ftp://host/process\n",
		"negative timeout":  "request_timeout: -1s\n",
		"bad level":         "log_level: loud\n",
		"bad port":          "port: 70000\n",
		"bad yaml":          "port: [\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
