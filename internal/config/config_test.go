package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facedetector.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:5000" {
		t.Errorf("Expected default addr 0.0.0.0:5000, got %s", cfg.Server.Addr)
	}
	if cfg.Server.Backlog != 5 {
		t.Errorf("Expected default backlog 5, got %d", cfg.Server.Backlog)
	}
	if cfg.Detection.CascadeDir != "/usr/share/opencv4/haarcascades" {
		t.Errorf("Expected the OpenCV install directory as cascade dir, got %s", cfg.Detection.CascadeDir)
	}
	if cfg.Detection.OverlapThreshold != 0.35 {
		t.Errorf("Expected default overlap threshold 0.35, got %v", cfg.Detection.OverlapThreshold)
	}
	p := cfg.Detection.Params()
	if p.ScaleFactor != 1.1 || p.MinNeighbors != 15 || p.MinSize.X != 150 || p.MinSize.Y != 150 {
		t.Errorf("Unexpected default params: %+v", p)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:6000
  workers: 3
  read_timeout: 5s
  write_timeout: 1m30s
detection:
  cascade_dir: /opt/cascades
storage:
  namespace: shared
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:6000" || cfg.Server.Workers != 3 {
		t.Errorf("Server section not applied: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Expected read timeout 5s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Errorf("Expected write timeout 90s, got %v", cfg.Server.WriteTimeout)
	}
	// Untouched keys keep their defaults
	if cfg.Server.Backlog != 5 {
		t.Errorf("Expected backlog to stay 5, got %d", cfg.Server.Backlog)
	}
	if cfg.Detection.ScaleFactor != 1.1 {
		t.Errorf("Expected scale factor to stay 1.1, got %v", cfg.Detection.ScaleFactor)
	}
	if cfg.Storage.Namespace != "shared" {
		t.Errorf("Expected shared namespace, got %q", cfg.Storage.Namespace)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"Bad YAML", "server: [", "failed to parse config"},
		{"Zero workers", "server:\n  workers: 0\n", "server.workers"},
		{"Scale factor too small", "detection:\n  scale_factor: 1.0\n", "detection.scale_factor"},
		{"Threshold out of range", "detection:\n  overlap_threshold: 1.5\n", "detection.overlap_threshold"},
		{"Unknown namespace", "storage:\n  namespace: global\n", "storage.namespace"},
		{"Unknown log format", "log:\n  format: xml\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Storage.Root = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation to fail")
	}
	for _, want := range []string{"server.addr", "storage.root"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}
