package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWorkerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	content := `
serverAddress: "127.0.0.1:9000"
listenAddress: "0.0.0.0:9100"
workDir: /var/lib/taskgrid/worker
nCpus: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWorkerConfig(path)
	if err != nil {
		t.Fatalf("load worker config: %v", err)
	}
	if cfg.ServerAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected server address %q", cfg.ServerAddress)
	}
	if cfg.NCpus != 4 {
		t.Fatalf("expected 4 cpus, got %d", cfg.NCpus)
	}
}

func TestLoadServerConfigEmptyPath(t *testing.T) {
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddress != "" {
		t.Fatalf("expected zero value config, got %+v", cfg)
	}
}

func TestLoadWorkerConfigMissingFile(t *testing.T) {
	if _, err := LoadWorkerConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error reading a missing config file")
	}
}
