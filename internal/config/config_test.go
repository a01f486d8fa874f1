package config

import (
	"os"
	"testing"

	"github.com/mixer/interactive-go/internal/constants"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BootstrapURL != constants.DefaultBootstrapURL {
		t.Errorf("BootstrapURL = %q, want %q", cfg.BootstrapURL, constants.DefaultBootstrapURL)
	}
	if cfg.Handshake.MaxRetries != constants.HandshakeMaxRetries {
		t.Errorf("Handshake.MaxRetries = %d, want %d", cfg.Handshake.MaxRetries, constants.HandshakeMaxRetries)
	}
	if cfg.Pipeline.ChunkSize != constants.PipelineChunkSize {
		t.Errorf("Pipeline.ChunkSize = %d, want %d", cfg.Pipeline.ChunkSize, constants.PipelineChunkSize)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err != nil {
		t.Fatalf("Load with missing file should fall back to defaults, got error: %v", err)
	}
}

func TestEnvOverrideWinsOverDefault(t *testing.T) {
	t.Setenv("INTERACTIVE_BOOTSTRAP_URL", "https://example.test/hosts")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BootstrapURL != "https://example.test/hosts" {
		t.Errorf("BootstrapURL = %q, want env override", cfg.BootstrapURL)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	contents := "bootstrap_url: https://file.test/hosts\npipeline:\n  chunk_size: 25\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BootstrapURL != "https://file.test/hosts" {
		t.Errorf("BootstrapURL = %q, want file value", cfg.BootstrapURL)
	}
	if cfg.Pipeline.ChunkSize != 25 {
		t.Errorf("Pipeline.ChunkSize = %d, want 25", cfg.Pipeline.ChunkSize)
	}
}
