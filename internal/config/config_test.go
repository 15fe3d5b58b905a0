package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	g := cfg.Generate
	if g.ArchiveCount != 50 || g.RecordsPerArchive != 100 {
		t.Errorf("unexpected counts: %+v", g)
	}
	if g.IdentifierLength != 16 || g.ObjectNameLength != 16 || g.Seed != 42 {
		t.Errorf("unexpected generate defaults: %+v", g)
	}
}

func TestResolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/corpus"
	cfg.Storage.Type = StorageLocal
	cfg.Resolve()

	if cfg.Aggregate.OutputDir != "/tmp/corpus" {
		t.Errorf("OutputDir = %q", cfg.Aggregate.OutputDir)
	}
	if cfg.Manifest.Path != filepath.Join("/tmp/corpus", "manifest.db") {
		t.Errorf("Manifest.Path = %q", cfg.Manifest.Path)
	}
	if cfg.Storage.Path != filepath.Join("/tmp/corpus", "published") {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}

	cfg = DefaultConfig()
	cfg.Aggregate.OutputDir = "/elsewhere"
	cfg.Resolve()
	if cfg.Aggregate.OutputDir != "/elsewhere" {
		t.Error("Resolve should keep an explicit output dir")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"negative archives", func(c *Config) { c.Generate.ArchiveCount = -1 }},
		{"negative records", func(c *Config) { c.Generate.RecordsPerArchive = -1 }},
		{"zero id length", func(c *Config) { c.Generate.IdentifierLength = 0 }},
		{"zero name length", func(c *Config) { c.Generate.ObjectNameLength = 0 }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad storage", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if apperrors.GetCode(err) != apperrors.CodeInvalidConfig {
				t.Errorf("expected invalid config error, got %v", err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Generate.ArchiveCount = 0
	cfg.Generate.RecordsPerArchive = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero counts should be valid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	yamlData := "data_dir: /srv/corpus\ngenerate:\n  archive_count: 2\n  records_per_archive: 3\n  seed: 7\naggregate:\n  compress_results: true\n"
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := LoadFromFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFromFile(yaml) failed: %v", err)
	}
	if cfg.DataDir != "/srv/corpus" || cfg.Generate.ArchiveCount != 2 || cfg.Generate.Seed != 7 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Aggregate.CompressResults {
		t.Error("compress_results should be set")
	}
	if cfg.Generate.IdentifierLength != 16 {
		t.Error("unset fields should keep defaults")
	}

	jsonPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(jsonPath, []byte(`{"workers": 3, "storage": {"type": "local"}}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err = LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFromFile(json) failed: %v", err)
	}
	if cfg.Workers != 3 || cfg.Storage.Type != StorageLocal {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "config.toml")); err == nil {
		t.Error("missing file should fail")
	}
	tomlPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(tomlPath, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(tomlPath); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZIPCORPUS_DATA_DIR", "/env/dir")
	t.Setenv("ZIPCORPUS_ARCHIVE_COUNT", "4")
	t.Setenv("ZIPCORPUS_SEED", "-9")
	t.Setenv("ZIPCORPUS_COMPRESS_RESULTS", "1")
	t.Setenv("ZIPCORPUS_MANIFEST_ENABLED", "true")
	t.Setenv("ZIPCORPUS_S3_BUCKET", "bucket")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.DataDir != "/env/dir" || cfg.Generate.ArchiveCount != 4 || cfg.Generate.Seed != -9 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Aggregate.CompressResults || !cfg.Manifest.Enabled || cfg.Storage.S3.Bucket != "bucket" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFromEnv_BadNumber(t *testing.T) {
	t.Setenv("ZIPCORPUS_WORKERS", "many")
	err := LoadFromEnv(DefaultConfig())
	if !errors.Is(err, apperrors.NewValidationError(apperrors.CodeInvalidConfig, "")) {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.Aggregate.OutputDir = filepath.Join(root, "out")
	cfg.Manifest.Enabled = true
	cfg.Manifest.Path = filepath.Join(root, "meta", "manifest.db")
	cfg.Storage.Type = StorageLocal
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Aggregate.OutputDir, filepath.Dir(cfg.Manifest.Path), cfg.Storage.Path} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}
