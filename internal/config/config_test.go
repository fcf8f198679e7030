package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
server:
  host: "127.0.0.1"
  port: 9090

output:
  dir: "tiles"
  tile_size: 256

publish:
  enabled: true
  type: localfs
  path: "/tmp/dzi/bundles"
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Output.TileSize != 256 {
		t.Errorf("expected tile size 256, got %d", cfg.Output.TileSize)
	}
	if cfg.Publish.Type != "localfs" {
		t.Errorf("expected localfs, got %s", cfg.Publish.Type)
	}
	// unset keys keep defaults
	if cfg.Output.Overlap != 1 {
		t.Errorf("expected default overlap 1, got %d", cfg.Output.Overlap)
	}
	if cfg.Output.Format != "jpeg" {
		t.Errorf("expected default format jpeg, got %s", cfg.Output.Format)
	}
	if len(cfg.Upload.AllowedExtensions) != 5 {
		t.Errorf("expected default extensions, got %v", cfg.Upload.AllowedExtensions)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("DZI_TEST_API_KEY", "secret")

	content := []byte(`
server:
  port: 8080
  api_key: "${DZI_TEST_API_KEY}"
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("expected expanded api key, got %q", cfg.Server.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Output.Dir != "dzi_output" {
		t.Errorf("expected default output dir dzi_output, got %s", cfg.Output.Dir)
	}
	if cfg.Output.TileSize != 512 {
		t.Errorf("expected default tile size 512, got %d", cfg.Output.TileSize)
	}
	if cfg.Output.MaxPixels != 100_000_000 {
		t.Errorf("expected default pixel limit 100000000, got %d", cfg.Output.MaxPixels)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_MaxPixels(t *testing.T) {
	content := []byte(`
output:
  max_pixels: 4096
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	opts := cfg.Output.TileOptions()
	if opts.MaxPixels != 4096 {
		t.Errorf("expected max pixels 4096, got %d", opts.MaxPixels)
	}
	if opts.TileSize != 512 || opts.Quality != 75 {
		t.Errorf("expected default tiling, got %+v", opts)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config { return *Defaults() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"invalid port - too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative upload cap", func(c *Config) { c.Server.MaxUploadMB = -1 }, true},
		{"missing output dir", func(c *Config) { c.Output.Dir = "" }, true},
		{"negative workers", func(c *Config) { c.Converter.Workers = -1 }, true},
		{"zero pixel limit", func(c *Config) { c.Output.MaxPixels = 0 }, true},
		{"localfs publish without path", func(c *Config) { c.Publish.Enabled = true }, true},
		{"s3 publish without bucket", func(c *Config) {
			c.Publish.Enabled = true
			c.Publish.Type = "s3"
		}, true},
		{"s3 publish", func(c *Config) {
			c.Publish.Enabled = true
			c.Publish.Type = "s3"
			c.Publish.S3.Bucket = "tiles"
		}, false},
		{"unknown publish type", func(c *Config) {
			c.Publish.Enabled = true
			c.Publish.Type = "ftp"
		}, true},
		{"webhook without url", func(c *Config) { c.Notify.Webhook.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
