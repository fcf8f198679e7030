package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/newthinker/dzibridge/internal/core"
	"github.com/newthinker/dzibridge/internal/dzi"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Output    OutputConfig    `mapstructure:"output"`
	Converter ConverterConfig `mapstructure:"converter"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

// OutputConfig controls where conversion outputs go and how tiles are cut.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"` // relative to the working directory
	TileSize int    `mapstructure:"tile_size"`
	Overlap  int    `mapstructure:"overlap"`
	Format   string `mapstructure:"format"` // "jpeg" or "png"
	Quality  int    `mapstructure:"quality"`

	// MaxPixels rejects source images whose width x height is larger
	MaxPixels int64 `mapstructure:"max_pixels"`
}

// TileOptions returns the tiling options described by the output section.
func (o OutputConfig) TileOptions() dzi.Options {
	return dzi.Options{
		TileSize:  o.TileSize,
		Overlap:   o.Overlap,
		Format:    o.Format,
		Quality:   o.Quality,
		MaxPixels: o.MaxPixels,
	}
}

// ConverterConfig bounds concurrent tiling.
type ConverterConfig struct {
	Workers int `mapstructure:"workers"`
}

// UploadConfig controls how uploads are staged before conversion.
type UploadConfig struct {
	StagingDir        string   `mapstructure:"staging_dir"` // empty means os.TempDir()
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// PublishConfig holds the optional bundle copy target.
type PublishConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds conversion notification settings.
type NotifyConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.tile_size", d.Output.TileSize)
	v.SetDefault("output.overlap", d.Output.Overlap)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.quality", d.Output.Quality)
	v.SetDefault("output.max_pixels", d.Output.MaxPixels)
	v.SetDefault("converter.workers", d.Converter.Workers)
	v.SetDefault("upload.allowed_extensions", d.Upload.AllowedExtensions)
	v.SetDefault("publish.type", d.Publish.Type)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
			MaxUploadMB: 256,
		},
		Output: OutputConfig{
			Dir:       "dzi_output",
			TileSize:  512,
			Overlap:   1,
			Format:    "jpeg",
			Quality:   75,
			MaxPixels: dzi.DefaultMaxPixels,
		},
		Converter: ConverterConfig{
			Workers: 2,
		},
		Upload: UploadConfig{
			AllowedExtensions: []string{"jpg", "jpeg", "png", "tif", "tiff"},
		},
		Publish: PublishConfig{
			Type: "localfs",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadMB < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_upload_mb cannot be negative, got %d", c.Server.MaxUploadMB))
	}

	if c.Output.Dir == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("output dir required"))
	}
	if c.Output.MaxPixels < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("output max_pixels must be positive, got %d", c.Output.MaxPixels))
	}
	if c.Converter.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("converter workers cannot be negative, got %d", c.Converter.Workers))
	}

	if c.Publish.Enabled {
		switch c.Publish.Type {
		case "localfs":
			if c.Publish.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("publish path required when type is localfs"))
			}
		case "s3":
			if c.Publish.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("s3 bucket required when type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown publish type %q", c.Publish.Type))
		}
	}

	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("webhook url required when webhook is enabled"))
	}

	return nil
}
