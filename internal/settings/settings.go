// Package settings loads ffdep configuration and exposes the settings and
// storage surfaces the acquisition engine consumes.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/logger"
)

// Keys read by the engine and the CLI.
const (
	KeyOverridePath    = "ffmpeg.path"
	KeyAutoInstall     = "ffmpeg.autoInstall"
	KeyMinimumVersion  = "ffmpeg.minimumVersion"
	KeyStoragePath     = "storage.path"
	KeyExtractMode     = "extract.mode"
	KeyDownloadRetries = "download.retries"
	KeyDownloadTimeout = "download.timeout"
	KeyKeyring         = "verify.keyring"
	KeyCatalogOverride = "catalog.overrides"
	KeyMetricsTextfile = "metrics.textfile"
	KeyLogLevel        = "logging.level"
)

// Extraction modes.
const (
	ExtractModeSystem = "system"
	ExtractModeNative = "native"
)

// Config is the typed view of the loaded settings.
type Config struct {
	FFmpeg   FFmpegConfig         `mapstructure:"ffmpeg"`
	Storage  StorageConfig        `mapstructure:"storage"`
	Extract  ExtractConfig        `mapstructure:"extract"`
	Download DownloadConfig       `mapstructure:"download"`
	Verify   VerifyConfig         `mapstructure:"verify"`
	Catalog  CatalogConfig        `mapstructure:"catalog"`
	Metrics  MetricsConfig        `mapstructure:"metrics"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
}

type FFmpegConfig struct {
	Path           string `mapstructure:"path"`
	AutoInstall    bool   `mapstructure:"autoInstall"`
	MinimumVersion string `mapstructure:"minimumVersion"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type ExtractConfig struct {
	Mode string `mapstructure:"mode"`
}

type DownloadConfig struct {
	Retries int `mapstructure:"retries"`
	Timeout int `mapstructure:"timeout"` // seconds
}

// TimeoutDuration returns the per-request download timeout.
func (d DownloadConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

type VerifyConfig struct {
	Keyring string `mapstructure:"keyring"`
}

type CatalogConfig struct {
	Overrides string `mapstructure:"overrides"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Settings wraps the viper instance so the engine can read keys lazily.
type Settings struct {
	v   *viper.Viper
	cfg Config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyOverridePath, "")
	v.SetDefault(KeyAutoInstall, false)
	v.SetDefault(KeyMinimumVersion, "")

	v.SetDefault(KeyStoragePath, defaultStoragePath())

	v.SetDefault(KeyExtractMode, ExtractModeSystem)

	v.SetDefault(KeyDownloadRetries, 3)
	v.SetDefault(KeyDownloadTimeout, 300)

	v.SetDefault(KeyKeyring, "")
	v.SetDefault(KeyCatalogOverride, "")
	v.SetDefault(KeyMetricsTextfile, "")

	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stderr")
}

// defaultStoragePath is the per-user app directory, or empty when the OS
// does not report one (the engine then falls back to the temp dir).
func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ffdep")
}

// Load reads configuration from defaults, environment and config file.
func Load() (*Settings, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the given directory or the default locations.
// Environment variables use the FFDEP_ prefix, e.g. FFDEP_FFMPEG_PATH.
func LoadWithPath(configPath string) (*Settings, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FFDEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not split camelCase keys.
	_ = v.BindEnv(KeyAutoInstall, "FFDEP_FFMPEG_AUTO_INSTALL")
	_ = v.BindEnv(KeyMinimumVersion, "FFDEP_FFMPEG_MINIMUM_VERSION")
	_ = v.BindEnv("logging.outputPath", "FFDEP_LOGGING_OUTPUT_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if dir := defaultStoragePath(); dir != "" {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &Settings{v: v, cfg: cfg}, nil
}

func validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.Extract.Mode) {
	case ExtractModeSystem, ExtractModeNative:
	default:
		errs = append(errs, "extract.mode must be one of: system, native")
	}

	if cfg.Download.Retries < 0 {
		errs = append(errs, "download.retries must not be negative")
	}
	if cfg.Download.Timeout <= 0 {
		errs = append(errs, "download.timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// Config returns the typed settings snapshot taken at load time.
func (s *Settings) Config() Config {
	return s.cfg
}

// Set overrides key for the lifetime of this process and refreshes the typed
// snapshot. A value that fails validation is rolled back.
func (s *Settings) Set(key string, value any) error {
	prev := s.v.Get(key)
	s.v.Set(key, value)

	var cfg Config
	err := s.v.Unmarshal(&cfg)
	if err == nil {
		err = validate(&cfg)
	}
	if err != nil {
		s.v.Set(key, prev)
		return fmt.Errorf("set %s: %w", key, err)
	}

	s.cfg = cfg
	return nil
}

// String returns the live value of key, or def when unset or empty.
func (s *Settings) String(key, def string) string {
	if !s.v.IsSet(key) {
		return def
	}
	if val := s.v.GetString(key); val != "" {
		return val
	}
	return def
}

// Bool returns the live value of key, or def when unset.
func (s *Settings) Bool(key string, def bool) bool {
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetBool(key)
}

// PersistentStoragePath returns the app-owned storage root.
func (s *Settings) PersistentStoragePath() (string, error) {
	dir := s.String(KeyStoragePath, "")
	if dir == "" {
		return "", fmt.Errorf("storage path not configured")
	}
	return dir, nil
}
