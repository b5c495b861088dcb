package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPath_Defaults(t *testing.T) {
	isolate(t)

	s, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	cfg := s.Config()
	assert.Equal(t, ExtractModeSystem, cfg.Extract.Mode)
	assert.Equal(t, 3, cfg.Download.Retries)
	assert.Equal(t, 300*time.Second, cfg.Download.TimeoutDuration())
	assert.False(t, cfg.FFmpeg.AutoInstall)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.Equal(t, "fallback", s.String(KeyOverridePath, "fallback"))
	assert.False(t, s.Bool(KeyAutoInstall, false))
}

func TestLoadWithPath_ConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	storage := filepath.Join(dir, "storage")

	yaml := "ffmpeg:\n" +
		"  path: /opt/ffmpeg/bin/ffmpeg\n" +
		"  autoInstall: true\n" +
		"  minimumVersion: \"6.0\"\n" +
		"storage:\n" +
		"  path: " + storage + "\n" +
		"extract:\n" +
		"  mode: native\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	s, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", s.String(KeyOverridePath, ""))
	assert.True(t, s.Bool(KeyAutoInstall, false))
	assert.Equal(t, "6.0", s.Config().FFmpeg.MinimumVersion)
	assert.Equal(t, ExtractModeNative, s.Config().Extract.Mode)

	got, err := s.PersistentStoragePath()
	require.NoError(t, err)
	assert.Equal(t, storage, got)
}

func TestLoadWithPath_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("FFDEP_FFMPEG_PATH", "/usr/local/bin/ffmpeg")
	t.Setenv("FFDEP_FFMPEG_AUTO_INSTALL", "true")
	t.Setenv("FFDEP_STORAGE_PATH", "/var/lib/ffdep")

	s, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/ffmpeg", s.String(KeyOverridePath, ""))
	assert.True(t, s.Bool(KeyAutoInstall, false))

	got, err := s.PersistentStoragePath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ffdep", got)
}

func TestLoadWithPath_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad_extract_mode",
			yaml:    "extract:\n  mode: magic\n",
			wantErr: "extract.mode",
		},
		{
			name:    "negative_retries",
			yaml:    "download:\n  retries: -1\n",
			wantErr: "download.retries",
		},
		{
			name:    "bad_log_level",
			yaml:    "logging:\n  level: loud\n",
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0o644))

			_, err := LoadWithPath(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettings_SetOverridesLiveValue(t *testing.T) {
	isolate(t)

	s, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Set(KeyStoragePath, ""))
	_, err = s.PersistentStoragePath()
	assert.Error(t, err)

	require.NoError(t, s.Set(KeyAutoInstall, true))
	assert.True(t, s.Bool(KeyAutoInstall, false))
	assert.True(t, s.Config().FFmpeg.AutoInstall)
}

func TestSettings_SetLogLevel(t *testing.T) {
	isolate(t)

	s, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "warn", s.Config().Logging.Level)

	require.NoError(t, s.Set(KeyLogLevel, "debug"))
	assert.Equal(t, "debug", s.Config().Logging.Level)

	err = s.Set(KeyLogLevel, "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Equal(t, "debug", s.Config().Logging.Level)
	assert.Equal(t, "debug", s.String(KeyLogLevel, ""))
}

func isolate(t *testing.T) {
	t.Helper()
	// Equivalent of t.Chdir (Go 1.24+) for the Go 1.21 toolchain.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}
