// Package testutil provides utilities for testing ffdep in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Root    string
	Config  string // XDG_CONFIG_HOME
	Storage string // FFDEP_STORAGE_PATH
}

// SetupTestEnv creates isolated test directories for each test.
// This ensures ffdep tests never interfere with:
// - an ffmpeg the developer installed
// - the user's actual ffdep configuration
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	// Create temp directory (auto-cleaned by testing framework)
	tmpDir := t.TempDir()
	env := Env{
		Root:    tmpDir,
		Config:  filepath.Join(tmpDir, "config"),
		Storage: filepath.Join(tmpDir, "storage"),
	}

	t.Setenv("XDG_CONFIG_HOME", env.Config)
	t.Setenv("FFDEP_STORAGE_PATH", env.Storage)

	// Overrides from the developer's shell must not leak in
	for _, key := range []string{
		"FFDEP_FFMPEG_PATH",
		"FFDEP_FFMPEG_AUTO_INSTALL",
		"FFDEP_FFMPEG_MINIMUM_VERSION",
		"FFDEP_EXTRACT_MODE",
		"FFDEP_VERIFY_KEYRING",
		"FFDEP_CATALOG_OVERRIDES",
		"FFDEP_METRICS_TEXTFILE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	for _, dir := range []string{env.Config, env.Storage} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}
