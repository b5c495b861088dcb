package binary

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// Locate finds a working ffmpeg. In order: the configured override path,
// the cached path, the bundled install, then the system search path. The
// first hit becomes the cached path. ErrNotFound means nothing worked.
func (m *Manager) Locate(ctx context.Context) (string, error) {
	path, _, err := m.locate(ctx)
	return path, err
}

// locate also returns the version when the winning candidate was probed.
func (m *Manager) locate(ctx context.Context) (string, string, error) {
	if override := m.settings.String(SettingOverridePath, ""); override != "" {
		if version, ok := m.accept(ctx, override); ok {
			m.setCachedPath(override)
			return override, version, nil
		}
		m.log.Warn("configured ffmpeg path is not usable", zap.String("path", override))
	}

	if cached := m.CachedPath(); cached != "" {
		if _, err := os.Stat(cached); err == nil {
			return cached, "", nil
		}
	}

	exe := m.executableName()
	bundled := filepath.Join(m.InstallDir(), exe)
	if fileExists(bundled) {
		if version, ok := m.accept(ctx, bundled); ok {
			m.setCachedPath(bundled)
			return bundled, version, nil
		}
	}

	if path, version, ok := m.searchPath(ctx, exe); ok {
		m.setCachedPath(path)
		return path, version, nil
	}

	return "", "", ErrNotFound
}

// searchPath asks the system resolver for exe. The name is passed as a
// positional argument, never spliced into the shell script.
func (m *Manager) searchPath(ctx context.Context, exe string) (string, string, bool) {
	name, args := "sh", []string{"-c", `command -v "$1"`, "sh", exe}
	if m.info.IsWindows() {
		name, args = "where", []string{exe}
	}

	out, err := m.runner.Run(ctx, name, args, nil)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", "", false
		}
		// The resolver itself could not run; try the bare name.
		m.log.Debug("path resolver unavailable", zap.String("resolver", name), zap.Error(err))
		if version, ok := m.accept(ctx, exe); ok {
			return exe, version, true
		}
		return "", "", false
	}

	path := firstLine(out)
	if path == "" {
		return "", "", false
	}
	if version, ok := m.accept(ctx, path); ok {
		return path, version, true
	}
	return "", "", false
}

// accept probes path and applies the minimum version setting.
func (m *Manager) accept(ctx context.Context, path string) (string, bool) {
	version, err := m.prober.Probe(ctx, path)
	if err != nil {
		m.log.Debug("candidate rejected", zap.String("path", path), zap.Error(err))
		return "", false
	}
	if !m.meetsMinimum(version) {
		m.log.Info("ffmpeg too old",
			zap.String("path", path),
			zap.String("version", version),
			zap.String("minimum", m.settings.String(SettingMinimumVersion, "")))
		return "", false
	}
	return version, true
}

// meetsMinimum compares release numbers only. Versions that do not parse
// (git builds, "unknown") are accepted.
func (m *Manager) meetsMinimum(version string) bool {
	minimum := m.settings.String(SettingMinimumVersion, "")
	if minimum == "" {
		return true
	}
	want, err := semver.NewVersion(minimum)
	if err != nil {
		m.log.Warn("invalid minimum version setting", zap.String("minimum", minimum), zap.Error(err))
		return true
	}
	got, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	core, err := got.SetPrerelease("")
	if err != nil {
		return true
	}
	return !core.LessThan(want)
}
