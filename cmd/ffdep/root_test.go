package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/binary"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/platform"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/testutil"
)

type staticDetector struct {
	info *platform.Info
}

func (d staticDetector) Detect(ctx context.Context) (*platform.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := *d.info
	return &info, nil
}

// linuxHost pins the platform so the alternate path never runs on a Mac.
var linuxHost = &platform.Info{OS: "linux", Arch: "amd64", ArchRaw: "amd64"}

func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmdWithOptions(&rootOptions{
		in:       strings.NewReader(stdin),
		out:      &out,
		errOut:   &errOut,
		detector: staticDetector{info: linuxHost},
	})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// emptyPath hides any ffmpeg (and sh) on the developer's machine.
func emptyPath(t *testing.T) {
	t.Helper()
	t.Setenv("PATH", t.TempDir())
}

func skipWithoutPOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
}

type ffmpegServer struct {
	*httptest.Server

	mu     sync.Mutex
	agents []string
}

func (s *ffmpegServer) userAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.agents...)
}

// serveFFmpeg publishes a tarball whose ffmpeg prints version, and points
// the linux/amd64 catalog entry at it through an overrides file.
func serveFFmpeg(t *testing.T, env testutil.Env, version string) *ffmpegServer {
	t.Helper()

	archive := filepath.Join(env.Root, "ffmpeg.tar.gz")
	testutil.WriteTarGz(t, archive, []testutil.FixtureFile{
		{Name: "ffmpeg-static/ffmpeg", Body: testutil.FakeFFmpegScript(version), Mode: 0o755},
	})
	server := &ffmpegServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.mu.Lock()
		server.agents = append(server.agents, r.Header.Get("User-Agent"))
		server.mu.Unlock()
		http.ServeFile(w, r, archive)
	}))
	t.Cleanup(server.Close)

	overrides := filepath.Join(env.Config, "catalog.lua")
	lua := fmt.Sprintf(`catalog = {
  [platform.key] = {
    url = %q,
    archive = "ffmpeg-release-amd64-static.tar.gz",
    executable = "ffmpeg",
  },
}
`, server.URL+"/ffmpeg.tar.gz")
	require.NoError(t, os.WriteFile(overrides, []byte(lua), 0o644))

	t.Setenv("FFDEP_CATALOG_OVERRIDES", overrides)
	t.Setenv("FFDEP_EXTRACT_MODE", "native")
	return server
}

func TestCatalogCmd(t *testing.T) {
	testutil.SetupTestEnv(t)

	out, _, err := executeCommand(t, "", "catalog")
	require.NoError(t, err)

	assert.Contains(t, out, "PLATFORM")
	assert.Contains(t, out, "windows/amd64")
	assert.Contains(t, out, "darwin/arm64")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "linux/amd64") {
			assert.True(t, strings.HasPrefix(strings.TrimSpace(line), "*"), "current platform should be marked: %q", line)
		}
		if strings.Contains(line, "darwin/amd64") {
			assert.Contains(t, line, "sha256")
		}
	}
}

func TestCatalogCmd_Overrides(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	overrides := filepath.Join(env.Config, "catalog.lua")
	require.NoError(t, os.WriteFile(overrides, []byte(`catalog = { ["freebsd/amd64"] = { url = "https://mirror.example/ffmpeg.tar.xz", executable = "ffmpeg" } }`), 0o644))

	configDir := filepath.Join(env.Root, "cfg")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("catalog:\n  overrides: "+overrides+"\n"), 0o644))

	out, _, err := executeCommand(t, "", "--config", configDir, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "freebsd/amd64")
	assert.Contains(t, out, "https://mirror.example/ffmpeg.tar.xz")
}

func TestCatalogCmd_InvalidOverrides(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	overrides := filepath.Join(env.Config, "catalog.lua")
	require.NoError(t, os.WriteFile(overrides, []byte(`catalog = { ["linux/amd64"] = { executable = "ffmpeg" } }`), 0o644))
	t.Setenv("FFDEP_CATALOG_OVERRIDES", overrides)

	_, _, err := executeCommand(t, "", "catalog")
	require.Error(t, err)

	var parseErr *binary.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Message, "missing url")
}

func TestInvalidConfig(t *testing.T) {
	testutil.SetupTestEnv(t)
	t.Setenv("FFDEP_EXTRACT_MODE", "magic")

	_, _, err := executeCommand(t, "", "locate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.mode")
}

func TestLogLevelFlag(t *testing.T) {
	t.Run("invalid", func(t *testing.T) {
		testutil.SetupTestEnv(t)

		_, _, err := executeCommand(t, "", "--log-level", "loud", "catalog")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging.level")
	})

	t.Run("valid", func(t *testing.T) {
		testutil.SetupTestEnv(t)

		out, _, err := executeCommand(t, "", "--log-level", "debug", "catalog")
		require.NoError(t, err)
		assert.Contains(t, out, "PLATFORM")
	})
}

func TestLocateCmd(t *testing.T) {
	skipWithoutPOSIX(t)

	t.Run("override", func(t *testing.T) {
		env := testutil.SetupTestEnv(t)
		custom := filepath.Join(env.Root, "custom-ffmpeg")
		require.NoError(t, os.WriteFile(custom, []byte(testutil.FakeFFmpegScript("6.1")), 0o755))
		t.Setenv("FFDEP_FFMPEG_PATH", custom)

		out, _, err := executeCommand(t, "", "locate")
		require.NoError(t, err)
		assert.Equal(t, custom, strings.TrimSpace(out))
	})

	t.Run("not_found", func(t *testing.T) {
		testutil.SetupTestEnv(t)
		emptyPath(t)

		_, _, err := executeCommand(t, "", "locate")
		assert.ErrorIs(t, err, binary.ErrNotFound)
	})
}

func TestInstallCmd_EndToEnd(t *testing.T) {
	skipWithoutPOSIX(t)
	env := testutil.SetupTestEnv(t)
	server := serveFFmpeg(t, env, "7.1")
	textfile := filepath.Join(env.Root, "ffdep.prom")
	t.Setenv("FFDEP_METRICS_TEXTFILE", textfile)

	out, errOut, err := executeCommand(t, "", "install")
	require.NoError(t, err, errOut)

	want := filepath.Join(env.Storage, "bin", "ffmpeg")
	assert.Equal(t, want, strings.TrimSpace(out))
	assert.Contains(t, errOut, "ffmpeg 7.1 installed at "+want)
	require.NotEmpty(t, server.userAgents())
	for _, ua := range server.userAgents() {
		assert.Equal(t, "ffdep/"+Version, ua)
	}

	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o111)

	metrics, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `ffdep_install_attempts_total{outcome="installed"} 1`)

	out, _, err = executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ffdep "+Version)
	assert.Contains(t, out, "ffmpeg 7.1")

	// A second install keeps the existing binary
	out, errOut, err = executeCommand(t, "", "install")
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out))
	assert.NotContains(t, errOut, "installed at")
}

func TestInstallCmd_FailureIsReportedOnce(t *testing.T) {
	env := testutil.SetupTestEnv(t)
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	overrides := filepath.Join(env.Config, "catalog.lua")
	require.NoError(t, os.WriteFile(overrides, []byte(fmt.Sprintf(
		`catalog = { [platform.key] = { url = %q, executable = "ffmpeg" } }`, server.URL+"/missing.tar.gz")), 0o644))
	t.Setenv("FFDEP_CATALOG_OVERRIDES", overrides)
	t.Setenv("FFDEP_DOWNLOAD_RETRIES", "0")

	_, errOut, err := executeCommand(t, "", "install")
	require.ErrorIs(t, err, errReported)
	assert.Equal(t, 1, strings.Count(errOut, "Failed to install ffmpeg"))
}

func TestVersionCmd_NotInstalled(t *testing.T) {
	testutil.SetupTestEnv(t)
	emptyPath(t)

	out, _, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ffmpeg "+binary.VersionNotInstalled)
}

func TestEnsureCmd(t *testing.T) {
	skipWithoutPOSIX(t)

	t.Run("prompt_dismissed_without_terminal", func(t *testing.T) {
		env := testutil.SetupTestEnv(t)
		emptyPath(t)
		serveFFmpeg(t, env, "7.1")

		_, errOut, err := executeCommand(t, "", "ensure")
		assert.ErrorIs(t, err, binary.ErrNotFound)
		assert.Contains(t, errOut, "pass --yes")
		assert.NoFileExists(t, filepath.Join(env.Storage, "bin", "ffmpeg"))
	})

	t.Run("yes_installs", func(t *testing.T) {
		env := testutil.SetupTestEnv(t)
		emptyPath(t)
		serveFFmpeg(t, env, "7.1")

		out, _, err := executeCommand(t, "", "--yes", "ensure")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(env.Storage, "bin", "ffmpeg"), strings.TrimSpace(out))
	})

	t.Run("auto_install_setting", func(t *testing.T) {
		env := testutil.SetupTestEnv(t)
		emptyPath(t)
		serveFFmpeg(t, env, "7.1")
		t.Setenv("FFDEP_FFMPEG_AUTO_INSTALL", "true")

		out, _, err := executeCommand(t, "", "ensure")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(env.Storage, "bin", "ffmpeg"), strings.TrimSpace(out))
	})
}
