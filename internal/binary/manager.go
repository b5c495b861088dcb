package binary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/lock"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/logger"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/metrics"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/platform"
)

// Prompt choices.
const (
	choiceContinue = "Continue"
	choiceCancel   = "Cancel"
	choiceInstall  = "Install"
)

// Version strings reported by ProbeVersion when no version is available.
const (
	VersionNotInstalled = "not installed"
	VersionError        = "error"
)

// Manager locates, installs, and verifies ffmpeg. One Manager should be
// shared by everything in a process that needs ffmpeg; it owns the cached
// path and the in-progress flag.
type Manager struct {
	prompter   Prompter
	settings   Settings
	storage    Storage
	runner     CommandRunner
	info       *platform.Info
	catalog    *Catalog
	downloader *Downloader
	extractor  Extractor
	verifier   *Verifier
	prober     *Prober
	metrics    metrics.Metrics
	log        *logger.Logger

	intelBuildURL   string
	intelInfoURL    string
	brewScriptURL   string
	brewDefaultPath string

	installing atomic.Bool

	mu         sync.RWMutex
	cachedPath string
	state      State
}

// Config holds configuration for the manager
type Config struct {
	// Platform is the detected OS and architecture (required)
	Platform *platform.Info
	// Prompter receives confirmations, progress, and outcome messages (required)
	Prompter Prompter

	Settings   Settings
	Storage    Storage
	Runner     CommandRunner
	Catalog    *Catalog
	Downloader *Downloader
	Extractor  Extractor
	Verifier   *Verifier
	Metrics    metrics.Metrics
	Logger     *logger.Logger

	// Alternate-path endpoints; empty means the public defaults.
	IntelBuildURL   string
	IntelInfoURL    string
	BrewScriptURL   string
	BrewDefaultPath string
}

// NewManager creates a new manager
func NewManager(config Config) (*Manager, error) {
	if config.Platform == nil {
		return nil, fmt.Errorf("Platform is required")
	}
	if config.Prompter == nil {
		return nil, fmt.Errorf("Prompter is required")
	}

	m := &Manager{
		prompter:        config.Prompter,
		settings:        config.Settings,
		storage:         config.Storage,
		runner:          config.Runner,
		info:            config.Platform,
		catalog:         config.Catalog,
		downloader:      config.Downloader,
		extractor:       config.Extractor,
		verifier:        config.Verifier,
		metrics:         config.Metrics,
		log:             config.Logger,
		intelBuildURL:   firstNonEmpty(config.IntelBuildURL, evermeetZip),
		intelInfoURL:    firstNonEmpty(config.IntelInfoURL, evermeetInfo),
		brewScriptURL:   firstNonEmpty(config.BrewScriptURL, brewInstallScriptURL),
		brewDefaultPath: firstNonEmpty(config.BrewDefaultPath, brewFallbackPath),
		state:           StateIdle,
	}

	if m.settings == nil {
		m.settings = noSettings{}
	}
	if m.runner == nil {
		m.runner = ExecRunner{}
	}
	if m.catalog == nil {
		m.catalog = DefaultCatalog()
	}
	if m.metrics == nil {
		m.metrics = metrics.Noop{}
	}
	if m.log == nil {
		m.log = logger.Nop()
	}
	if m.downloader == nil {
		m.downloader = NewDownloader(WithByteCounter(m.metrics.AddDownloadedBytes), WithDownloadLogger(m.log))
	}
	if m.extractor == nil {
		m.extractor = NewSystemExtractor(m.runner, m.info)
	}
	if m.verifier == nil {
		m.verifier = NewVerifier("")
	}
	m.prober = NewProber(m.runner)

	return m, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type noSettings struct{}

func (noSettings) String(_, def string) string  { return def }
func (noSettings) Bool(_ string, def bool) bool { return def }

// storageRoot is the app-owned directory, or a temp fallback when storage
// is unavailable.
func (m *Manager) storageRoot() string {
	if m.storage != nil {
		if path, err := m.storage.PersistentStoragePath(); err == nil && path != "" {
			return path
		} else if err != nil {
			m.log.Warn("storage unavailable, using temp directory", zap.Error(err))
		}
	}
	return filepath.Join(os.TempDir(), "ffdep")
}

// InstallDir returns the directory the bundled executable is installed into.
func (m *Manager) InstallDir() string {
	return filepath.Join(m.storageRoot(), "bin")
}

// CachedPath returns the last path that was located or installed.
func (m *Manager) CachedPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cachedPath
}

func (m *Manager) setCachedPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cachedPath = path
}

// clearCachedPath forgets path if it is still the cached one.
func (m *Manager) clearCachedPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cachedPath == path {
		m.cachedPath = ""
	}
}

// State returns the installer's current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) transition(log *logger.Logger, s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	log.Debug("install state changed", zap.String("from", string(prev)), zap.String("state", string(s)))
}

// executableName is the catalog's executable for this platform, or the
// conventional name when the platform is unsupported.
func (m *Manager) executableName() string {
	if d, err := m.catalog.Resolve(m.info.OS, m.info.Arch); err == nil {
		return d.ExecutableName
	}
	if m.info.IsWindows() {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// progressGuard forwards only increasing values up to 100, so a restarted
// download never makes the reported progress regress.
type progressGuard struct {
	mu   sync.Mutex
	last int
	fn   ProgressFunc
}

func newProgressGuard(fn ProgressFunc) *progressGuard {
	return &progressGuard{last: -1, fn: fn}
}

func (g *progressGuard) report(percent int, message string) {
	if g.fn == nil {
		return
	}
	if percent > 100 {
		percent = 100
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if percent <= g.last {
		return
	}
	g.last = percent
	g.fn(percent, message)
}

// Install makes ffmpeg available in the install directory. A call made
// while another is running returns a KindBusy error immediately.
func (m *Manager) Install(ctx context.Context, opts InstallOptions) (result *InstallResult, err error) {
	if !m.installing.CompareAndSwap(false, true) {
		return nil, newError(KindBusy, "install", nil)
	}
	defer m.installing.Store(false)

	start := time.Now()
	attemptID := uuid.NewString()
	log := m.log.WithAttempt(attemptID)
	progress := newProgressGuard(opts.Progress).report

	defer func() {
		outcome := "installed"
		switch {
		case err != nil:
			outcome = strings.ToLower(KindOf(err).String())
			m.transition(log, StateFailed)
			log.Warn("install failed", zap.Error(err))
		case result.Skipped:
			outcome = "skipped"
		default:
			m.metrics.ObserveInstallDuration(string(result.Method), time.Since(start).Seconds())
		}
		if result != nil {
			result.Duration = time.Since(start)
		}
		m.metrics.IncInstallAttempt(outcome)
		m.transition(log, StateIdle)
	}()

	m.transition(log, StateResolvingDescriptor)
	desc, err := m.catalog.Resolve(m.info.OS, m.info.Arch)
	if err != nil {
		return nil, err
	}

	root := m.storageRoot()
	installDir := filepath.Join(root, "bin")
	exePath := filepath.Join(installDir, desc.ExecutableName)

	if !opts.Force && fileExists(exePath) {
		log.Debug("ffmpeg already installed", zap.String("path", exePath))
		m.setCachedPath(exePath)
		return &InstallResult{Path: exePath, Method: MethodExisting, Skipped: true}, nil
	}

	if err := os.MkdirAll(installDir, 0755); err != nil {
		return nil, newError(KindFilesystem, "create install dir", err)
	}

	held, err := lock.TryAcquire(ctx, root)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, newError(KindBusy, "install", err)
		}
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, "install", err)
		}
		return nil, newError(KindFilesystem, "acquire install lock", err)
	}
	defer func() {
		if err := held.Release(); err != nil {
			log.Warn("release install lock", zap.Error(err))
		}
	}()

	target := downloadTarget{
		installDir:  installDir,
		archivePath: filepath.Join(root, desc.ArchiveName),
		stagingDir:  filepath.Join(root, ".staging-"+attemptID),
		alternate:   m.info.IsAppleSilicon(),
	}
	defer m.cleanup(log, target)

	log.Info("installing ffmpeg",
		zap.String("platform", m.info.Key()),
		zap.String("url", desc.URL),
		zap.Bool("force", opts.Force),
		zap.Bool("alternate", target.alternate))

	if target.alternate {
		m.transition(log, StateAlternatePath)
		altResult, outcome, altErr := m.installAlternate(ctx, log, target, desc.ExecutableName, progress)
		switch outcome {
		case outcomeAdopted:
			m.setCachedPath(altResult.Path)
			m.transition(log, StateInstalled)
			progress(100, "ffmpeg installed")
			return altResult, nil
		case outcomeFailed:
			return nil, altErr
		}
		log.Info("alternate path declined, using direct download")
	}

	result, err = m.installDirect(ctx, log, desc, target, progress)
	if err != nil {
		return nil, err
	}

	m.setCachedPath(result.Path)
	m.transition(log, StateInstalled)
	progress(100, "ffmpeg installed")
	log.Info("ffmpeg installed",
		zap.String("path", result.Path),
		zap.String("version", result.Version),
		zap.String("verified", result.Verified.String()))
	return result, nil
}

// installDirect downloads the catalog archive and activates its executable.
func (m *Manager) installDirect(ctx context.Context, log *logger.Logger, desc Descriptor, target downloadTarget, progress ProgressFunc) (*InstallResult, error) {
	m.transition(log, StateDirectDownload)
	if err := m.downloader.Download(ctx, desc.URL, target.archivePath, progress); err != nil {
		return nil, err
	}
	if err := checkArchiveContent(target.archivePath); err != nil {
		return nil, newError(KindNetwork, "download", err)
	}

	verified, err := m.verifyArchive(ctx, log, desc, target.archivePath)
	if err != nil {
		return nil, err
	}

	// Cancellation is honored only up to here.
	work := context.WithoutCancel(ctx)

	m.transition(log, StateExtracting)
	progress(85, "Extracting ffmpeg")
	if err := m.extractor.Extract(work, target.archivePath, target.stagingDir, desc.InnerPath, desc.ExecutableName); err != nil {
		return nil, err
	}
	staged := filepath.Join(target.stagingDir, desc.ExecutableName)
	if !fileExists(staged) {
		return nil, newError(KindNotExecutable, "extract",
			fmt.Errorf("%s not found in archive (expected under %q)", desc.ExecutableName, desc.InnerPath))
	}

	m.transition(log, StateActivating)
	path, version, err := m.activate(work, staged, target.installDir, desc.ExecutableName, progress)
	if err != nil {
		return nil, err
	}

	return &InstallResult{Path: path, Version: version, Method: MethodDirect, Verified: verified}, nil
}

// activate makes staged runnable, probes it, and moves it into installDir.
func (m *Manager) activate(ctx context.Context, staged, installDir, exeName string, progress ProgressFunc) (string, string, error) {
	if !m.info.IsWindows() {
		if err := SetExecutable(staged); err != nil {
			return "", "", newError(KindFilesystem, "activate", err)
		}
	}
	if m.info.IsMacOS() {
		if err := clearQuarantine(staged); err != nil {
			m.log.Warn("clear quarantine", zap.String("path", staged), zap.Error(err))
		}
	}

	progress(95, "Verifying ffmpeg")
	version, err := m.prober.Probe(ctx, staged)
	if err != nil {
		return "", "", err
	}

	final := filepath.Join(installDir, exeName)
	if err := os.Rename(staged, final); err != nil {
		return "", "", newError(KindFilesystem, "activate", fmt.Errorf("move executable into place: %w", err))
	}
	return final, version, nil
}

// verifyArchive checks the detached signature when one is published and a
// keyring is configured, then the published digest.
func (m *Manager) verifyArchive(ctx context.Context, log *logger.Logger, desc Descriptor, archivePath string) (VerificationMethod, error) {
	method := VerificationNone

	if desc.SignatureURL != "" && m.verifier.Enabled() {
		sigPath := archivePath + ".sig"
		defer os.Remove(sigPath)

		if err := m.downloader.Download(ctx, desc.SignatureURL, sigPath, nil); err != nil {
			if KindOf(err) == KindCanceled {
				return method, err
			}
			// Fall back to the digest if the signature is unavailable
			log.Warn("signature unavailable", zap.String("url", desc.SignatureURL), zap.Error(err))
		} else {
			if err := m.verifier.VerifySignature(archivePath, sigPath); err != nil {
				return method, newError(KindChecksumMismatch, "verify signature", err)
			}
			method = VerificationGPG
		}
	}

	digest, err := m.confirmDigest(ctx, log, archivePath, desc.ChecksumURL)
	if err != nil {
		return method, err
	}
	if method == VerificationNone {
		method = digest
	}
	return method, nil
}

// confirmDigest compares archivePath against the digest published at
// checksumURL. On mismatch the user decides; declining removes the archive.
func (m *Manager) confirmDigest(ctx context.Context, log *logger.Logger, archivePath, checksumURL string) (VerificationMethod, error) {
	if checksumURL == "" {
		return VerificationNone, nil
	}
	expected := extractChecksum(m.downloader.FetchRemoteText(ctx, checksumURL))
	if expected == "" {
		log.Debug("no published checksum", zap.String("url", checksumURL))
		return VerificationNone, nil
	}

	actual, err := calculateSHA256(archivePath)
	if err != nil {
		return VerificationNone, newError(KindFilesystem, "checksum", err)
	}
	if actual == expected {
		return VerificationSHA256, nil
	}

	log.Warn("checksum mismatch", zap.String("expected", expected), zap.String("actual", actual))
	choice, _ := m.prompter.Confirm(ctx,
		fmt.Sprintf("The downloaded ffmpeg archive does not match its published SHA-256 checksum.\nExpected: %s\nActual:   %s\nContinue anyway?", expected, actual),
		choiceContinue, choiceCancel)
	if choice != choiceContinue {
		os.Remove(archivePath)
		return VerificationNone, newError(KindChecksumMismatch, "checksum",
			fmt.Errorf("expected %s, got %s", expected, actual))
	}
	return VerificationOverridden, nil
}

// cleanup removes the scratch archive and staging directory.
func (m *Manager) cleanup(log *logger.Logger, target downloadTarget) {
	var result *multierror.Error
	for _, path := range []string{target.archivePath, target.archivePath + ".part"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if err := os.RemoveAll(target.stagingDir); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warn("cleanup incomplete", zap.Error(err))
	}
}

// Acquire runs Install under the prompter's progress display and reports
// the outcome to the user once. It returns true when ffmpeg is available.
func (m *Manager) Acquire(ctx context.Context, force bool) bool {
	return m.acquire(ctx, force) == nil
}

func (m *Manager) acquire(ctx context.Context, force bool) error {
	var result *InstallResult
	err := m.prompter.ReportProgress(ctx, "Installing ffmpeg", func(ctx context.Context, update ProgressFunc) error {
		var err error
		result, err = m.Install(ctx, InstallOptions{Force: force, Progress: update})
		return err
	})

	switch {
	case err == nil:
		if result != nil && !result.Skipped {
			m.prompter.Info(fmt.Sprintf("ffmpeg %s installed at %s", result.Version, result.Path))
		}
	case errors.Is(err, ErrBusy):
		m.prompter.Info("An ffmpeg installation is already in progress.")
	case errors.Is(err, ErrCanceled):
	case errors.Is(err, ErrUnsupportedPlatform):
		m.prompter.Error(fmt.Sprintf("No ffmpeg build is available for %s. Install ffmpeg manually and set %s to its path.",
			m.info.Key(), SettingOverridePath))
	default:
		m.prompter.Error(fmt.Sprintf("Failed to install ffmpeg: %v", err))
	}
	return err
}

// Ensure locates ffmpeg and installs it when nothing is found. The install
// starts without asking when ffmpeg.autoInstall is set; otherwise the user
// is asked first. A declined prompt returns ErrNotFound. Install failures
// have already been reported through the prompter when they are returned.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	path, err := m.Locate(ctx)
	if !errors.Is(err, ErrNotFound) {
		return path, err
	}

	if !m.settings.Bool(SettingAutoInstall, false) {
		choice, _ := m.prompter.Confirm(ctx, "ffmpeg was not found. Download and install it now?", choiceInstall, choiceCancel)
		if choice != choiceInstall {
			return "", ErrNotFound
		}
	}

	if err := m.acquire(ctx, false); err != nil {
		return "", err
	}
	return m.Locate(ctx)
}

// ProbeVersion returns the version of the located ffmpeg, VersionNotInstalled
// when there is none, or VersionError when it fails to run.
func (m *Manager) ProbeVersion(ctx context.Context) string {
	path, version, err := m.locate(ctx)
	if err != nil {
		return VersionNotInstalled
	}
	if version != "" {
		return version
	}

	version, err = m.prober.Probe(ctx, path)
	if err != nil {
		m.log.Warn("cached ffmpeg failed to run", zap.String("path", path), zap.Error(err))
		m.clearCachedPath(path)
		return VersionError
	}
	return version
}
