package binary

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/logger"
)

const (
	brewFallbackPath     = "/opt/homebrew/bin/brew"
	brewInstallScriptURL = "https://raw.githubusercontent.com/Homebrew/install/HEAD/install.sh"
	intelArchiveName     = "ffmpeg-x86_64.zip"

	choiceInstallHomebrew = "Install Homebrew"
	choiceDownloadIntel   = "Download Intel build"
)

// altOutcome is the result of the Apple Silicon install path.
type altOutcome int

const (
	// outcomeFallthrough hands over to the direct download.
	outcomeFallthrough altOutcome = iota
	// outcomeAdopted means ffmpeg is installed and usable.
	outcomeAdopted
	// outcomeFailed ends the whole attempt.
	outcomeFailed
)

// installAlternate prefers Homebrew on Apple Silicon, then the Intel build.
// A panic anywhere in here becomes outcomeFallthrough.
func (m *Manager) installAlternate(ctx context.Context, log *logger.Logger, target downloadTarget, exeName string, progress ProgressFunc) (result *InstallResult, outcome altOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("alternate install panicked", zap.Any("panic", r))
			result, outcome, err = nil, outcomeFallthrough, nil
		}
	}()

	if brew, ok := m.findBrew(ctx); ok {
		if path, ok := m.brewInstallAndAdopt(ctx, log, brew, false); ok {
			return m.adopt(ctx, path)
		}
		return m.installIntelBuild(ctx, log, target, exeName, progress)
	}

	choice, _ := m.prompter.Confirm(ctx,
		"Homebrew was not found. ffmpeg can be installed with Homebrew, or an Intel build can be downloaded to run under Rosetta.",
		choiceInstallHomebrew, choiceDownloadIntel, choiceCancel)

	switch choice {
	case choiceInstallHomebrew:
		if brew, ok := m.installHomebrew(ctx, log); ok {
			if path, ok := m.brewInstallAndAdopt(ctx, log, brew, true); ok {
				return m.adopt(ctx, path)
			}
		}
		return m.installIntelBuild(ctx, log, target, exeName, progress)
	case choiceDownloadIntel:
		return m.installIntelBuild(ctx, log, target, exeName, progress)
	default:
		log.Info("alternate install canceled by user")
		return nil, outcomeFallthrough, nil
	}
}

// adopt probes a package-manager ffmpeg and takes it as the result.
func (m *Manager) adopt(ctx context.Context, path string) (*InstallResult, altOutcome, error) {
	version, err := m.prober.Probe(ctx, path)
	if err != nil {
		m.log.Warn("homebrew ffmpeg is not usable", zap.String("path", path), zap.Error(err))
		return nil, outcomeFallthrough, nil
	}
	return &InstallResult{Path: path, Version: version, Method: MethodHomebrew}, outcomeAdopted, nil
}

// findBrew returns the first brew that answers --version.
func (m *Manager) findBrew(ctx context.Context) (string, bool) {
	var candidates []string
	if path, err := m.runner.LookPath("brew"); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, m.brewDefaultPath)

	for _, brew := range candidates {
		if _, err := m.runner.Run(ctx, brew, []string{"--version"}, nil); err == nil {
			return brew, true
		}
	}
	return "", false
}

// brewInstallAndAdopt resolves Homebrew's ffmpeg, installing it first when
// it is missing. consented skips the install prompt.
func (m *Manager) brewInstallAndAdopt(ctx context.Context, log *logger.Logger, brew string, consented bool) (string, bool) {
	out, err := m.runner.Run(ctx, brew, []string{"list", "--versions", "ffmpeg"}, nil)
	if err == nil && len(bytes.TrimSpace(out)) > 0 {
		log.Info("using ffmpeg from Homebrew", zap.String("installed", strings.TrimSpace(string(out))))
		return m.resolveBrewFFmpeg(ctx, brew)
	}

	if !consented {
		choice, _ := m.prompter.Confirm(ctx, "ffmpeg is not installed. Install it with Homebrew (brew install ffmpeg)?", choiceInstall, choiceCancel)
		if choice != choiceInstall {
			log.Info("homebrew install declined")
			return "", false
		}
	}

	if out, err := m.runner.Run(ctx, brew, []string{"install", "ffmpeg"}, nil); err != nil {
		log.Warn("brew install ffmpeg failed", zap.Error(err), zap.String("output", lastLines(out, 20)))
		return "", false
	}
	return m.resolveBrewFFmpeg(ctx, brew)
}

// resolveBrewFFmpeg finds ffmpeg with which, then under brew --prefix.
func (m *Manager) resolveBrewFFmpeg(ctx context.Context, brew string) (string, bool) {
	if out, err := m.runner.Run(ctx, "which", []string{"ffmpeg"}, nil); err == nil {
		if path := firstLine(out); path != "" {
			return path, true
		}
	}
	out, err := m.runner.Run(ctx, brew, []string{"--prefix", "ffmpeg"}, nil)
	if err != nil {
		return "", false
	}
	prefix := firstLine(out)
	if prefix == "" {
		return "", false
	}
	return filepath.Join(prefix, "bin", "ffmpeg"), true
}

// installHomebrew runs the official install script after a second consent.
func (m *Manager) installHomebrew(ctx context.Context, log *logger.Logger) (string, bool) {
	choice, _ := m.prompter.Confirm(ctx,
		fmt.Sprintf("Installing Homebrew runs the script at %s with your user's permissions. Continue?", m.brewScriptURL),
		choiceContinue, choiceCancel)
	if choice != choiceContinue {
		log.Info("homebrew installation declined")
		return "", false
	}

	script := filepath.Join(m.storageRoot(), "homebrew-install.sh")
	defer os.Remove(script)

	if err := m.downloader.Download(ctx, m.brewScriptURL, script, nil); err != nil {
		log.Warn("download homebrew installer", zap.Error(err))
		return "", false
	}
	if out, err := m.runner.Run(ctx, "/bin/bash", []string{script}, []string{"NONINTERACTIVE=1"}); err != nil {
		log.Warn("homebrew installer failed", zap.Error(err), zap.String("output", lastLines(out, 20)))
		return "", false
	}

	return m.findBrew(ctx)
}

// installIntelBuild downloads the x86_64 build and installs it like the
// direct path. Only a declined checksum or cancellation fails the attempt;
// anything else falls through.
func (m *Manager) installIntelBuild(ctx context.Context, log *logger.Logger, target downloadTarget, exeName string, progress ProgressFunc) (*InstallResult, altOutcome, error) {
	scratch := filepath.Join(filepath.Dir(target.installDir), intelArchiveName)
	stagingDir := target.stagingDir + "-x86_64"
	defer os.Remove(scratch)
	defer os.RemoveAll(stagingDir)

	log.Info("downloading Intel ffmpeg build", zap.String("url", m.intelBuildURL))
	if err := m.downloader.Download(ctx, m.intelBuildURL, scratch, progress); err != nil {
		if KindOf(err) == KindCanceled {
			return nil, outcomeFailed, err
		}
		log.Warn("intel build download failed", zap.Error(err))
		return nil, outcomeFallthrough, nil
	}
	if err := checkArchiveContent(scratch); err != nil {
		log.Warn("intel build download is not an archive", zap.Error(err))
		return nil, outcomeFallthrough, nil
	}

	verified, err := m.confirmDigest(ctx, log, scratch, m.intelInfoURL)
	if err != nil {
		return nil, outcomeFailed, err
	}

	work := context.WithoutCancel(ctx)
	m.transition(log, StateExtracting)
	progress(85, "Extracting ffmpeg")
	if err := m.extractor.Extract(work, scratch, stagingDir, "", exeName); err != nil {
		log.Warn("intel build extraction failed", zap.Error(err))
		return nil, outcomeFallthrough, nil
	}
	staged := filepath.Join(stagingDir, exeName)
	if !fileExists(staged) {
		log.Warn("intel build archive has no executable", zap.String("name", exeName))
		return nil, outcomeFallthrough, nil
	}

	m.transition(log, StateActivating)
	path, version, err := m.activate(work, staged, target.installDir, exeName, progress)
	if err != nil {
		log.Warn("intel build activation failed", zap.Error(err))
		return nil, outcomeFallthrough, nil
	}

	return &InstallResult{Path: path, Version: version, Method: MethodFallback, Verified: verified}, outcomeAdopted, nil
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// lastLines keeps log fields short for chatty installers.
func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
