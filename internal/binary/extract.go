package binary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/platform"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/settings"
)

// Extractor expands an archive into destDir and, when innerPath is set,
// copies innerPath/exeName up to destDir/exeName.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir, innerPath, exeName string) error
}

// Extraction modes selectable through settings.
const (
	ExtractModeSystem = settings.ExtractModeSystem
	ExtractModeNative = settings.ExtractModeNative
)

// NewExtractor returns the extractor for mode. Anything but "native" selects
// the system tools.
func NewExtractor(mode string, runner CommandRunner, info *platform.Info) Extractor {
	if strings.EqualFold(mode, ExtractModeNative) {
		return NativeExtractor{}
	}
	return NewSystemExtractor(runner, info)
}

type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatZip
	formatTar
)

// formatOf picks the archive format from the file name suffix.
func formatOf(name string) archiveFormat {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return formatZip
	case strings.HasSuffix(lower, ".tar.xz"),
		strings.HasSuffix(lower, ".tar.gz"),
		strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.bz2"),
		strings.HasSuffix(lower, ".tar.zst"):
		return formatTar
	default:
		return formatUnknown
	}
}

// expandArchiveScript reads both paths from the environment so neither is
// ever parsed as PowerShell.
const expandArchiveScript = "Expand-Archive -LiteralPath $env:FFDEP_ARCHIVE -DestinationPath $env:FFDEP_DEST -Force"

// SystemExtractor shells out to unzip, tar, or PowerShell.
type SystemExtractor struct {
	runner CommandRunner
	info   *platform.Info
}

// NewSystemExtractor creates an extractor that uses the host's archive tools.
func NewSystemExtractor(runner CommandRunner, info *platform.Info) *SystemExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	if info == nil {
		info = &platform.Info{}
	}
	return &SystemExtractor{runner: runner, info: info}
}

// Extract runs the tool matching the archive suffix. Tarballs have their
// top-level directory stripped.
func (e *SystemExtractor) Extract(ctx context.Context, archivePath, destDir, innerPath, exeName string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return newError(KindFilesystem, "extract", fmt.Errorf("create dest dir: %w", err))
	}

	var (
		tool string
		args []string
		env  []string
	)
	switch formatOf(archivePath) {
	case formatZip:
		if e.info.IsWindows() {
			tool = "powershell"
			args = []string{"-NoProfile", "-NonInteractive", "-Command", expandArchiveScript}
			env = []string{"FFDEP_ARCHIVE=" + archivePath, "FFDEP_DEST=" + destDir}
		} else {
			tool = "unzip"
			args = []string{"-o", "-q", archivePath, "-d", destDir}
		}
	case formatTar:
		tool = "tar"
		args = []string{"-xf", archivePath, "-C", destDir, "--strip-components=1"}
	default:
		return newError(KindExtractionToolMissing, "extract",
			fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath)))
	}

	if _, err := e.runner.LookPath(tool); err != nil {
		return e.toolError(tool, nil, err)
	}
	out, err := e.runner.Run(ctx, tool, args, env)
	if err != nil {
		return e.toolError(tool, out, err)
	}

	return promoteExecutable(destDir, innerPath, exeName)
}

func (e *SystemExtractor) toolError(tool string, output []byte, cause error) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "%s could not extract the ffmpeg archive: %v. %s", tool, cause, e.installHint(tool))
	if out := bytes.TrimSpace(output); len(out) > 0 {
		fmt.Fprintf(&msg, "\n%s", out)
	}
	return newError(KindExtractionToolMissing, "extract", fmt.Errorf("%s", msg.String()))
}

// installHint names the tool and, on Linux, the package manager command for
// the detected distribution family.
func (e *SystemExtractor) installHint(tool string) string {
	if tool == "powershell" {
		return "Ensure PowerShell is available on PATH."
	}
	hint := fmt.Sprintf("Install `%s`", tool)
	if !e.info.IsLinux() {
		return hint + "."
	}
	switch e.info.Family {
	case platform.FamilyDebian:
		return fmt.Sprintf("%s (sudo apt-get install %s).", hint, tool)
	case platform.FamilyRHEL, platform.FamilyFedora:
		return fmt.Sprintf("%s (sudo dnf install %s).", hint, tool)
	case platform.FamilyArch:
		return fmt.Sprintf("%s (sudo pacman -S %s).", hint, tool)
	case platform.FamilyAlpine:
		return fmt.Sprintf("%s (sudo apk add %s).", hint, tool)
	case platform.FamilySUSE:
		return fmt.Sprintf("%s (sudo zypper install %s).", hint, tool)
	default:
		return hint + " with your package manager."
	}
}

// promoteExecutable copies destDir/innerPath/exeName to destDir/exeName. A
// missing nested file is not an error; the caller checks for the promoted
// executable afterwards.
func promoteExecutable(destDir, innerPath, exeName string) error {
	if innerPath == "" {
		return nil
	}
	src := filepath.Join(destDir, filepath.FromSlash(innerPath), exeName)
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return nil
	}
	if err := copyFile(src, filepath.Join(destDir, exeName), info.Mode().Perm()); err != nil {
		return newError(KindFilesystem, "promote executable", err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	// Set permissions to 0755 (rwxr-xr-x)
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
