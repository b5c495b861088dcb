package binary

import (
	"context"
	"time"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/settings"
)

// ProgressFunc receives integer percentages and a short status message.
type ProgressFunc func(percent int, message string)

// Prompter is the user-facing surface. The engine never renders UI itself.
type Prompter interface {
	// Confirm asks the user to pick one of options. ok is false when the
	// prompt was dismissed.
	Confirm(ctx context.Context, message string, options ...string) (choice string, ok bool)
	// ReportProgress runs attempt while displaying progress under title.
	// Cancelling the context passed to attempt requests cancellation.
	ReportProgress(ctx context.Context, title string, attempt func(ctx context.Context, update ProgressFunc) error) error
	Info(message string)
	Error(message string)
}

// Settings is the read side of user configuration.
type Settings interface {
	String(key, def string) string
	Bool(key string, def bool) bool
}

// Storage supplies the app-owned directory root.
type Storage interface {
	PersistentStoragePath() (string, error)
}

// Settings keys consulted by the engine.
const (
	SettingOverridePath   = settings.KeyOverridePath
	SettingAutoInstall    = settings.KeyAutoInstall
	SettingMinimumVersion = settings.KeyMinimumVersion
)

// State names the installer state machine positions.
type State string

const (
	StateIdle                State = "idle"
	StateResolvingDescriptor State = "resolving-descriptor"
	StateAlternatePath       State = "alternate-path"
	StateDirectDownload      State = "direct-download"
	StateExtracting          State = "extracting"
	StateActivating          State = "activating"
	StateInstalled           State = "installed"
	StateFailed              State = "failed"
)

// InstallOptions configures one Install call.
type InstallOptions struct {
	Force    bool
	Progress ProgressFunc
}

// Method records how the executable was obtained.
type Method string

const (
	MethodExisting Method = "existing"
	MethodDirect   Method = "direct"
	MethodHomebrew Method = "homebrew"
	MethodFallback Method = "alternate-download"
)

// VerificationMethod indicates how a downloaded archive was verified
type VerificationMethod int

const (
	// VerificationNone means no digest or signature was available
	VerificationNone VerificationMethod = iota
	// VerificationGPG indicates a detached signature was checked
	VerificationGPG
	// VerificationSHA256 indicates a published digest matched
	VerificationSHA256
	// VerificationOverridden means the digest mismatched and the user chose to continue
	VerificationOverridden
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationOverridden:
		return "Overridden"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// InstallResult describes a successful Install.
type InstallResult struct {
	Path     string
	Version  string
	Method   Method
	Verified VerificationMethod
	Skipped  bool // the executable was already present
	Duration time.Duration
}

// downloadTarget is scoped to one install attempt.
type downloadTarget struct {
	installDir  string // final home of the executable
	archivePath string // scratch archive, always removed
	stagingDir  string // private extraction dir, always removed
	alternate   bool
}
