package binary

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an install attempt ended.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnsupportedPlatform means no catalog entry exists; no I/O was attempted.
	KindUnsupportedPlatform
	// KindNetwork covers non-2xx responses and connection failures.
	KindNetwork
	// KindCanceled is a user-initiated stop, not a failure.
	KindCanceled
	// KindExtractionToolMissing means the archive could not be expanded.
	KindExtractionToolMissing
	// KindChecksumMismatch means the user declined to continue past a digest mismatch.
	KindChecksumMismatch
	// KindNotExecutable means the candidate did not answer the version probe.
	KindNotExecutable
	// KindBusy means another install attempt is already running.
	KindBusy
	// KindFilesystem covers local I/O failures (mkdir, chmod, rename).
	KindFilesystem
)

// Sentinels for errors.Is. An *InstallError matches the sentinel of its Kind.
var (
	ErrUnsupportedPlatform   = errors.New("unsupported platform")
	ErrNetwork               = errors.New("network failure")
	ErrCanceled              = errors.New("canceled")
	ErrExtractionToolMissing = errors.New("extraction failed")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrNotExecutable         = errors.New("not executable")
	ErrBusy                  = errors.New("installation already in progress")
	ErrFilesystem            = errors.New("filesystem error")

	// ErrNotFound is returned by Locate when no working binary exists.
	ErrNotFound = errors.New("ffmpeg not found")
)

var kindSentinels = map[Kind]error{
	KindUnsupportedPlatform:   ErrUnsupportedPlatform,
	KindNetwork:               ErrNetwork,
	KindCanceled:              ErrCanceled,
	KindExtractionToolMissing: ErrExtractionToolMissing,
	KindChecksumMismatch:      ErrChecksumMismatch,
	KindNotExecutable:         ErrNotExecutable,
	KindBusy:                  ErrBusy,
	KindFilesystem:            ErrFilesystem,
}

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindUnsupportedPlatform:
		return "UnsupportedPlatform"
	case KindNetwork:
		return "NetworkFailure"
	case KindCanceled:
		return "Canceled"
	case KindExtractionToolMissing:
		return "ExtractionToolMissing"
	case KindChecksumMismatch:
		return "ChecksumMismatch"
	case KindNotExecutable:
		return "NotExecutable"
	case KindBusy:
		return "Busy"
	case KindFilesystem:
		return "Filesystem"
	default:
		return "Unknown"
	}
}

// InstallError is the single error type surfaced at the installer boundary.
type InstallError struct {
	Kind Kind
	Op   string // step that failed, e.g. "download", "extract"
	Err  error
}

func (e *InstallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *InstallError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

func newError(kind Kind, op string, err error) *InstallError {
	return &InstallError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// isRetryable treats status errors by code and anything else (connection
// resets, timeouts) as transient.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var re *redirectError
	if errors.As(err, &re) {
		return false
	}
	return true
}
