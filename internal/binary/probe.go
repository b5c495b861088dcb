package binary

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DefaultProbeTimeout bounds a single "-version" run.
const DefaultProbeTimeout = 10 * time.Second

// versionUnknown is reported when the executable runs but prints no
// recognizable version token.
const versionUnknown = "unknown"

var versionPattern = regexp.MustCompile(`version\s+([^\s,]+)`)

// Prober runs a candidate executable to confirm it works and read its version.
type Prober struct {
	runner  CommandRunner
	timeout time.Duration
}

// NewProber creates a prober. A nil runner uses ExecRunner.
func NewProber(runner CommandRunner) *Prober {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Prober{runner: runner, timeout: DefaultProbeTimeout}
}

// Probe runs path -version and returns the version token from the first
// line of output.
func (p *Prober) Probe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, path, []string{"-version"}, nil)
	if err != nil {
		return "", newError(KindNotExecutable, "probe", fmt.Errorf("run %s -version: %w", path, err))
	}
	return parseVersion(out), nil
}

func parseVersion(out []byte) string {
	m := versionPattern.FindStringSubmatch(firstLine(out))
	if m == nil {
		return versionUnknown
	}
	return m[1]
}
