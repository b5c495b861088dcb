package binary

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

type runCall struct {
	name string
	args []string
	env  []string
}

// fakeRunner records invocations. handler decides the outcome; a nil handler
// succeeds with no output.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runCall
	missing map[string]bool
	handler func(name string, args []string) ([]byte, error)
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runCall{name: name, args: args, env: env})
	handler := r.handler
	r.mu.Unlock()

	if handler == nil {
		return nil, nil
	}
	return handler(name, args)
}

func (r *fakeRunner) LookPath(file string) (string, error) {
	if r.missing[file] {
		return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + file, nil
}

func (r *fakeRunner) callsTo(name string) []runCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []runCall
	for _, c := range r.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// fakePrompter answers Confirm from a queue; an exhausted queue dismisses.
type fakePrompter struct {
	mu       sync.Mutex
	answers  []string
	asked    []string
	infos    []string
	errors   []string
	progress []int
}

func (p *fakePrompter) Confirm(ctx context.Context, message string, options ...string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, message)
	if len(p.answers) == 0 {
		return "", false
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, answer != ""
}

func (p *fakePrompter) ReportProgress(ctx context.Context, title string, attempt func(ctx context.Context, update ProgressFunc) error) error {
	return attempt(ctx, func(percent int, message string) {
		p.mu.Lock()
		p.progress = append(p.progress, percent)
		p.mu.Unlock()
	})
}

func (p *fakePrompter) Info(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = append(p.infos, message)
}

func (p *fakePrompter) Error(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, message)
}

// fakeSettings is a map-backed Settings.
type fakeSettings map[string]string

func (s fakeSettings) String(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

func (s fakeSettings) Bool(key string, def bool) bool {
	switch s[key] {
	case "true":
		return true
	case "false":
		return false
	default:
		return def
	}
}

type fakeStorage struct {
	path string
	err  error
}

func (s fakeStorage) PersistentStoragePath() (string, error) {
	return s.path, s.err
}

// versionOutput is what a working ffmpeg prints for -version.
func versionOutput(version string) []byte {
	return []byte(fmt.Sprintf("ffmpeg version %s Copyright (c) 2000-2024 the FFmpeg developers\nbuilt with gcc 13\n", version))
}
