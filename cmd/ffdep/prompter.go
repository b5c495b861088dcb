package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/binary"
)

// terminalPrompter implements binary.Prompter on a line-oriented terminal.
// Without a terminal every prompt is dismissed unless assumeYes is set, in
// which case the first option is chosen.
type terminalPrompter struct {
	mu          sync.Mutex
	in          io.Reader
	out         io.Writer
	interactive bool
	assumeYes   bool

	// lines is fed by a single reader goroutine and closed at EOF.
	readOnce sync.Once
	lines    chan string
}

func newTerminalPrompter(in io.Reader, out io.Writer, interactive, assumeYes bool) *terminalPrompter {
	return &terminalPrompter{
		in:          in,
		out:         out,
		interactive: interactive,
		assumeYes:   assumeYes,
		lines:       make(chan string),
	}
}

// readLines starts the reader goroutine on first use. A line left unclaimed
// by a canceled prompt answers the next one.
func (p *terminalPrompter) readLines() <-chan string {
	p.readOnce.Do(func() {
		go func() {
			defer close(p.lines)
			scanner := bufio.NewScanner(p.in)
			for scanner.Scan() {
				p.lines <- strings.TrimSpace(scanner.Text())
			}
		}()
	})
	return p.lines
}

// Confirm prints message with numbered options and reads a choice. An empty
// line, EOF, or an invalid answer dismisses the prompt.
func (p *terminalPrompter) Confirm(ctx context.Context, message string, options ...string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, message)

	if len(options) == 0 {
		return "", false
	}
	if p.assumeYes {
		fmt.Fprintf(p.out, "  -> %s (--yes)\n", options[0])
		return options[0], true
	}
	if !p.interactive {
		fmt.Fprintln(p.out, "  -> dismissed (no terminal; pass --yes to accept)")
		return "", false
	}

	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(p.out, "Choice: ")

	select {
	case answer, ok := <-p.readLines():
		if !ok {
			return "", false
		}
		return pickOption(answer, options)
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", false
	}
}

// pickOption accepts a 1-based index or an option name (case-insensitive).
func pickOption(answer string, options []string) (string, bool) {
	if answer == "" {
		return "", false
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1], true
		}
		return "", false
	}
	for _, opt := range options {
		if strings.EqualFold(opt, answer) {
			return opt, true
		}
	}
	return "", false
}

// ReportProgress renders a 0-100 bar while attempt runs.
func (p *terminalPrompter) ReportProgress(ctx context.Context, title string, attempt func(ctx context.Context, update binary.ProgressFunc) error) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(title),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetVisibility(p.interactive),
		progressbar.OptionClearOnFinish(),
	)

	err := attempt(ctx, func(percent int, message string) {
		bar.Describe(message)
		_ = bar.Set(percent)
	})

	if err == nil {
		_ = bar.Finish()
	} else {
		_ = bar.Clear()
	}
	return err
}

func (p *terminalPrompter) Info(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, message)
}

func (p *terminalPrompter) Error(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "Error: %s\n", message)
}
