package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/logger"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of download retries
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent when no version is set
	DefaultUserAgent = "ffdep/dev"
	// DefaultProgressBudget is the share of the 0-100 scale reserved for the download
	DefaultProgressBudget = 80

	maxRedirects       = 10
	maxRemoteTextBytes = 1 << 20
)

// Downloader handles HTTP downloads with redirects, retries, and progress.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	budget    int
	backoff   func(attempt int) time.Duration
	onBytes   func(n int64)
	log       *logger.Logger
}

// DownloaderOption customizes a Downloader.
type DownloaderOption func(*Downloader)

// WithRetries sets how many times transient failures are retried.
func WithRetries(n int) DownloaderOption {
	return func(d *Downloader) { d.retries = n }
}

// WithUserAgent sets the User-Agent header sent on every request and
// redirect hop.
func WithUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) { d.client.Timeout = timeout }
}

// WithProgressBudget sets the top of the reported progress range.
func WithProgressBudget(budget int) DownloaderOption {
	return func(d *Downloader) { d.budget = budget }
}

// WithByteCounter registers a callback for every chunk written to disk.
func WithByteCounter(fn func(n int64)) DownloaderOption {
	return func(d *Downloader) { d.onBytes = fn }
}

// WithDownloadLogger sets the logger.
func WithDownloadLogger(l *logger.Logger) DownloaderOption {
	return func(d *Downloader) { d.log = l }
}

// NewDownloader creates a new downloader
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
			// Redirects are followed by open so every hop carries our headers
			// and is counted.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		budget:    DefaultProgressBudget,
		backoff: func(attempt int) time.Duration {
			// Exponential backoff: 1s, 2s, 4s
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
		onBytes: func(int64) {},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// redirectError stops a redirect chain that is too long.
type redirectError struct {
	hops int
}

func (e *redirectError) Error() string {
	return fmt.Sprintf("stopped after %d redirects", e.hops)
}

// progressTracker scales bytes into [0, budget] and reports each integer
// increase once. It is shared across retries and redirect hops so the
// reported sequence never regresses or repeats.
type progressTracker struct {
	budget int
	last   int
	fn     ProgressFunc
}

func (p *progressTracker) update(written, total int64) {
	if p.fn == nil || total <= 0 {
		return
	}
	pct := int(written * int64(p.budget) / total)
	if pct > p.budget {
		pct = p.budget
	}
	if pct > p.last {
		p.last = pct
		p.fn(pct, fmt.Sprintf("Downloading ffmpeg (%d%%)", pct))
	}
}

// Download fetches rawURL into dest. Transient failures are retried;
// cancellation removes any partial file and returns a KindCanceled error.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string, progress ProgressFunc) error {
	tracker := &progressTracker{budget: d.budget, fn: progress}
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return d.canceled(dest, ctx.Err())
		}

		if attempt > 0 {
			d.log.Debug("retrying download", zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				return d.canceled(dest, ctx.Err())
			}
		}

		err := d.downloadOnce(ctx, rawURL, dest, tracker)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return d.canceled(dest, ctx.Err())
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	return newError(KindNetwork, "download", fmt.Errorf("download %s: %w", rawURL, lastErr))
}

func (d *Downloader) canceled(dest string, cause error) error {
	os.Remove(dest + ".part")
	os.Remove(dest)
	return newError(KindCanceled, "download", cause)
}

// open issues a GET and follows redirects by re-issuing the request against
// the Location target.
func (d *Downloader) open(ctx context.Context, rawURL string, hops int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		location := resp.Header.Get("Location")
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if location == "" {
			return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		if hops >= maxRedirects {
			return nil, &redirectError{hops: hops}
		}

		next, err := resp.Request.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
		}

		d.log.Debug("following redirect", zap.String("from", rawURL), zap.String("to", next.String()))
		return d.open(ctx, next.String(), hops+1)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// downloadOnce performs a single download attempt
func (d *Downloader) downloadOnce(ctx context.Context, rawURL, destPath string, tracker *progressTracker) error {
	resp, err := d.open(ctx, rawURL, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".part"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return fmt.Errorf("write temp file: %w", err)
			}
			written += int64(n)
			d.onBytes(int64(n))
			tracker.update(written, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read response body: %w", readErr)
		}
	}

	if total > 0 && written != total {
		return fmt.Errorf("short body: got %d of %d bytes", written, total)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// FetchRemoteText returns the body of rawURL as text, or "" on any failure.
func (d *Downloader) FetchRemoteText(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	resp, err := d.open(ctx, rawURL, 0)
	if err != nil {
		d.log.Debug("remote text unavailable", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteTextBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

// checkArchiveContent rejects bodies that sniff as text, typically an HTML
// error or landing page served with a 200.
func checkArchiveContent(archivePath string) error {
	mime, err := mimetype.DetectFile(archivePath)
	if err != nil {
		return fmt.Errorf("detect file type: %w", err)
	}
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return fmt.Errorf("downloaded file is %s, not an archive", mime.String())
		}
	}
	return nil
}

// archiveNameFromURL derives a scratch file name from the last URL path segment.
func archiveNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return base
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
