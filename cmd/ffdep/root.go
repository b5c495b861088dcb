package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/binary"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/logger"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/metrics"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/platform"
	"github.com/ZebulonRouseFrantzich/ffdep/internal/settings"
)

// errReported marks failures the prompter has already shown.
var errReported = errors.New("already reported")

const rootDesc = `ffdep finds, downloads, and verifies the ffmpeg executable.

Configuration is read from config.yaml in the --config directory, the
current directory, or the per-user config directory, and from FFDEP_*
environment variables (for example FFDEP_FFMPEG_PATH).`

type rootOptions struct {
	configDir string
	assumeYes bool
	logLevel  string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// detector is swapped in tests.
	detector platform.Detector
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCmdWithOptions(&rootOptions{in: in, out: out, errOut: errOut, detector: platform.NewDetector()})
}

func newRootCmdWithOptions(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ffdep",
		Short:         "manage the ffmpeg dependency",
		Long:          rootDesc,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(o.in)
	cmd.SetOut(o.out)
	cmd.SetErr(o.errOut)

	f := cmd.PersistentFlags()
	f.StringVar(&o.configDir, "config", "", "directory containing config.yaml")
	f.BoolVarP(&o.assumeYes, "yes", "y", false, "answer every prompt with its first choice")
	f.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLocateCmd(o),
		newInstallCmd(o),
		newVersionCmd(o),
		newEnsureCmd(o),
		newCatalogCmd(o),
	)

	return cmd
}

// app is everything a command needs, built from settings.
type app struct {
	settings *settings.Settings
	log      *logger.Logger
	metrics  *metrics.Prom
	info     *platform.Info
	catalog  *binary.Catalog
	manager  *binary.Manager
}

func (o *rootOptions) setup(ctx context.Context) (*app, error) {
	s, err := settings.LoadWithPath(o.configDir)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		if err := s.Set(settings.KeyLogLevel, o.logLevel); err != nil {
			return nil, err
		}
	}
	cfg := s.Config()

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	info, err := o.detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}

	catalog := binary.DefaultCatalog()
	if cfg.Catalog.Overrides != "" {
		catalog, err = binary.LoadCatalogOverrides(ctx, cfg.Catalog.Overrides, catalog, info)
		if err != nil {
			return nil, err
		}
	}

	prom := metrics.NewProm("ffdep")
	runner := binary.ExecRunner{}
	prompter := newTerminalPrompter(o.in, o.errOut, isInteractive(o.in), o.assumeYes)

	manager, err := binary.NewManager(binary.Config{
		Platform: info,
		Prompter: prompter,
		Settings: s,
		Storage:  s,
		Runner:   runner,
		Catalog:  catalog,
		Downloader: binary.NewDownloader(
			binary.WithUserAgent("ffdep/"+Version),
			binary.WithRetries(cfg.Download.Retries),
			binary.WithTimeout(cfg.Download.TimeoutDuration()),
			binary.WithByteCounter(prom.AddDownloadedBytes),
			binary.WithDownloadLogger(log),
		),
		Extractor: binary.NewExtractor(cfg.Extract.Mode, runner, info),
		Verifier:  binary.NewVerifier(cfg.Verify.Keyring),
		Metrics:   prom,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		settings: s,
		log:      log,
		metrics:  prom,
		info:     info,
		catalog:  catalog,
		manager:  manager,
	}, nil
}

// close exports metrics when a textfile is configured and flushes the log.
func (a *app) close() {
	if path := a.settings.Config().Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("export metrics", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// run builds the app, calls fn, and tears the app down.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func isInteractive(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
