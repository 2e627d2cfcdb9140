// Package cli wires the cobra command tree. Commands stay thin: they parse
// flags, assemble the application context, and delegate to the pipeline.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"satfetch/internal/app"
	"satfetch/internal/config"
	"satfetch/internal/domain"
	"satfetch/internal/logger"
	"satfetch/internal/pipeline"
)

// RootOpts holds the global CLI options.
type RootOpts struct {
	Config   string
	LogLevel string
	Quiet    bool
}

// errInterrupted marks a run cut short by SIGINT/SIGTERM.
var errInterrupted = errors.New("interrupted")

// Execute runs the CLI and returns the command error, if any.
func Execute(version string) error {
	ro := &RootOpts{}

	root := &cobra.Command{
		Use:           "satfetch",
		Short:         "Resumable bulk downloader for satellite-data catalogs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&ro.Config, "config", "c", "", "Path to the YAML job config")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Suppress the progress display")

	root.AddCommand(
		newCollectionsCmd(ro),
		newInfoCmd(ro),
		newSearchCmd(ro),
		newDownloadCmd(ro),
		newRunCmd(ro),
	)
	return root.Execute()
}

// ExitCode maps a command error to the process exit status: 0 success,
// 2 configuration or usage errors, 130 interrupted, 1 everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return 130
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrCredentialsNotFound):
		return 2
	default:
		return 1
	}
}

// loadConfig reads the config file, or falls back to the built-in defaults
// when allowMissing is set and no file was given.
func (ro *RootOpts) loadConfig(allowMissing bool) (*config.Config, error) {
	if ro.Config == "" {
		if allowMissing {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("%w: a config file is required (use -c)", domain.ErrInvalidInput)
	}
	return config.Load(ro.Config)
}

// buildContext assembles a connected application context.
func (ro *RootOpts) buildContext(allowMissingConfig bool) (*app.Context, error) {
	cfg, err := ro.loadConfig(allowMissingConfig)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if ro.LogLevel != "" {
		level = ro.LogLevel
	}
	log, err := logger.New(cfg.Logging.File, logger.ParseLevel(level), true)
	if err != nil {
		return nil, err
	}

	appCtx := app.NewContext(cfg, log)
	if err := appCtx.Connect(); err != nil {
		log.Close()
		return nil, err
	}
	return appCtx, nil
}

// runPipeline executes the configured jobs and folds the summary into the
// command error.
func (ro *RootOpts) runPipeline(cmd *cobra.Command, opts pipeline.Options) error {
	appCtx, err := ro.buildContext(false)
	if err != nil {
		return err
	}
	defer appCtx.Logger.Close()

	opts.ShowProgress = !ro.Quiet
	runner := pipeline.NewRunner(appCtx, opts)
	summary, err := runner.Run(cmd.Context())
	if summary != nil && summary.Interrupted {
		return errInterrupted
	}
	return err
}
