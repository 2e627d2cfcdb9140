// Package pipeline orchestrates the full job lifecycle: session resolution,
// catalog search, state registration, transfer, and post-processing. Jobs run
// sequentially; items within a job run in parallel.
package pipeline

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/segmentio/ksuid"

	"satfetch/internal/app"
	"satfetch/internal/downloader"
	"satfetch/internal/search"
)

// ErrItemsFailed reports that the run completed but left failed items behind.
var ErrItemsFailed = errors.New("one or more items failed")

// Options tunes a run from the command line.
type Options struct {
	// DownloadOverride forces downloading on or off for every job when set.
	DownloadOverride *bool
	// LocalProcessorName selects the registered local post-process hook.
	LocalProcessorName string
	// RemoteProcessorName selects the registered remote post-process hook.
	RemoteProcessorName string
	// ShowProgress enables the console progress renderer.
	ShowProgress bool
	// BaseDir overrides the session home directory.
	BaseDir string
}

// Summary aggregates the outcome of one run.
type Summary struct {
	JobsRun     int
	ItemsFailed int
	Interrupted bool
}

// Runner executes every configured job once.
type Runner struct {
	app    *app.Context
	search *search.Service
	opts   Options

	mu          sync.Mutex
	active      *downloader.Service
	interrupted bool
}

// NewRunner wires a runner over a connected application context.
func NewRunner(appCtx *app.Context, opts Options) *Runner {
	return &Runner{
		app:    appCtx,
		search: search.NewService(appCtx.Catalog, appCtx.Logger),
		opts:   opts,
	}
}

// RequestShutdown flags the run as interrupted and forwards the request to
// the in-flight transfer engine, if any.
func (r *Runner) RequestShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted = true
	if r.active != nil {
		r.active.RequestShutdown()
	}
}

func (r *Runner) isInterrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// setActive publishes the current transfer engine so a signal arriving
// mid-transfer reaches it. An interrupt observed before publication is
// replayed immediately.
func (r *Runner) setActive(svc *downloader.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = svc
	if svc != nil && r.interrupted {
		svc.RequestShutdown()
	}
}

// Run executes every job in order. SIGINT and SIGTERM request a cooperative
// shutdown: in-flight transfers stop at the next chunk boundary and state
// rows keep their position for the next run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	log := r.app.Logger
	runID := ksuid.New().String()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			log.Warn("Shutdown requested, finishing current chunks")
			r.RequestShutdown()
		}
	}()

	summary := &Summary{}
	log.Info("Run %s: %d job(s)", runID, len(r.app.Config.Jobs))

	var jobErr error
	for _, job := range r.app.Config.Jobs {
		if r.isInterrupted() {
			break
		}
		if err := r.runJob(ctx, job, runID, summary); err != nil {
			log.Error("Job %q failed: %v", job.Name, err)
			jobErr = err
		}
		summary.JobsRun++
	}

	summary.Interrupted = r.isInterrupted()
	if jobErr != nil {
		return summary, jobErr
	}
	if summary.ItemsFailed > 0 {
		return summary, ErrItemsFailed
	}
	return summary, nil
}
