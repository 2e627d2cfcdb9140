package pipeline

import (
	"context"
	"fmt"

	"satfetch/internal/catalog"
	"satfetch/internal/display"
	"satfetch/internal/domain"
	"satfetch/internal/downloader"
	"satfetch/internal/filters"
	"satfetch/internal/remote"
	"satfetch/internal/session"
	"satfetch/internal/store"
)

// runJob drives one job end to end: session, search scope, dispatch, and the
// failed-item tally.
func (r *Runner) runJob(ctx context.Context, job domain.Job, runID string, summary *Summary) error {
	log := r.app.Logger

	sess, err := session.New(job, r.opts.BaseDir)
	if err != nil {
		return err
	}
	if err := sess.Initialize(); err != nil {
		return err
	}

	if err := log.AttachFile(sess.LogPath()); err != nil {
		log.Warn("Could not attach session log %s: %v", sess.LogPath(), err)
	} else {
		defer log.DetachFile(sess.LogPath())
	}
	log.Info("Run %s: job %q, session %s (new=%v live=%v)", runID, job.Name, sess.ID, sess.IsNew, sess.IsLive)

	st, err := store.Open(sess.StatePath())
	if err != nil {
		return err
	}
	defer st.Close()

	if !sess.IsNew {
		n, err := st.ResetStale(job.Name)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("Reset %d stale downloading item(s) to pending", n)
		}
	}

	products, err := r.resolveProducts(ctx, sess, st, job)
	if err != nil {
		return err
	}
	if products == nil {
		log.Info("Session %s: nothing left to do", sess.ID)
		return nil
	}

	if err := r.dispatch(ctx, sess, st, job, products); err != nil {
		return err
	}

	failed, err := st.ByStatus(job.Name, domain.StatusFailed)
	if err != nil {
		return err
	}
	summary.ItemsFailed += len(failed)
	if len(failed) > 0 {
		log.Warn("Job %q finished with %d failed item(s)", job.Name, len(failed))
	}
	return nil
}

// resolveProducts determines the job's work scope. A resumed, non-live
// session with a cached search and no resumable rows returns (nil, nil):
// everything already settled and the catalog is not consulted at all.
func (r *Runner) resolveProducts(ctx context.Context, sess *session.Session, st *store.StateStore, job domain.Job) ([]*catalog.Product, error) {
	log := r.app.Logger

	limit := job.Limit
	if limit == 0 {
		limit = -1
	}

	if !sess.IsNew && !sess.IsLive {
		cached, err := st.HasCachedSearch()
		if err != nil {
			return nil, err
		}
		if cached {
			resumable, err := st.Resumable(job.Name)
			if err != nil {
				return nil, err
			}
			if len(resumable) == 0 {
				return nil, nil
			}
			log.Info("Resuming session %s: %d item(s) remain, re-fetching handles", sess.ID, len(resumable))

			products, err := r.search.IterProducts(ctx, job.Collection, job.Filters, limit)
			if err != nil {
				return nil, err
			}
			wanted := make(map[string]bool, len(resumable))
			for _, rec := range resumable {
				id, _ := domain.DecodeEntryKey(rec.ItemID)
				wanted[id] = true
			}
			var scoped []*catalog.Product
			for _, p := range products {
				if wanted[p.ID()] {
					scoped = append(scoped, p)
				}
			}
			return scoped, nil
		}
	}

	products, err := r.search.IterProducts(ctx, job.Collection, job.Filters, limit)
	if err != nil {
		return nil, err
	}

	if f := job.PostSearchFilter; f != nil {
		filter, err := filters.Build(f.Type, f.Params)
		if err != nil {
			return nil, err
		}
		before := len(products)
		products = filter(products)
		log.Info("Post-search filter %q: %d -> %d products", f.Type, before, len(products))
	}

	if err := st.CacheSearchResults(asItems(products), job.Collection); err != nil {
		return nil, err
	}
	return products, nil
}

// dispatch picks the execution mode: remote processing, download (with an
// optional local post-process pass), or state registration only.
func (r *Runner) dispatch(ctx context.Context, sess *session.Session, st *store.StateStore, job domain.Job, products []*catalog.Product) error {
	log := r.app.Logger

	downloadEnabled := job.Download.Enabled
	if r.opts.DownloadOverride != nil {
		downloadEnabled = *r.opts.DownloadOverride
	}

	if job.PostProcess.Enabled && job.PostProcess.Mode == "remote" {
		proc, err := r.remoteProcessor()
		if err != nil {
			log.Warn("Post-processing enabled but no remote processor available (%v); falling back to download only", err)
		} else {
			return r.runRemote(ctx, st, job, products, proc)
		}
	}

	if !downloadEnabled {
		svc := downloader.New(st, downloadDir(sess, job), job.Download, log)
		if err := svc.Register(ctx, asItems(products), job.Name, job.Collection); err != nil {
			return err
		}
		log.Info("Download disabled: registered %d item(s) without transferring", len(products))
		return nil
	}

	if err := r.runDownload(ctx, sess, st, job, products); err != nil {
		return err
	}

	if job.PostProcess.Enabled && job.PostProcess.Mode == "local" {
		return r.runLocalPostProcess(st, job)
	}
	return nil
}

func (r *Runner) runDownload(ctx context.Context, sess *session.Session, st *store.StateStore, job domain.Job, products []*catalog.Product) error {
	svc := downloader.New(st, downloadDir(sess, job), job.Download, r.app.Logger)
	if r.opts.ShowProgress {
		prog := display.NewProgress()
		svc.SetProgressSink(prog)
		defer prog.Close()
	}
	r.setActive(svc)
	defer r.setActive(nil)
	return svc.DownloadAll(ctx, asItems(products), job.Name, job.Collection)
}

// runLocalPostProcess pushes every verified row through the local hook:
// processing, then processed or failed. Hook errors fail the row, never the
// job.
func (r *Runner) runLocalPostProcess(st *store.StateStore, job domain.Job) error {
	log := r.app.Logger

	proc, err := r.localProcessor()
	if err != nil {
		log.Warn("Post-processing enabled but no local processor available (%v); leaving items verified", err)
		return nil
	}

	rows, err := st.ByStatus(job.Name, domain.StatusVerified)
	if err != nil {
		return err
	}
	for _, rec := range rows {
		if r.isInterrupted() {
			return nil
		}
		if err := st.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusProcessing, nil); err != nil {
			return err
		}
		if perr := proc(rec.Path, rec.ItemID); perr != nil {
			log.Error("Post-processing %s failed: %v", rec.ItemID, perr)
			msg := perr.Error()
			if err := st.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusFailed, &store.StatusExtra{Error: &msg}); err != nil {
				return err
			}
			continue
		}
		if err := st.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusProcessed, nil); err != nil {
			return err
		}
		log.Info("Processed %s", rec.ItemID)
	}
	return nil
}

// runRemote processes items in place over lazy views; nothing touches the
// local disk. Already-processed rows are skipped so a resumed session only
// works the remainder.
func (r *Runner) runRemote(ctx context.Context, st *store.StateStore, job domain.Job, products []*catalog.Product, proc filters.RemoteProcessor) error {
	log := r.app.Logger
	log.Info("Remote processing %d item(s)", len(products))

	for _, p := range products {
		if r.isInterrupted() {
			return nil
		}

		rec, err := st.Get(p.ID(), job.Name)
		if err != nil {
			return err
		}
		if rec != nil && rec.Status == domain.StatusProcessed {
			log.Info("Skipping already processed: %s", p.ID())
			continue
		}
		if rec == nil {
			rec = &domain.ItemRecord{
				ItemID:     p.ID(),
				JobName:    job.Name,
				Collection: job.Collection,
				SizeKB:     p.SizeKB(),
				MD5:        p.MD5(),
				Status:     domain.StatusPending,
			}
			if err := st.Upsert(rec); err != nil {
				return err
			}
		}

		if err := st.UpdateStatus(p.ID(), job.Name, domain.StatusProcessing, nil); err != nil {
			return err
		}

		view, verr := remote.BuildView(ctx, r.app.HTTP, p, job.Download.Entries)
		if verr == nil {
			verr = proc(view, p.ID())
		}
		if verr != nil {
			log.Error("Remote processing %s failed: %v", p.ID(), verr)
			msg := verr.Error()
			if err := st.UpdateStatus(p.ID(), job.Name, domain.StatusFailed, &store.StatusExtra{Error: &msg}); err != nil {
				return err
			}
			continue
		}
		if err := st.UpdateStatus(p.ID(), job.Name, domain.StatusProcessed, nil); err != nil {
			return err
		}
		log.Info("Processed %s", p.ID())
	}
	return nil
}

func (r *Runner) localProcessor() (filters.LocalProcessor, error) {
	if r.opts.LocalProcessorName == "" {
		return nil, fmt.Errorf("no --post-processor given")
	}
	return filters.ResolveLocalProcessor(r.opts.LocalProcessorName)
}

func (r *Runner) remoteProcessor() (filters.RemoteProcessor, error) {
	if r.opts.RemoteProcessorName == "" {
		return nil, fmt.Errorf("no --remote-processor given")
	}
	return filters.ResolveRemoteProcessor(r.opts.RemoteProcessorName)
}

func downloadDir(sess *session.Session, job domain.Job) string {
	if job.Download.Directory != "" {
		return job.Download.Directory
	}
	return sess.DownloadDir()
}

func asItems(products []*catalog.Product) []domain.CatalogItem {
	items := make([]domain.CatalogItem, len(products))
	for i, p := range products {
		items[i] = p
	}
	return items
}
