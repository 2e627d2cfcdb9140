// Package downloader is the bounded-parallelism transfer engine: it moves
// catalog items to disk with byte-range resume, classified retry, streaming
// digest verification, and cooperative shutdown, recording every observable
// transition in the state store.
package downloader

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"satfetch/internal/domain"
	"satfetch/internal/logger"
	"satfetch/internal/store"
)

const chunkSize = 8 * 1024

var invalidFileChars = regexp.MustCompile(`[\\/:*?"<>|]`)

func sanitizeFileName(name string) string {
	return invalidFileChars.ReplaceAllString(name, "_")
}

// Service transfers a set of items into one directory with at most
// opts.Parallel in-flight transfers.
type Service struct {
	store *store.StateStore
	dir   string
	opts  domain.DownloadOptions
	log   *logger.Logger
	sink  ProgressSink

	shutdown atomic.Bool
}

// New builds a transfer engine over a borrowed state store and directory.
func New(st *store.StateStore, dir string, opts domain.DownloadOptions, log *logger.Logger) *Service {
	return &Service{store: st, dir: dir, opts: opts, log: log, sink: nopSink{}}
}

// SetProgressSink installs a progress renderer. Must be called before
// DownloadAll.
func (s *Service) SetProgressSink(sink ProgressSink) {
	if sink != nil {
		s.sink = sink
	}
}

// RequestShutdown asks in-flight work to stop at the next cooperative point:
// before dequeuing an item, between retry attempts, or between stream
// chunks. Rows keep their current status; the next run's stale reset
// returns them to pending.
func (s *Service) RequestShutdown() {
	s.shutdown.Store(true)
}

// DownloadAll registers the items (whole-product rows, or one row per
// matching sub-entry when glob patterns were configured), then transfers
// every resumable row.
func (s *Service) DownloadAll(ctx context.Context, products []domain.CatalogItem, jobName, collection string) error {
	if err := s.register(ctx, products, jobName, collection); err != nil {
		return err
	}

	toDownload, err := s.store.Resumable(jobName)
	if err != nil {
		return err
	}
	if len(toDownload) == 0 {
		s.log.Info("No items to download")
		return nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	s.checkDiskSpace(toDownload)

	productMap := make(map[string]domain.CatalogItem, len(products))
	for _, p := range products {
		productMap[p.ID()] = p
	}

	sem := semaphore.NewWeighted(int64(s.opts.Parallel))
	g, gctx := errgroup.WithContext(ctx)

	for _, rec := range toDownload {
		itemID, entry := domain.DecodeEntryKey(rec.ItemID)
		product, ok := productMap[itemID]
		if !ok {
			s.log.Warn("Item %s not found in search results, skipping", itemID)
			continue
		}
		rec := rec
		g.Go(func() error {
			return s.downloadOne(gctx, sem, product, entry, rec)
		})
	}
	return g.Wait()
}

// Register creates state rows for the products without transferring
// anything, for runs where downloading is disabled.
func (s *Service) Register(ctx context.Context, products []domain.CatalogItem, jobName, collection string) error {
	return s.register(ctx, products, jobName, collection)
}

// register creates pending rows for new work. Rows already verified or
// processed are left untouched and never retransferred.
func (s *Service) register(ctx context.Context, products []domain.CatalogItem, jobName, collection string) error {
	for _, product := range products {
		if s.opts.Entries != nil {
			entries, err := product.Entries(ctx)
			if err != nil {
				s.log.Warn("Could not list entries for %s, skipping: %v", product.ID(), err)
				continue
			}
			matching := matchEntries(entries, s.opts.Entries)
			if len(matching) == 0 {
				s.log.Warn("No entries matched patterns %v for %s", s.opts.Entries, product.ID())
				continue
			}
			for _, entry := range matching {
				key := domain.EncodeEntryKey(product.ID(), entry)
				if err := s.registerRow(key, jobName, collection, 0, ""); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.registerRow(product.ID(), jobName, collection, product.SizeKB(), product.MD5()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) registerRow(key, jobName, collection string, sizeKB float64, md5sum string) error {
	existing, err := s.store.Get(key, jobName)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status.Terminal() {
			s.log.Info("Skipping already %s: %s", existing.Status, key)
		}
		return nil
	}
	return s.store.Upsert(&domain.ItemRecord{
		ItemID:     key,
		JobName:    jobName,
		Collection: collection,
		SizeKB:     sizeKB,
		MD5:        md5sum,
		Status:     domain.StatusPending,
	})
}

// matchEntries filters entry names by glob patterns, matching both the full
// entry path and its basename.
func matchEntries(entries, patterns []string) []string {
	var out []string
	for _, entry := range entries {
		base := path.Base(entry)
		for _, pat := range patterns {
			full, _ := path.Match(pat, entry)
			short, _ := path.Match(pat, base)
			if full || short {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

// checkDiskSpace warns (never fails) when the filesystem looks too small for
// the remaining work. Entry rows carry no size so they contribute nothing.
func (s *Service) checkDiskSpace(records []*domain.ItemRecord) {
	var estimated int64
	for _, r := range records {
		estimated += int64(r.SizeKB * 1000)
	}
	if estimated <= 0 {
		return
	}
	free, err := freeBytes(s.dir)
	if err != nil {
		s.log.Debug("Disk space check failed for %s: %v", s.dir, err)
		return
	}
	if free < estimated {
		s.log.Warn("Low disk space: ~%.1f GB needed, %.1f GB free",
			float64(estimated)/1e9, float64(free)/1e9)
	}
}

// targetPath derives the on-disk location for a state row: the entry's
// basename in entry mode, the item id otherwise.
func (s *Service) targetPath(itemID, entry string) string {
	name := itemID
	if entry != "" {
		name = path.Base(entry)
	}
	return filepath.Join(s.dir, sanitizeFileName(name))
}
