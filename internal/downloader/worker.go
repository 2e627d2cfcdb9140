package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"satfetch/internal/domain"
	"satfetch/internal/store"
	"satfetch/internal/transport"
)

// downloadOne drives a single row through the status machine: downloading →
// downloaded → verified, or failed. Transient errors retry with exponential
// backoff; anything else fails the row immediately. Sibling items are never
// affected.
func (s *Service) downloadOne(ctx context.Context, sem *semaphore.Weighted, product domain.CatalogItem, entry string, rec *domain.ItemRecord) error {
	if s.shutdown.Load() {
		return nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil // context cancelled while queued
	}
	defer sem.Release(1)
	defer s.sink.ItemFinished(rec.ItemID)

	target := s.targetPath(product.ID(), entry)
	s.sink.ItemStarted(rec.ItemID, int64(rec.SizeKB*1000))

	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if s.shutdown.Load() {
			return nil
		}

		if err := s.store.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusDownloading, nil); err != nil {
			return err
		}

		itemCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		completed, err := s.transfer(itemCtx, product, entry, target, rec)
		cancel()

		if err == nil {
			if !completed {
				// Shutdown observed mid-stream: partial file stays on disk,
				// row stays downloading for the next run's stale reset.
				return nil
			}
			return s.finish(product, entry, target, rec)
		}

		if !transport.IsTransient(err) {
			s.log.Error("Failed to download %s: %v", rec.ItemID, err)
			return s.markFailed(rec, err.Error())
		}

		if attempt < s.opts.MaxRetries {
			wait := s.opts.RetryBackoff * (1 << attempt)
			s.log.Warn("Retryable error downloading %s (attempt %d/%d): %v. Retrying in %s",
				rec.ItemID, attempt+1, s.opts.MaxRetries+1, err, wait)
			s.sink.ItemAdvanced(rec.ItemID, -1)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		s.log.Error("Failed to download %s after %d attempts: %v",
			rec.ItemID, s.opts.MaxRetries+1, err)
		return s.markFailed(rec,
			fmt.Sprintf("failed after %d attempts: %v", s.opts.MaxRetries+1, err))
	}
	return nil
}

// finish records a clean transfer and runs verification where it applies.
func (s *Service) finish(product domain.CatalogItem, entry, target string, rec *domain.ItemRecord) error {
	info, err := os.Stat(target)
	if err != nil {
		return s.markFailed(rec, fmt.Sprintf("stat after transfer: %v", err))
	}
	size := info.Size()
	if err := s.store.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusDownloaded,
		&store.StatusExtra{Path: &target, BytesDone: &size}); err != nil {
		return err
	}

	// The published digest covers the whole product, so entry transfers are
	// never verified against it.
	if s.opts.VerifyMD5 && entry == "" {
		ok, err := s.verifyMD5(product, target)
		if err != nil {
			return s.markFailed(rec, fmt.Sprintf("verification read failed: %v", err))
		}
		if !ok {
			// A mismatch taints every local byte, including any resumed
			// prefix: drop the file so the next run re-transfers from zero.
			if rmErr := os.Remove(target); rmErr != nil {
				s.log.Warn("Could not remove corrupt file %s: %v", target, rmErr)
			}
			return s.markFailed(rec, "md5 digest mismatch")
		}
	}
	return s.store.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusVerified, nil)
}

func (s *Service) markFailed(rec *domain.ItemRecord, msg string) error {
	return s.store.UpdateStatus(rec.ItemID, rec.JobName, domain.StatusFailed,
		&store.StatusExtra{Error: &msg})
}

// transfer streams the payload to target, resuming from an existing partial
// file when enabled. Returns completed=false without error when shutdown was
// observed between chunks.
func (s *Service) transfer(ctx context.Context, product domain.CatalogItem, entry, target string, rec *domain.ItemRecord) (bool, error) {
	var offset int64
	if s.opts.Resume {
		if info, err := os.Stat(target); err == nil {
			offset = info.Size()
		}
	}

	if offset > 0 {
		s.log.Info("Resuming %s from %d bytes", rec.ItemID, offset)
		stream, err := product.Open(ctx, entry, offset)
		if err == nil {
			defer stream.Close()
			f, err := os.OpenFile(target, os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return false, err
			}
			defer f.Close()
			s.sink.ItemAdvanced(rec.ItemID, offset)
			return s.streamToFile(ctx, stream, f, rec)
		}
		// Any failure of the range request falls back to a full transfer.
		s.log.Info("Byte-range resume not supported for %s, restarting: %v", rec.ItemID, err)
		s.sink.ItemAdvanced(rec.ItemID, -1)
	}

	stream, err := product.Open(ctx, entry, 0)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	f, err := os.Create(target)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return s.streamToFile(ctx, stream, f, rec)
}

// streamToFile copies in fixed chunks, checking the shutdown flag between
// chunks so a signal never waits on more than one read.
func (s *Service) streamToFile(ctx context.Context, stream io.Reader, f *os.File, rec *domain.ItemRecord) (bool, error) {
	buf := make([]byte, chunkSize)
	for {
		if s.shutdown.Load() {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return false, werr
			}
			s.sink.ItemAdvanced(rec.ItemID, int64(n))
		}
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
}

// verifyMD5 streams the finished file through MD5 and compares it with the
// catalog digest. A missing digest skips verification and counts as success.
// Pure check: a mismatch never triggers a retry.
func (s *Service) verifyMD5(product domain.CatalogItem, target string) (bool, error) {
	expected := product.MD5()
	if expected == "" {
		s.log.Warn("No MD5 available for %s, skipping verification", product.ID())
		return true, nil
	}

	f, err := os.Open(target)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	computed := hex.EncodeToString(h.Sum(nil))
	if computed != expected {
		s.log.Error("MD5 mismatch for %s: expected %s, got %s", target, expected, computed)
		return false, nil
	}
	s.log.Info("MD5 verified: %s", target)
	return true, nil
}
