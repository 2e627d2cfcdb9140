package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"satfetch/internal/domain"
)

const itemColumns = `item_id, job_name, collection, size_kb, md5,
	bytes_downloaded, status, download_path, error_message, created_at, updated_at`

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Get returns the row for (itemID, jobName), or nil when absent.
func (s *StateStore) Get(itemID, jobName string) (*domain.ItemRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+itemColumns+` FROM items WHERE item_id = ? AND job_name = ? LIMIT 1`,
		itemID, jobName,
	)
	rec, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}
	return rec, nil
}

// Upsert inserts the record or updates every mutable field on conflict.
// created_at is set on first insert only; updated_at always advances.
func (s *StateStore) Upsert(rec *domain.ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowStamp()
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = domain.StatusPending
	}

	_, err := s.db.Exec(`
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, job_name) DO UPDATE SET
			collection = excluded.collection,
			size_kb = excluded.size_kb,
			md5 = excluded.md5,
			bytes_downloaded = excluded.bytes_downloaded,
			status = excluded.status,
			download_path = excluded.download_path,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		rec.ItemID, rec.JobName, rec.Collection, rec.SizeKB, rec.MD5,
		rec.BytesDone, string(rec.Status), rec.Path, rec.Error,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// StatusExtra carries optional column assignments for UpdateStatus.
type StatusExtra struct {
	Path      *string
	BytesDone *int64
	Error     *string
}

// UpdateStatus atomically sets the status, timestamp, and any extra columns.
func (s *StateStore) UpdateStatus(itemID, jobName string, status domain.ItemStatus, extra *StatusExtra) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := "status = ?, updated_at = ?"
	args := []any{string(status), nowStamp()}
	if extra != nil {
		if extra.Path != nil {
			set += ", download_path = ?"
			args = append(args, *extra.Path)
		}
		if extra.BytesDone != nil {
			set += ", bytes_downloaded = ?"
			args = append(args, *extra.BytesDone)
		}
		if extra.Error != nil {
			set += ", error_message = ?"
			args = append(args, *extra.Error)
		}
	}
	args = append(args, itemID, jobName)

	_, err := s.db.Exec(
		"UPDATE items SET "+set+" WHERE item_id = ? AND job_name = ?", args...)
	return err
}

// ByStatus returns every row of a job in the given status.
func (s *StateStore) ByStatus(jobName string, status domain.ItemStatus) ([]*domain.ItemRecord, error) {
	return s.queryItems(
		`SELECT `+itemColumns+` FROM items WHERE job_name = ? AND status = ?`,
		jobName, string(status),
	)
}

// All returns every row of a job.
func (s *StateStore) All(jobName string) ([]*domain.ItemRecord, error) {
	return s.queryItems(
		`SELECT `+itemColumns+` FROM items WHERE job_name = ?`, jobName)
}

// Resumable returns rows still needing a transfer: pending, downloading, or
// failed. Downloading is included because a killed process leaves rows in
// that state and they must be retried on the next run.
func (s *StateStore) Resumable(jobName string) ([]*domain.ItemRecord, error) {
	return s.queryItems(
		`SELECT `+itemColumns+` FROM items WHERE job_name = ? AND status IN (?, ?, ?)`,
		jobName,
		string(domain.StatusPending), string(domain.StatusDownloading), string(domain.StatusFailed),
	)
}

// ResetStale flips every downloading row of a job back to pending and
// returns the number of rows changed. Runs at session resume, before any
// download work starts.
func (s *StateStore) ResetStale(jobName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE items SET status = ?, updated_at = ? WHERE job_name = ? AND status = ?`,
		string(domain.StatusPending), nowStamp(), jobName, string(domain.StatusDownloading),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *StateStore) queryItems(query string, args ...any) ([]*domain.ItemRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.ItemRecord, error) {
	rec := &domain.ItemRecord{}
	var status string
	err := row.Scan(
		&rec.ItemID, &rec.JobName, &rec.Collection, &rec.SizeKB, &rec.MD5,
		&rec.BytesDone, &status, &rec.Path, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.ItemStatus(status)
	return rec, nil
}
