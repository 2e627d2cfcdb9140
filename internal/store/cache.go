package store

import (
	"fmt"
	"time"

	"satfetch/internal/domain"
)

// CacheSearchResults bulk-upserts minimal metadata for every discovered item,
// so a resumed session can recognize its work scope without re-searching.
func (s *StateStore) CacheSearchResults(products []domain.CatalogItem, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO search_cache
			(item_id, collection, size_kb, sensing_start, sensing_end, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := nowStamp()
	for _, p := range products {
		var start, end string
		if t := p.SensingStart(); !t.IsZero() {
			start = t.UTC().Format(time.RFC3339)
		}
		if t := p.SensingEnd(); !t.IsZero() {
			end = t.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.Exec(p.ID(), collection, p.SizeKB(), start, end, now); err != nil {
			return fmt.Errorf("caching %s: %w", p.ID(), err)
		}
	}
	return tx.Commit()
}

// HasCachedSearch reports whether any search-cache rows exist.
func (s *StateStore) HasCachedSearch() (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM search_cache`).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CachedSearchResults returns every cached row.
func (s *StateStore) CachedSearchResults() ([]*domain.CacheRow, error) {
	rows, err := s.db.Query(`
		SELECT item_id, collection, size_kb, sensing_start, sensing_end, cached_at
		FROM search_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CacheRow
	for rows.Next() {
		r := &domain.CacheRow{}
		if err := rows.Scan(&r.ItemID, &r.Collection, &r.SizeKB, &r.SensingStart, &r.SensingEnd, &r.CachedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
