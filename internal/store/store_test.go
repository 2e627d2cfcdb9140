package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satfetch/internal/domain"
)

func openTestStore(t *testing.T) *StateStore {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestUpsertGetRoundtrip(t *testing.T) {
	st := openTestStore(t)

	rec := &domain.ItemRecord{
		ItemID:     "PROD-001",
		JobName:    "job-a",
		Collection: "COLL",
		SizeKB:     1234.5,
		MD5:        "abc123",
		Status:     domain.StatusPending,
	}
	require.NoError(t, st.Upsert(rec))

	got, err := st.Get("PROD-001", "job-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PROD-001", got.ItemID)
	assert.Equal(t, "COLL", got.Collection)
	assert.Equal(t, 1234.5, got.SizeKB)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.NotEmpty(t, got.CreatedAt)

	// Absent rows come back nil without error.
	missing, err := st.Get("PROD-001", "other-job")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	st := openTestStore(t)

	rec := &domain.ItemRecord{ItemID: "p", JobName: "j", Status: domain.StatusPending}
	require.NoError(t, st.Upsert(rec))
	created := rec.CreatedAt

	time.Sleep(5 * time.Millisecond)
	rec2 := &domain.ItemRecord{ItemID: "p", JobName: "j", Status: domain.StatusDownloading, CreatedAt: created}
	require.NoError(t, st.Upsert(rec2))

	got, err := st.Get("p", "j")
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, domain.StatusDownloading, got.Status)
}

func TestUpdateStatusExtras(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.Upsert(&domain.ItemRecord{ItemID: "p", JobName: "j"}))

	path := "/tmp/p.dat"
	bytes := int64(4096)
	require.NoError(t, st.UpdateStatus("p", "j", domain.StatusDownloaded,
		&StatusExtra{Path: &path, BytesDone: &bytes}))

	got, err := st.Get("p", "j")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloaded, got.Status)
	assert.Equal(t, path, got.Path)
	assert.Equal(t, bytes, got.BytesDone)

	msg := "md5 digest mismatch"
	require.NoError(t, st.UpdateStatus("p", "j", domain.StatusFailed, &StatusExtra{Error: &msg}))
	got, err = st.Get("p", "j")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, msg, got.Error)
}

func TestResumableIncludesDownloading(t *testing.T) {
	st := openTestStore(t)

	statuses := map[string]domain.ItemStatus{
		"a": domain.StatusPending,
		"b": domain.StatusDownloading,
		"c": domain.StatusFailed,
		"d": domain.StatusVerified,
		"e": domain.StatusProcessed,
	}
	for id, status := range statuses {
		require.NoError(t, st.Upsert(&domain.ItemRecord{ItemID: id, JobName: "j", Status: status}))
	}

	rows, err := st.Resumable("j")
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, r := range rows {
		ids[r.ItemID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ids)
}

func TestResetStale(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.Upsert(&domain.ItemRecord{ItemID: "a", JobName: "j", Status: domain.StatusDownloading}))
	require.NoError(t, st.Upsert(&domain.ItemRecord{ItemID: "b", JobName: "j", Status: domain.StatusDownloading}))
	require.NoError(t, st.Upsert(&domain.ItemRecord{ItemID: "c", JobName: "j", Status: domain.StatusVerified}))
	require.NoError(t, st.Upsert(&domain.ItemRecord{ItemID: "x", JobName: "other", Status: domain.StatusDownloading}))

	n, err := st.ResetStale("j")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := st.ByStatus("j", domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// Other jobs and terminal rows stay put.
	other, err := st.ByStatus("other", domain.StatusDownloading)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	n, err = st.ResetStale("j")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type cacheItem struct {
	id     string
	sizeKB float64
	start  time.Time
}

func (c cacheItem) ID() string                                { return c.id }
func (c cacheItem) SizeKB() float64                           { return c.sizeKB }
func (c cacheItem) MD5() string                               { return "" }
func (c cacheItem) BaseURL() string                           { return "" }
func (c cacheItem) SensingStart() time.Time                   { return c.start }
func (c cacheItem) SensingEnd() time.Time                     { return c.start.Add(time.Minute) }
func (c cacheItem) Entries(context.Context) ([]string, error) { return nil, nil }
func (c cacheItem) Open(context.Context, string, int64) (io.ReadCloser, error) {
	return nil, nil
}

func TestSearchCacheRoundtrip(t *testing.T) {
	st := openTestStore(t)

	has, err := st.HasCachedSearch()
	require.NoError(t, err)
	assert.False(t, has)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []domain.CatalogItem{
		cacheItem{id: "p1", sizeKB: 100, start: start},
		cacheItem{id: "p2", sizeKB: 200, start: start.Add(time.Hour)},
	}
	require.NoError(t, st.CacheSearchResults(items, "COLL"))

	has, err = st.HasCachedSearch()
	require.NoError(t, err)
	assert.True(t, has)

	rows, err := st.CachedSearchResults()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byID := map[string]*domain.CacheRow{}
	for _, r := range rows {
		byID[r.ItemID] = r
	}
	assert.Equal(t, "COLL", byID["p1"].Collection)
	assert.Equal(t, 100.0, byID["p1"].SizeKB)
	assert.Equal(t, "2024-03-01T12:00:00Z", byID["p1"].SensingStart)

	// Re-caching the same ids replaces rather than duplicates.
	require.NoError(t, st.CacheSearchResults(items, "COLL"))
	rows, err = st.CachedSearchResults()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
