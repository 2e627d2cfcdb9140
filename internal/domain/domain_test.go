package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryKeyRoundtrip(t *testing.T) {
	key := EncodeEntryKey("PROD-1", "data/measurement.nc")
	id, entry := DecodeEntryKey(key)
	assert.Equal(t, "PROD-1", id)
	assert.Equal(t, "data/measurement.nc", entry)

	id, entry = DecodeEntryKey("PROD-2")
	assert.Equal(t, "PROD-2", id)
	assert.Empty(t, entry)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusVerified.Terminal())
	assert.True(t, StatusProcessed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDownloading.Terminal())
	assert.False(t, StatusFailed.Terminal(), "failed rows are retried on the next run")
}

func TestSearchFiltersQueryDropsUnset(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cycle := 42
	f := SearchFilters{Start: &start, Satellite: "S3B", Cycle: &cycle}

	q := f.Query()
	assert.Equal(t, "2024-05-01T00:00:00Z", q.Get("dtstart"))
	assert.Equal(t, "S3B", q.Get("sat"))
	assert.Equal(t, "42", q.Get("cycle"))
	assert.Equal(t, DefaultSort, q.Get("sort"))

	for _, absent := range []string{"dtend", "geo", "bbox", "orbit", "timeliness"} {
		_, ok := q[absent]
		assert.False(t, ok, "%s must be absent", absent)
	}
}

func TestWithStartEndAreCopies(t *testing.T) {
	f := SearchFilters{}
	mid := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	left := f.WithEnd(mid)
	right := f.WithStart(mid)

	assert.Nil(t, f.Start)
	assert.Nil(t, f.End)
	assert.Equal(t, mid, *left.End)
	assert.Equal(t, mid, *right.Start)
}
