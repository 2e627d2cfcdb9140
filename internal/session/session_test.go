package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satfetch/internal/domain"
)

func testJob() domain.Job {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	return domain.Job{
		Name:       "jan-backfill",
		Collection: "SAT:COLL-1A",
		Filters:    domain.SearchFilters{Start: &start, End: &end},
		Download:   domain.DefaultDownloadOptions(),
	}
}

func TestComputeIDDeterministic(t *testing.T) {
	id1, err := ComputeID(testJob())
	require.NoError(t, err)
	id2, err := ComputeID(testJob())
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 12)
}

func TestComputeIDSensitivity(t *testing.T) {
	base, err := ComputeID(testJob())
	require.NoError(t, err)

	changed := testJob()
	changed.Download.Parallel = 8
	other, err := ComputeID(changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	// Limit participates in identity too.
	limited := testJob()
	limited.Limit = 10
	otherLimit, err := ComputeID(limited)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherLimit)
}

func TestNewFlags(t *testing.T) {
	dir := t.TempDir()

	s, err := New(testJob(), dir)
	require.NoError(t, err)
	assert.True(t, s.IsNew)
	assert.False(t, s.IsLive, "a window ending in 2024 is not live")

	require.NoError(t, s.Initialize())

	again, err := New(testJob(), dir)
	require.NoError(t, err)
	assert.False(t, again.IsNew)
	assert.Equal(t, s.ID, again.ID)
}

func TestLiveness(t *testing.T) {
	now := time.Now().UTC()

	openEnded := testJob()
	openEnded.Filters.End = nil
	assert.True(t, checkLive(openEnded, now))

	recent := testJob()
	end := now.Add(-time.Hour)
	recent.Filters.End = &end
	assert.True(t, checkLive(recent, now), "window ending within the horizon is live")

	settled := testJob()
	old := now.Add(-LiveHorizon - time.Hour)
	settled.Filters.End = &old
	assert.False(t, checkLive(settled, now))
}

func TestInitializeFreezesConfigOnce(t *testing.T) {
	dir := t.TempDir()

	s, err := New(testJob(), dir)
	require.NoError(t, err)
	require.NoError(t, s.Initialize())

	frozen, err := os.ReadFile(s.ConfigPath())
	require.NoError(t, err)
	require.NotEmpty(t, frozen)

	// A second Initialize must not rewrite the frozen config.
	require.NoError(t, os.WriteFile(s.ConfigPath(), []byte("sentinel"), 0644))
	require.NoError(t, s.Initialize())
	after, err := os.ReadFile(s.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(after))
}

func TestDirLayout(t *testing.T) {
	s, err := New(testJob(), "/base")
	require.NoError(t, err)

	assert.Equal(t, "/base/sessions/"+s.ID, s.Dir())
	assert.Equal(t, s.Dir()+"/state.db", s.StatePath())
	assert.Equal(t, s.Dir()+"/session.log", s.LogPath())
	// Collection names with path separators are sanitized for the downloads dir.
	assert.NotContains(t, s.DownloadDir(), "SAT:COLL")
	assert.Contains(t, s.DownloadDir(), "SAT_COLL-1A")
}
