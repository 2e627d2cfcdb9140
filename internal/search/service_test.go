package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satfetch/internal/auth"
	"satfetch/internal/catalog"
	"satfetch/internal/domain"
	"satfetch/internal/logger"
	"satfetch/internal/transport"
)

// fakeCatalog serves /search over a fixed set of sensing timestamps. The
// window is half-open: dtstart <= t < dtend.
type fakeCatalog struct {
	stamps   []time.Time
	searches atomic.Int64 // queries with limit != 0
	counts   atomic.Int64 // count-only queries (limit == 0)
	lastQ    atomic.Value // url.Values of the last search
}

func (f *fakeCatalog) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f.lastQ.Store(q)

		start, end := time.Time{}, time.Time{}
		if v := q.Get("dtstart"); v != "" {
			start, _ = time.Parse(time.RFC3339, v)
		}
		if v := q.Get("dtend"); v != "" {
			end, _ = time.Parse(time.RFC3339, v)
		}

		type prod struct {
			ID           string  `json:"id"`
			Size         float64 `json:"size"`
			URL          string  `json:"url"`
			SensingStart string  `json:"sensing_start"`
		}
		var matched []prod
		for i, ts := range f.stamps {
			if !start.IsZero() && ts.Before(start) {
				continue
			}
			if !end.IsZero() && !ts.Before(end) {
				continue
			}
			matched = append(matched, prod{
				ID:           fmt.Sprintf("P%05d", i),
				Size:         10,
				URL:          "http://payload/" + fmt.Sprintf("P%05d", i),
				SensingStart: ts.Format(time.RFC3339),
			})
		}

		total := len(matched)
		limit := -1
		if v := q.Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		if limit == 0 {
			f.counts.Add(1)
			matched = nil
		} else {
			f.searches.Add(1)
			if limit > 0 && len(matched) > limit {
				matched = matched[:limit]
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"total": total, "products": matched})
	}
}

func newTestService(t *testing.T, fc *fakeCatalog) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fc.handler())
	t.Cleanup(srv.Close)

	httpClient, err := transport.New(auth.StaticToken("tok"))
	require.NoError(t, err)
	svc := NewService(catalog.NewClient(srv.URL, httpClient), logger.Discard())
	svc.backoff = time.Millisecond
	return svc, srv
}

// uniform fills [base, base+span) with n evenly spaced stamps.
func uniform(base time.Time, span time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	step := span / time.Duration(n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * step)
	}
	return out
}

func TestSearchQueryShape(t *testing.T) {
	fc := &fakeCatalog{stamps: uniform(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 3)}
	svc, _ := newTestService(t, fc)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	filters := domain.SearchFilters{Start: &start, End: &end, Satellite: "S3A"}

	result, err := svc.Search(context.Background(), "COLL", filters, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Products, 3)

	q := fc.lastQ.Load().(url.Values)
	assert.Equal(t, "COLL", q.Get("collection"))
	assert.Equal(t, "S3A", q.Get("sat"))
	assert.Equal(t, domain.DefaultSort, q.Get("sort"))
	// Unset filters never reach the wire.
	_, hasGeo := q["geo"]
	assert.False(t, hasGeo)
	_, hasLimit := q["limit"]
	assert.False(t, hasLimit, "unlimited search sends no limit param")
}

func TestCountFetchesNothing(t *testing.T) {
	fc := &fakeCatalog{stamps: uniform(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 7)}
	svc, _ := newTestService(t, fc)

	total, err := svc.Count(context.Background(), "COLL", domain.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.EqualValues(t, 1, fc.counts.Load())
	assert.EqualValues(t, 0, fc.searches.Load())
}

func TestIterProductsDirectUnderCap(t *testing.T) {
	fc := &fakeCatalog{stamps: uniform(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 50)}
	svc, _ := newTestService(t, fc)

	products, err := svc.IterProducts(context.Background(), "COLL", domain.SearchFilters{}, -1)
	require.NoError(t, err)
	assert.Len(t, products, 50)
	assert.EqualValues(t, 1, fc.searches.Load(), "under the cap a single query suffices")
}

func TestIterProductsLimit(t *testing.T) {
	fc := &fakeCatalog{stamps: uniform(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 50)}
	svc, _ := newTestService(t, fc)

	products, err := svc.IterProducts(context.Background(), "COLL", domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Len(t, products, 5)
}

func TestIterProductsBisection(t *testing.T) {
	// 20 000 results against a 10 000 cap: 15 000 in the first half-day force
	// a second split, the 5 000 in the second half-day fit directly. The
	// window walk must yield every item exactly once, in range order.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamps := append(
		uniform(base, 12*time.Hour, 15000),
		uniform(base.Add(12*time.Hour), 12*time.Hour, 5000)...,
	)
	fc := &fakeCatalog{stamps: stamps}
	svc, _ := newTestService(t, fc)

	start := base
	end := base.Add(24 * time.Hour)
	filters := domain.SearchFilters{Start: &start, End: &end}

	products, err := svc.IterProducts(context.Background(), "COLL", filters, -1)
	require.NoError(t, err)
	assert.Len(t, products, 20000)
	assert.GreaterOrEqual(t, fc.searches.Load(), int64(3), "at least three leaf windows")

	// No duplicates, and ids in range order.
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		require.False(t, seen[p.ID()], "duplicate %s", p.ID())
		seen[p.ID()] = true
		if i > 0 {
			assert.False(t, p.SensingStart().Before(products[i-1].SensingStart()),
				"out of order at %d", i)
		}
	}
}

func TestIterProductsBisectionNeedsRange(t *testing.T) {
	fc := &fakeCatalog{stamps: uniform(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour, 20000)}
	svc, _ := newTestService(t, fc)

	_, err := svc.IterProducts(context.Background(), "COLL", domain.SearchFilters{}, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "time range")
}

func TestBisectZeroWidthWindowIsLeaf(t *testing.T) {
	// Every stamp identical: splitting cannot reduce the count, so the
	// degenerate window must resolve as a single leaf query instead of
	// recursing forever.
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamps := make([]time.Time, 11000)
	for i := range stamps {
		stamps[i] = at
	}
	fc := &fakeCatalog{stamps: stamps}
	svc, _ := newTestService(t, fc)

	start, end := at, at
	filters := domain.SearchFilters{Start: &start, End: &end}

	products, err := svc.bisect(context.Background(), "COLL", filters)
	require.NoError(t, err)
	// The fake's window is half-open, so [at, at) matches nothing; the point
	// is termination, not the count.
	assert.Empty(t, products)
	assert.EqualValues(t, 1, fc.searches.Load())
}

func TestRetryOnTransient(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"total": 0, "products": []any{}})
	}))
	defer srv.Close()

	httpClient, err := transport.New(auth.StaticToken("tok"))
	require.NoError(t, err)
	svc := NewService(catalog.NewClient(srv.URL, httpClient), logger.Discard())
	svc.backoff = time.Millisecond

	total, err := svc.Count(context.Background(), "COLL", domain.SearchFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.EqualValues(t, 2, calls.Load())
}
