// Package search layers collection lookup, counting, and product enumeration
// over the catalog client, including the time-range bisection that walks past
// the catalog's 10 000-results-per-query cap.
package search

import (
	"context"
	"fmt"
	"time"

	"satfetch/internal/catalog"
	"satfetch/internal/domain"
	"satfetch/internal/logger"
	"satfetch/internal/transport"
)

// QueryCap is the catalog's hard limit on results per single query.
const QueryCap = 10000

const (
	defaultRetries = 3
	defaultBackoff = 2 * time.Second
)

// Result is one completed search.
type Result struct {
	Total    int
	Products []*catalog.Product
	// Filters echoes the effective query parameters.
	Filters map[string]string
}

// Service wraps a catalog client with retry and bisection.
type Service struct {
	client  *catalog.Client
	log     *logger.Logger
	retries int
	backoff time.Duration
}

// NewService builds a search service with default retry policy.
func NewService(client *catalog.Client, log *logger.Logger) *Service {
	return &Service{
		client:  client,
		log:     log,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
}

// retry runs fn with bounded retries on transient failures, backing off
// backoff × 2^attempt between attempts.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !transport.IsTransient(lastErr) {
			return lastErr
		}
		if attempt < s.retries {
			wait := s.backoff * (1 << attempt)
			s.log.Warn("Search API error (attempt %d/%d): %v. Retrying in %s",
				attempt+1, s.retries+1, lastErr, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// ListCollections returns every collection with id and title.
func (s *Service) ListCollections(ctx context.Context) ([]catalog.CollectionSummary, error) {
	var out []catalog.CollectionSummary
	err := s.retry(ctx, func() error {
		var e error
		out, e = s.client.Collections(ctx)
		return e
	})
	return out, err
}

// CollectionInfo returns collection detail including allowed filters, which
// may be empty when the catalog does not disclose them.
func (s *Service) CollectionInfo(ctx context.Context, id string) (*catalog.CollectionDetail, error) {
	var out *catalog.CollectionDetail
	err := s.retry(ctx, func() error {
		var e error
		out, e = s.client.Collection(ctx, id)
		return e
	})
	return out, err
}

// Count returns the total matching items without fetching any.
func (s *Service) Count(ctx context.Context, collection string, filters domain.SearchFilters) (int, error) {
	var total int
	err := s.retry(ctx, func() error {
		var e error
		total, _, e = s.client.Search(ctx, collection, filters, 0)
		return e
	})
	return total, err
}

// Search runs one query. limit < 0 fetches everything the query returns.
func (s *Service) Search(ctx context.Context, collection string, filters domain.SearchFilters, limit int) (*Result, error) {
	var total int
	var products []*catalog.Product
	err := s.retry(ctx, func() error {
		var e error
		total, products, e = s.client.Search(ctx, collection, filters, limit)
		return e
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Search returned %d/%d products for %s", len(products), total, collection)

	effective := map[string]string{}
	for k, vs := range filters.Query() {
		if len(vs) > 0 {
			effective[k] = vs[0]
		}
	}
	return &Result{Total: total, Products: products, Filters: effective}, nil
}

// IterProducts enumerates every matching product, bisecting the time window
// whenever a single query would exceed QueryCap. Results come back in range
// order; limit < 0 means unlimited.
func (s *Service) IterProducts(ctx context.Context, collection string, filters domain.SearchFilters, limit int) ([]*catalog.Product, error) {
	total, err := s.Count(ctx, collection, filters)
	if err != nil {
		return nil, err
	}

	if total <= QueryCap {
		result, err := s.Search(ctx, collection, filters, limit)
		if err != nil {
			return nil, err
		}
		return result.Products, nil
	}

	s.log.Info("Total results (%d) exceeds %d, using date bisection", total, QueryCap)
	products, err := s.bisect(ctx, collection, filters)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// bisect recursively splits the time window at its midpoint until each half
// fits under the cap, then concatenates the halves in order.
func (s *Service) bisect(ctx context.Context, collection string, filters domain.SearchFilters) ([]*catalog.Product, error) {
	if filters.Start == nil || filters.End == nil {
		return nil, fmt.Errorf("%w: a time range (dtstart, dtend) is required to page past %d results",
			domain.ErrInvalidInput, QueryCap)
	}

	// A window that cannot shrink further is an immediate leaf, even when
	// its count sits above the cap.
	if !filters.End.After(*filters.Start) {
		result, err := s.Search(ctx, collection, filters, -1)
		if err != nil {
			return nil, err
		}
		return result.Products, nil
	}

	midpoint := filters.Start.Add(filters.End.Sub(*filters.Start) / 2)

	var products []*catalog.Product
	for _, half := range []domain.SearchFilters{
		filters.WithEnd(midpoint),
		filters.WithStart(midpoint),
	} {
		count, err := s.Count(ctx, collection, half)
		if err != nil {
			return nil, err
		}
		if count <= QueryCap {
			result, err := s.Search(ctx, collection, half, -1)
			if err != nil {
				return nil, err
			}
			products = append(products, result.Products...)
			continue
		}
		sub, err := s.bisect(ctx, collection, half)
		if err != nil {
			return nil, err
		}
		products = append(products, sub...)
	}
	return products, nil
}
