// Package filters holds the post-search filter registry. Built-ins register
// at init; user-supplied factories register under "module:factory" names at
// startup, replacing the dynamic imports a scripting runtime would do.
package filters

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"satfetch/internal/catalog"
	"satfetch/internal/domain"
)

// Filter narrows a product list after the catalog search.
type Filter func(products []*catalog.Product) []*catalog.Product

// Factory builds a Filter from the parameter bundle of a job's
// post_search_filter block.
type Factory func(params map[string]any) (Filter, error)

var (
	mu         sync.RWMutex
	registry   = map[string]Factory{}
	extensions = map[string]Factory{}
)

// Register adds a built-in filter factory.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// RegisterExtension adds a user filter under its "module:factory" name.
func RegisterExtension(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	extensions[name] = factory
}

// Build resolves a filter by type name. Names containing ':' are looked up
// in the extension registry; everything else must be a built-in.
func Build(typeName string, params map[string]any) (Filter, error) {
	mu.RLock()
	defer mu.RUnlock()

	if strings.Contains(typeName, ":") {
		if factory, ok := extensions[typeName]; ok {
			return factory(params)
		}
		return nil, fmt.Errorf("%w: post-search filter extension %q is not registered",
			domain.ErrInvalidInput, typeName)
	}

	factory, ok := registry[typeName]
	if !ok {
		names := make([]string, 0, len(registry))
		for name := range registry {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf(
			"%w: unknown post-search filter type %q (available built-ins: %s; custom filters use 'module:factory' names)",
			domain.ErrInvalidInput, typeName, strings.Join(names, ", "))
	}
	return factory(params)
}

// sampleInterval keeps the earliest product per fixed-width time bucket.
// Products are ordered by sensing start; the first in each bucket survives.
func sampleInterval(params map[string]any) (Filter, error) {
	hours, err := floatParam(params, "interval_hours")
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		return nil, fmt.Errorf("%w: interval_hours must be positive, got %v",
			domain.ErrInvalidInput, hours)
	}
	intervalSecs := hours * 3600.0

	return func(products []*catalog.Product) []*catalog.Product {
		if len(products) == 0 {
			return nil
		}
		ordered := make([]*catalog.Product, len(products))
		copy(ordered, products)
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].SensingStart().Before(ordered[j].SensingStart())
		})

		seen := map[int64]bool{}
		var out []*catalog.Product
		for _, p := range ordered {
			bucket := int64(math.Floor(float64(p.SensingStart().Unix()) / intervalSecs))
			if !seen[bucket] {
				seen[bucket] = true
				out = append(out, p)
			}
		}
		return out
	}, nil
}

func floatParam(params map[string]any, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing filter parameter %q", domain.ErrInvalidInput, key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: filter parameter %q must be a number, got %T",
			domain.ErrInvalidInput, key, raw)
	}
}

func init() {
	Register("sample_interval", sampleInterval)
}
