// Package catalog is the typed client for the satellite-data catalog REST
// API. It adapts raw search responses into domain.CatalogItem handles backed
// by the shared token-refreshing transport.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"satfetch/internal/domain"
	"satfetch/internal/transport"
)

// Client talks to one catalog endpoint. All calls are read-only.
type Client struct {
	baseURL string
	http    *transport.Client
}

// NewClient builds a catalog client rooted at baseURL (no trailing slash).
func NewClient(baseURL string, http *transport.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

// CollectionSummary is one row of the collection listing.
type CollectionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CollectionDetail describes a collection, including the filter keys the
// catalog discloses for it. AllowedFilters may be empty.
type CollectionDetail struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Abstract       string   `json:"abstract"`
	AllowedFilters []string `json:"allowed_filters"`
}

type searchResponse struct {
	Total    int           `json:"total"`
	Products []productJSON `json:"products"`
}

type productJSON struct {
	ID           string  `json:"id"`
	SizeKB       float64 `json:"size"`
	MD5          string  `json:"md5"`
	URL          string  `json:"url"`
	SensingStart string  `json:"sensing_start"`
	SensingEnd   string  `json:"sensing_end"`
}

// Collections lists every collection.
func (c *Client) Collections(ctx context.Context) ([]CollectionSummary, error) {
	var out []CollectionSummary
	if err := c.http.GetJSON(ctx, c.baseURL+"/collections", &out); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return out, nil
}

// Collection fetches detail for one collection.
func (c *Client) Collection(ctx context.Context, id string) (*CollectionDetail, error) {
	var out CollectionDetail
	u := c.baseURL + "/collections/" + url.PathEscape(id)
	if err := c.http.GetJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("fetching collection %s: %w", id, err)
	}
	return &out, nil
}

// Search runs one catalog query. limit < 0 means no limit; limit == 0 asks
// for the total only and returns no products.
func (c *Client) Search(ctx context.Context, collection string, filters domain.SearchFilters, limit int) (int, []*Product, error) {
	q := filters.Query()
	q.Set("collection", collection)
	if limit >= 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp searchResponse
	u := c.baseURL + "/search?" + q.Encode()
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return 0, nil, fmt.Errorf("search failed: %w", err)
	}

	products := make([]*Product, 0, len(resp.Products))
	for _, pj := range resp.Products {
		products = append(products, newProduct(pj, c.http))
	}
	if limit >= 0 && len(products) > limit {
		products = products[:limit]
	}
	return resp.Total, products, nil
}
