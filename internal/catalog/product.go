package catalog

import (
	"context"
	"io"
	"net/url"
	"time"

	"satfetch/internal/transport"
)

// Product is the concrete domain.CatalogItem backed by the catalog REST API.
// The payload lives at the product URL; sub-entries are addressed as
// <url>/entry?name=<escaped-name>.
type Product struct {
	id           string
	sizeKB       float64
	md5          string
	baseURL      string
	sensingStart time.Time
	sensingEnd   time.Time

	http *transport.Client
}

// NewProduct builds a product handle directly, for callers that already hold
// the metadata.
func NewProduct(id string, sizeKB float64, md5, baseURL string, start, end time.Time, http *transport.Client) *Product {
	return &Product{
		id:           id,
		sizeKB:       sizeKB,
		md5:          md5,
		baseURL:      baseURL,
		sensingStart: start,
		sensingEnd:   end,
		http:         http,
	}
}

func newProduct(pj productJSON, http *transport.Client) *Product {
	p := &Product{
		id:      pj.ID,
		sizeKB:  pj.SizeKB,
		md5:     pj.MD5,
		baseURL: pj.URL,
		http:    http,
	}
	// Missing or malformed timestamps degrade to zero values; the pipeline
	// treats those as absent metadata.
	if t, err := time.Parse(time.RFC3339, pj.SensingStart); err == nil {
		p.sensingStart = t
	}
	if t, err := time.Parse(time.RFC3339, pj.SensingEnd); err == nil {
		p.sensingEnd = t
	}
	return p
}

func (p *Product) ID() string              { return p.id }
func (p *Product) SizeKB() float64         { return p.sizeKB }
func (p *Product) MD5() string             { return p.md5 }
func (p *Product) BaseURL() string         { return p.baseURL }
func (p *Product) SensingStart() time.Time { return p.sensingStart }
func (p *Product) SensingEnd() time.Time   { return p.sensingEnd }

// Entries lists the named sub-entries of the product.
func (p *Product) Entries(ctx context.Context) ([]string, error) {
	return p.http.List(ctx, p.baseURL+"/entries")
}

// EntryURL derives the payload URL for one entry ("" addresses the whole
// product).
func (p *Product) EntryURL(entry string) string {
	if entry == "" {
		return p.baseURL
	}
	return p.baseURL + "/entry?name=" + url.QueryEscape(entry)
}

// Open streams the payload, optionally from a byte offset.
func (p *Product) Open(ctx context.Context, entry string, offset int64) (io.ReadCloser, error) {
	u := p.EntryURL(entry)
	if offset > 0 {
		return p.http.OpenFrom(ctx, u, offset)
	}
	return p.http.Open(ctx, u)
}
