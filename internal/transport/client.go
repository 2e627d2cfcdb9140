// Package transport provides the authenticated read-only HTTP surface shared
// by the downloader, the catalog client, and the lazy remote view. Every
// request carries a bearer token; a 401 response triggers exactly one token
// refresh and retry, coordinated across concurrent callers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"satfetch/internal/auth"
)

// StatusError reports a non-success HTTP status from the remote.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d for %s", e.Code, e.URL)
}

// Info is the result of a Stat call.
type Info struct {
	URL  string
	Size int64
}

// Client is a read-only HTTP GET client with transparent bearer-token
// refresh. The refresh protocol: on 401, acquire the refresh mutex, re-read
// the token source, and skip the refresh if another caller already installed
// the same bearer value. Otherwise install the new header and discard the
// connection pool so the next request builds fresh connections.
type Client struct {
	tokens auth.TokenSource

	mu         sync.Mutex // refresh mutex; guards authHeader and pool swaps
	authHeader string
	httpClient *http.Client

	poolResets int // times the connection pool was invalidated
}

// New builds a client and primes the auth header so the very first request
// is already authenticated.
func New(tokens auth.TokenSource) (*Client, error) {
	tok, err := tokens.CurrentToken()
	if err != nil {
		return nil, fmt.Errorf("acquiring initial token: %w", err)
	}
	return &Client{
		tokens:     tokens,
		authHeader: "Bearer " + tok,
		httpClient: newHTTPClient(),
	}, nil
}

func newHTTPClient() *http.Client {
	// Per-request deadlines come from the caller's context; no client-wide
	// timeout, since payload streams may legitimately run for minutes.
	return &http.Client{Transport: &http.Transport{
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}}
}

func (c *Client) currentAuth() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authHeader
}

func (c *Client) currentClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

// refreshAuth re-reads the token source and swaps the connection pool.
// Idempotent under concurrent callers: everyone queued behind the mutex
// compares the stored header against the fresh token, so only the first
// caller performs the swap.
func (c *Client) refreshAuth() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.tokens.CurrentToken()
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	newAuth := "Bearer " + tok
	if c.authHeader == newAuth {
		return nil
	}

	c.authHeader = newAuth
	// Drop the pool rather than mutating live connections: idle conns are
	// closed and the next request negotiates from the updated header.
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	c.httpClient = newHTTPClient()
	c.poolResets++
	return nil
}

// do issues one GET/HEAD with the retry-once-on-401 policy. rangeHeader may
// be empty. URLs are used verbatim; pre-encoded paths are never re-encoded.
func (c *Client) do(ctx context.Context, method, rawURL, rangeHeader string) (*http.Response, error) {
	resp, err := c.once(ctx, method, rawURL, rangeHeader)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refreshAuth(); err != nil {
		return nil, err
	}
	return c.once(ctx, method, rawURL, rangeHeader)
}

func (c *Client) once(ctx context.Context, method, rawURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	// net/url keeps the original escaping in RawPath, so percent-encoded
	// catalog URLs round-trip untouched.
	req.Header.Set("Authorization", c.currentAuth())
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return c.currentClient().Do(req)
}

// get runs do and converts non-success statuses into *StatusError.
func (c *Client) get(ctx context.Context, rawURL, rangeHeader string) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, rangeHeader)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := resp.StatusCode
		resp.Body.Close()
		return nil, &StatusError{Code: code, URL: rawURL}
	}
	return resp, nil
}

// Open streams the object at rawURL from the beginning.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenFrom streams the object starting at offset via a byte-range request.
// The remote must honor Range; a 200 instead of 206 means it did not, and the
// stream is rejected so the caller can fall back to a full transfer.
func (c *Client) OpenFrom(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, error) {
	resp, err := c.get(ctx, rawURL, fmt.Sprintf("bytes=%d-", offset))
	if err != nil {
		return nil, err
	}
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("range request not honored for %s (status %d)", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// ReadRange fetches bytes [start, end) of the object.
func (c *Client) ReadRange(ctx context.Context, rawURL string, start, end int64) ([]byte, error) {
	if end <= start {
		return nil, nil
	}
	resp, err := c.get(ctx, rawURL, fmt.Sprintf("bytes=%d-%d", start, end-1))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Stat returns object metadata via HEAD.
func (c *Client) Stat(ctx context.Context, rawURL string) (Info, error) {
	resp, err := c.do(ctx, http.MethodHead, rawURL, "")
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Info{}, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	return Info{URL: rawURL, Size: resp.ContentLength}, nil
}

// Exists reports whether the object responds to HEAD. A 404 is a clean
// false; other failures propagate.
func (c *Client) Exists(ctx context.Context, rawURL string) (bool, error) {
	_, err := c.Stat(ctx, rawURL)
	if err == nil {
		return true, nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// List fetches a JSON array of names from rawURL.
func (c *Client) List(ctx context.Context, rawURL string) ([]string, error) {
	var names []string
	if err := c.GetJSON(ctx, rawURL, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.get(ctx, rawURL, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	return nil
}
