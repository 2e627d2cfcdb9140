package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenSource yields the current bearer token. CurrentToken may block while a
// fresh token is fetched; callers on an event loop must bridge it off-thread.
type TokenSource interface {
	CurrentToken() (string, error)
}

// StaticToken is a fixed-value TokenSource, mainly for tests.
type StaticToken string

func (s StaticToken) CurrentToken() (string, error) { return string(s), nil }

// Token obtains bearer tokens from an OAuth2 client-credentials endpoint and
// caches them until expiry. Safe for concurrent use.
type Token struct {
	creds    Credentials
	tokenURL string
	client   *http.Client

	mu      sync.Mutex
	current string
	expiry  time.Time
}

// NewToken builds a token source against the given token endpoint.
func NewToken(creds Credentials, tokenURL string) *Token {
	return &Token{
		creds:    creds,
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// CurrentToken returns the cached token, requesting a new one when the cache
// is empty or within a minute of expiry.
func (t *Token) CurrentToken() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != "" && time.Until(t.expiry) > time.Minute {
		return t.current, nil
	}

	form := url.Values{
		"grant_type": {"client_credentials"},
		"validity":   {fmt.Sprintf("%d", t.creds.Validity)},
	}
	req, err := http.NewRequest(http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.creds.Key, t.creds.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	validity := tr.ExpiresIn
	if validity <= 0 {
		validity = t.creds.Validity
	}
	t.current = tr.AccessToken
	t.expiry = time.Now().Add(time.Duration(validity) * time.Second)
	return t.current, nil
}
