package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satfetch/internal/domain"
	"satfetch/internal/logger"
)

// chdir moves into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envKey, "")
	t.Setenv(envSecret, "")
	t.Setenv(envValidity, "")
	os.Unsetenv(envKey)
	os.Unsetenv(envSecret)
	os.Unsetenv(envValidity)
}

func TestDiscoverFromEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(envKey, "env-key")
	t.Setenv(envSecret, "env-secret")
	t.Setenv(envValidity, "3600")

	creds, err := Discover(logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "env-key", creds.Key)
	assert.Equal(t, "env-secret", creds.Secret)
	assert.Equal(t, 3600, creds.Validity)
}

func TestDiscoverFromDotenv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	dotenv := "# comment line\n" +
		"SATFETCH_KEY=\"dotenv-key\"\n" +
		"SATFETCH_SECRET='dotenv-secret'\n" +
		"SATFETCH_TOKEN_VALIDITY=7200\n" +
		"not a kv line\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0600))
	chdir(t, dir)

	creds, err := Discover(logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", creds.Key)
	assert.Equal(t, "dotenv-secret", creds.Secret)
	assert.Equal(t, 7200, creds.Validity)
}

func TestDiscoverFromHomeFile(t *testing.T) {
	clearCredentialEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir()) // no .env here

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".satfetch"), 0700))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".satfetch", "credentials"),
		[]byte("file-key , file-secret\n"), 0600))

	creds, err := Discover(logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "file-key", creds.Key)
	assert.Equal(t, "file-secret", creds.Secret)
	assert.Equal(t, DefaultValidity, creds.Validity, "the credentials file never sets validity")
}

func TestDiscoverEnvWinsOverFile(t *testing.T) {
	clearCredentialEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".satfetch"), 0700))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".satfetch", "credentials"),
		[]byte("file-key,file-secret"), 0600))

	t.Setenv(envKey, "env-key")
	t.Setenv(envSecret, "env-secret")

	creds, err := Discover(logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "env-key", creds.Key)
}

func TestDiscoverNothingFound(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	_, err := Discover(logger.Discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCredentialsNotFound)
}

func TestValidityIgnoresGarbage(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(envKey, "k")
	t.Setenv(envSecret, "s")
	t.Setenv(envValidity, "not-a-number")

	creds, err := Discover(logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultValidity, creds.Validity)

	t.Setenv(envValidity, "-5")
	creds, err = Discover(logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultValidity, creds.Validity)
}

func TestTokenFetchAndCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "k", user)
		assert.Equal(t, "s", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "3600", r.PostForm.Get("validity"))

		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	}))
	defer srv.Close()

	tokens := NewToken(Credentials{Key: "k", Secret: "s", Validity: 3600}, srv.URL)

	tok, err := tokens.CurrentToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Cached until near expiry: no second request.
	tok, err = tokens.CurrentToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tokens := NewToken(Credentials{Key: "k", Secret: "s", Validity: 60}, srv.URL)
	_, err := tokens.CurrentToken()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
