package domain

import "errors"

// ErrInvalidInput marks malformed configuration or requests: missing config
// fields, unset environment variables, bisection without a time range.
// Fatal to the job, never retried.
var ErrInvalidInput = errors.New("invalid input")

// ErrTransient marks transfer and API failures worth retrying: connection
// resets, timeouts, incomplete reads, 5xx responses.
var ErrTransient = errors.New("transient transport error")

// ErrIntegrity indicates a digest mismatch on a completed transfer.
var ErrIntegrity = errors.New("integrity check failed")

// ErrCredentialsNotFound indicates no usable key/secret pair was discovered.
var ErrCredentialsNotFound = errors.New(
	"credentials not found: set SATFETCH_KEY and SATFETCH_SECRET, provide a .env file, or create ~/.satfetch/credentials")
