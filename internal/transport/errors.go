package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"satfetch/internal/domain"
)

// IsTransient classifies an error as worth retrying: connection failures,
// timeouts, incomplete reads, and server-side (5xx) or throttling responses.
// Client errors (4xx other than 408/429) and everything unknown are
// permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code >= 500:
			return true
		case se.Code == http.StatusTooManyRequests, se.Code == http.StatusRequestTimeout:
			return true
		}
		return false
	}

	return false
}
