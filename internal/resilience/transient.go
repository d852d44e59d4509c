// Package resilience wraps outbound calls (page fetches, model requests)
// with retry and per-host circuit breaking.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient marks an error as safe to retry, optionally carrying the HTTP
// status that caused it.
type Transient struct {
	Err    error
	Status int
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// MarkTransient wraps err as retryable. Status may be 0 for non-HTTP causes.
func MarkTransient(err error, status int) *Transient {
	return &Transient{Err: err, Status: status}
}

// Retryable reports whether err is worth retrying: an explicit Transient in
// the chain, a network timeout, a broken connection, or a known flaky
// failure mode stringly reported by an HTTP client.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var t *Transient
	if errors.As(err, &t) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"unexpected eof",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status is a transient server-side
// condition.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
