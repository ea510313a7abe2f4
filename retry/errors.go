package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/spetersoncode/longform"
)

// statusCoder is implemented by the OpenAI and Anthropic SDK errors.
type statusCoder interface {
	StatusCode() int
}

// transientPatterns are matched against lowercased error messages when no
// structured information is available.
var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"server error",
	"bad gateway",
	"resource_exhausted",
	"unavailable",
}

// IsTransient reports whether err is worth retrying.
//
// A longform.CategorizedError is authoritative. Otherwise the check falls
// back to heuristics: HTTP 429 and 5xx status codes, network timeouts,
// connection resets and well-known message patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ce longform.CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == longform.ErrorTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() > 0 {
		return isTransientStatusCode(sc.StatusCode())
	}

	return isTransientNetworkError(err)
}

func isTransientStatusCode(code int) bool {
	return code == 429 || (code >= 500 && code < 600)
}

func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
