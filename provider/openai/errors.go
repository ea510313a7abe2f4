package openai

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/spetersoncode/longform"
)

// wrapError categorizes an OpenAI SDK error by status code so the retry
// package can tell transient failures apart. Non-API errors pass through.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	code := apiErr.StatusCode
	msg := "openai: " + http.StatusText(code)
	if delay := parseRetryAfter(apiErr.Response); delay > 0 && (code == http.StatusTooManyRequests || code >= 500) {
		return longform.NewTransientErrorWithRetry(msg, code, delay, err)
	}
	return longform.NewStatusError(msg, code, err)
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is absent or unparsable.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
