package classify

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"governor/pkg/llmerrors"
)

// RetryAfter extracts a server-hinted wait time from err. It checks the typed
// hint field of classified provider errors first, then the Retry-After response
// header of recognized SDK errors. Absent or unparsable hints yield ok=false;
// extraction never fails.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var perr *llmerrors.Error
	if errors.As(err, &perr) && perr.RetryAfter > 0 {
		return perr.RetryAfter, true
	}

	var hinter interface{ RetryAfterHint() time.Duration }
	if errors.As(err, &hinter) {
		if d := hinter.RetryAfterHint(); d > 0 {
			return d, true
		}
	}

	if header, ok := responseHeaderOf(err); ok {
		// Header lookup is case-insensitive via canonicalization.
		if d, ok := parseRetryAfter(header.Get("Retry-After")); ok {
			return d, true
		}
	}

	return 0, false
}

// responseHeaderOf returns the HTTP response headers attached to typed SDK errors.
func responseHeaderOf(err error) (http.Header, bool) {
	var aerr *anthropic.Error
	if errors.As(err, &aerr) && aerr.Response != nil {
		return aerr.Response.Header, true
	}

	var oerr *openai.Error
	if errors.As(err, &oerr) && oerr.Response != nil {
		return oerr.Response.Header, true
	}

	return nil, false
}

// parseRetryAfter parses a Retry-After value as a floating-point second count,
// falling back to the HTTP-date form.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}

	return 0, false
}
