// Package classify detects callee-side rate limiting in completion-provider
// errors and extracts server-hinted retry delays.
//
// Classification is a total function: malformed or unexpected error shapes
// degrade to "not rate-limited" rather than faulting the caller. Provider error
// vocabulary varies, so both the keyword list and the status-code set are
// configurable.
package classify

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	ollamaapi "github.com/ollama/ollama/api"
	"github.com/openai/openai-go"

	"governor/pkg/llmerrors"
)

// DefaultStatusCodes are the HTTP statuses treated as rate limiting or overload.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultStatusCodes = []int{429, 503}

// DefaultKeywords are matched case-insensitively against error messages.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultKeywords = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota exceeded",
	"throttled",
	"overloaded",
}

// Classifier decides whether a failure signals callee-side rate limiting.
// Immutable after construction, safe for concurrent use.
type Classifier struct {
	statusCodes map[int]bool
	keywords    []string
}

// New creates a classifier with the given status-code set and keyword list.
// Nil or empty slices fall back to the defaults.
func New(statusCodes []int, keywords []string) *Classifier {
	if len(statusCodes) == 0 {
		statusCodes = DefaultStatusCodes
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}

	codes := make(map[int]bool, len(statusCodes))
	for _, code := range statusCodes {
		codes[code] = true
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	return &Classifier{
		statusCodes: codes,
		keywords:    lowered,
	}
}

// Default returns a classifier with the default status codes and keywords.
func Default() *Classifier {
	return New(nil, nil)
}

// IsRateLimit reports whether err signals callee-side rate limiting or overload.
func (c *Classifier) IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is the caller going away, never callee backpressure.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Classified provider errors carry an explicit tag.
	var perr *llmerrors.Error
	if errors.As(err, &perr) {
		if perr.Type == llmerrors.ErrorTypeRateLimit {
			return true
		}
		if c.statusCodes[perr.StatusCode] {
			return true
		}
	}

	if code, ok := statusCodeOf(err); ok && c.statusCodes[code] {
		return true
	}

	return c.matchMessage(err.Error())
}

// statusCodeOf digs a numeric status code out of typed SDK errors.
func statusCodeOf(err error) (int, bool) {
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return aerr.StatusCode, true
	}

	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode, true
	}

	// Local runtimes throttle too: ollama surfaces 503 under load.
	var serr ollamaapi.StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode, true
	}

	var coder interface{ StatusCode() int }
	if errors.As(err, &coder) {
		return coder.StatusCode(), true
	}

	return 0, false
}

// matchMessage checks the error text for configured status codes and keywords.
func (c *Classifier) matchMessage(msg string) bool {
	lowered := strings.ToLower(msg)

	for code := range c.statusCodes {
		if strings.Contains(lowered, strconv.Itoa(code)) {
			return true
		}
	}

	for _, kw := range c.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
