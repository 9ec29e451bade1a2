package ai

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind categorizes an AI-service failure so callers can tell the user
// whether retrying makes sense.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindServer    Kind = "server"
	KindNetwork   Kind = "network"
	KindUnknown   Kind = "unknown"
)

// Error carries the failure category alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the user-facing description for this failure category.
func (e *Error) Message() string {
	switch e.Kind {
	case KindAuth:
		return "AI service authentication failed. Please contact support."
	case KindRateLimit:
		return "AI service is currently busy (rate limit). Please wait a moment and try again."
	case KindServer:
		return "AI service is temporarily unavailable. Please try again later."
	case KindNetwork:
		return "Unable to reach AI service. Please check your connection and try again."
	default:
		return "An unexpected error occurred while contacting the AI service. Please try again."
	}
}

// KindOf extracts the category from an error, or KindUnknown.
func KindOf(err error) Kind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return KindUnknown
}

// classify wraps a raw provider error into a categorized *Error. Provider
// SDKs surface HTTP failures as formatted strings, so categorization checks
// timeouts and network errors structurally and falls back to scanning for
// status codes.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsToken(msg, "401", "402", "403") ||
		containsAny(msg, "unauthorized", "invalid api key", "authentication", "permission denied", "payment required", "insufficient credits"):
		return &Error{Kind: KindAuth, Err: err}
	case containsToken(msg, "429") ||
		containsAny(msg, "rate limit", "quota exceeded", "too many requests", "overloaded"):
		return &Error{Kind: KindRateLimit, Err: err}
	case containsToken(msg, "500", "502", "503", "504") ||
		containsAny(msg, "internal server error", "bad gateway", "service unavailable"):
		return &Error{Kind: KindServer, Err: err}
	case containsToken(msg, "eof") ||
		containsAny(msg, "connection refused", "connection reset", "no such host", "timeout", "timed out"):
		return &Error{Kind: KindNetwork, Err: err}
	default:
		return &Error{Kind: KindUnknown, Err: err}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// containsToken matches tok only as a standalone word, so "500" matches
// "status code: 500" but not a model name like "gpt-500" or a URL path.
func containsToken(s string, tokens ...string) bool {
	for _, tok := range tokens {
		for from := 0; ; {
			i := strings.Index(s[from:], tok)
			if i < 0 {
				break
			}
			i += from
			end := i + len(tok)
			if (i == 0 || !isWordByte(s[i-1])) && (end == len(s) || !isWordByte(s[end])) {
				return true
			}
			from = i + 1
		}
	}
	return false
}

func isWordByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'a' && b <= 'z':
		return true
	case b == '-', b == '_', b == '.', b == '/':
		return true
	}
	return false
}
