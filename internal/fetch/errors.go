// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"fmt"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindTransport
	KindHTTPStatus
	KindMalformedJSON
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindMalformedJSON:
		return "malformed_json"
	default:
		return "unknown"
	}
}

// Error describes a failed fetch.
type Error struct {
	Kind Kind

	// StatusCode and BodySnippet are set for KindHTTPStatus.
	StatusCode  int
	BodySnippet string

	// Detail describes transport and decoding failures.
	Detail string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.BodySnippet != "" {
			return fmt.Sprintf("fetch: HTTP %d: %s", e.StatusCode, e.BodySnippet)
		}
		return fmt.Sprintf("fetch: HTTP %d", e.StatusCode)
	case KindTimeout:
		return "fetch: request timed out"
	default:
		return fmt.Sprintf("fetch: %s: %s", e.Kind, e.Detail)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed. Timeouts,
// transport failures, 5xx and 429 are transient; other statuses and
// undecodable bodies are not.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}
