// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves statistics payloads from the BPS web API.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

const (
	maxBodyBytes   = 32 << 20
	maxSnippetSize = 512
)

// Client performs single GET attempts. It never retries; the caller decides.
type Client struct {
	HTTP      *http.Client
	UserAgent string

	// Limiter paces requests across runs sharing the client. Nil disables it.
	Limiter *rate.Limiter
}

// New returns a Client using http.DefaultTransport. Per-request timeouts are
// applied through the context passed to Fetch.
func New(cfg types.HTTPConfig) *Client {
	ua := cfg.UserAgent
	if ua == "" {
		ua = types.DefaultUserAgent
	}
	c := &Client{
		HTTP:      &http.Client{},
		UserAgent: ua,
	}
	if cfg.RateLimit > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// Fetch GETs url within timeout and decodes the JSON body.
//
// Failures are returned as *Error. If ctx itself is cancelled or expires,
// ctx.Err() is returned instead so callers can tell cancellation from a
// slow endpoint.
func (c *Client) Fetch(ctx context.Context, url string, timeout time.Duration) (types.RawPayload, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Error{Kind: KindTimeout, Detail: "rate limit: " + err.Error(), Err: err}
		}
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Detail: "creating request: " + err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippetSize))
		return nil, &Error{
			Kind:        KindHTTPStatus,
			StatusCode:  resp.StatusCode,
			BodySnippet: snippet(body),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &Error{Kind: KindMalformedJSON, Detail: err.Error(), Err: err}
	}
	return payload, nil
}

func (c *Client) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	detail := err.Error()
	// *url.Error carries the request URL, and with it the API key.
	var ue *neturl.Error
	if errors.As(err, &ue) {
		detail = ue.Op + " " + RedactURL(ue.URL) + ": " + ue.Err.Error()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Detail: detail, Err: err}
	}
	return &Error{Kind: KindTransport, Detail: detail, Err: err}
}

// snippet trims body to a printable single-line excerpt.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return strings.Join(strings.Fields(s), " ")
}
