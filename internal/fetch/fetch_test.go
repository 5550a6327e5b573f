// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

const samplePayload = `{
  "status": "OK",
  "data-availability": "available",
  "data": [
    {"page": 1, "pages": 1, "count": 2},
    {"judul_tabel": "Pencari Kerja Terdaftar", "data": [{"label": "ACEH", "variables": {}}]}
  ]
}`

func newClient() *Client {
	return New(types.HTTPConfig{UserAgent: "bps-ingest-test"})
}

func asFetchError(t *testing.T, err error) *Error {
	t.Helper()
	var fe *Error
	require.True(t, errors.As(err, &fe), "expected *fetch.Error, got %T: %v", err, err)
	return fe
}

func TestFetch_Success(t *testing.T) {
	var gotUA, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, samplePayload)
	}))
	defer ts.Close()

	raw, err := newClient().Fetch(context.Background(), ts.URL, time.Second)
	require.NoError(t, err)

	top, ok := raw.(map[string]any)
	require.True(t, ok)
	data, ok := top["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
	assert.Equal(t, "bps-ingest-test", gotUA)
	assert.Equal(t, "application/json", gotAccept)
}

func TestFetch_HTTPStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"not found", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"too many requests", http.StatusTooManyRequests, true},
		{"internal error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "  upstream\n says no  ")
			}))
			defer ts.Close()

			_, err := newClient().Fetch(context.Background(), ts.URL, time.Second)
			fe := asFetchError(t, err)
			assert.Equal(t, KindHTTPStatus, fe.Kind)
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, "upstream says no", fe.BodySnippet)
			assert.Equal(t, tt.retryable, fe.Retryable())
		})
	}
}

func TestFetch_SnippetIsBounded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, strings.Repeat("x", 4096))
	}))
	defer ts.Close()

	_, err := newClient().Fetch(context.Background(), ts.URL, time.Second)
	fe := asFetchError(t, err)
	assert.Len(t, fe.BodySnippet, maxSnippetSize)
}

func TestFetch_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer ts.Close()

	_, err := newClient().Fetch(context.Background(), ts.URL, time.Second)
	fe := asFetchError(t, err)
	assert.Equal(t, KindMalformedJSON, fe.Kind)
	assert.False(t, fe.Retryable())
}

func TestFetch_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	_, err := newClient().Fetch(context.Background(), ts.URL, 20*time.Millisecond)
	fe := asFetchError(t, err)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.True(t, fe.Retryable())
}

func TestFetch_Transport(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newClient().Fetch(context.Background(), url+"/data/key/s3cr3t", time.Second)
	fe := asFetchError(t, err)
	assert.Equal(t, KindTransport, fe.Kind)
	assert.True(t, fe.Retryable())
	assert.NotEmpty(t, fe.Detail)
	assert.NotContains(t, fe.Error(), "s3cr3t")
	assert.Contains(t, fe.Error(), "/key/***")
}

func TestFetch_ParentCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, samplePayload)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient().Fetch(ctx, ts.URL, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	var fe *Error
	assert.False(t, errors.As(err, &fe))
}

func TestBuildURL(t *testing.T) {
	target := types.Target{TableID: "TE9UUDFUV3Bpa3ovMHJJVGtuUHZVdz09", Year: "2024"}
	got := BuildURL("https://webapi.bps.go.id/v1/api/", target, "secret-key")
	assert.Equal(t,
		"https://webapi.bps.go.id/v1/api/interoperabilitas/datasource/simdasi/id/25/tahun/2024/id_tabel/TE9UUDFUV3Bpa3ovMHJJVGtuUHZVdz09/wilayah/0000000/key/secret-key",
		got)

	got = BuildURL("", types.Target{TableID: "a/b", Year: "2023", SourceID: "26", Region: "3200000"}, "k")
	assert.Equal(t,
		types.DefaultBaseURL+"/interoperabilitas/datasource/simdasi/id/26/tahun/2023/id_tabel/a%2Fb/wilayah/3200000/key/k",
		got)
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://x/api/id/25/key/abc123", "https://x/api/id/25/key/***"},
		{"https://x/api/key/abc123/", "https://x/api/key/***/"},
		{"https://x/api/key/abc123?lang=id", "https://x/api/key/***?lang=id"},
		{"https://x/api/no-key-here", "https://x/api/no-key-here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactURL(tt.in))
	}

	full := BuildURL("", types.Target{TableID: "t", Year: "2024"}, "very-secret")
	assert.NotContains(t, RedactURL(full), "very-secret")
}

func TestFetch_RateLimit(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, samplePayload)
	}))
	defer ts.Close()

	c := New(types.HTTPConfig{RateLimit: 1})
	require.NotNil(t, c.Limiter)

	_, err := c.Fetch(context.Background(), ts.URL, time.Second)
	require.NoError(t, err)

	// The bucket is empty; a deadline shorter than the refill fails without a request.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, ts.URL, time.Second)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	assert.Nil(t, New(types.HTTPConfig{}).Limiter)
}
