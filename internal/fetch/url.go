// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"net/url"
	"strings"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

const (
	keySegment = "/key/"
	redacted   = "***"
)

// BuildURL renders the simdasi datasource URL for target:
//
//	{base}/interoperabilitas/datasource/simdasi/id/{source}/tahun/{year}/id_tabel/{table}/wilayah/{region}/key/{apiKey}
func BuildURL(base string, target types.Target, apiKey string) string {
	target = target.WithDefaults()
	if base == "" {
		base = types.DefaultBaseURL
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString("/interoperabilitas/datasource/simdasi")
	for _, seg := range [][2]string{
		{"id", target.SourceID},
		{"tahun", target.Year},
		{"id_tabel", target.TableID},
		{"wilayah", target.Region},
		{"key", apiKey},
	} {
		b.WriteString("/")
		b.WriteString(seg[0])
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg[1]))
	}
	return b.String()
}

// RedactURL replaces the API key path segment with "***". URLs without a key
// segment are returned unchanged.
func RedactURL(raw string) string {
	i := strings.LastIndex(raw, keySegment)
	if i < 0 {
		return raw
	}
	start := i + len(keySegment)
	end := len(raw)
	if j := strings.IndexAny(raw[start:], "/?#"); j >= 0 {
		end = start + j
	}
	return raw[:start] + redacted + raw[end:]
}
