// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize reshapes a validated simdasi payload into the persisted
// document schema. It is a pure transformation: every value it cannot read
// becomes 0 and is counted in the accompanying Diagnostics.
package normalize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/IlhamRichie/bps-ingest/internal/validate"
	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// Run carries the per-run inputs that are not part of the payload.
type Run struct {
	Identity  types.Identity
	SourceURL string
	ScrapedAt time.Time
}

// Normalizer holds the externally configured mapping rules.
type Normalizer struct {
	// Variables maps variable-id to a human label. When empty, every
	// variable present on a record is parsed.
	Variables map[string]string

	// AggregateLabel names the national-total row, matched case-insensitively.
	AggregateLabel string

	ids []string
}

// New returns a Normalizer for the given variable map and aggregate label.
// An empty label falls back to types.DefaultAggregateLabel.
func New(variables map[string]string, aggregateLabel string) *Normalizer {
	if aggregateLabel == "" {
		aggregateLabel = types.DefaultAggregateLabel
	}
	ids := make([]string, 0, len(variables))
	for id := range variables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &Normalizer{Variables: variables, AggregateLabel: aggregateLabel, ids: ids}
}

// IsAggregate reports whether label names the aggregate row.
func (n *Normalizer) IsAggregate(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), strings.TrimSpace(n.AggregateLabel))
}

// Normalize builds the document for v. The same inputs always produce the
// same document.
func (n *Normalizer) Normalize(v *validate.Validated, run Run) (*types.IngestedDocument, *types.Diagnostics) {
	diag := &types.Diagnostics{}
	unmapped := map[string]struct{}{}

	records := make([]types.EntityRecord, 0, len(v.Entities))
	for _, e := range v.Entities {
		if n.IsAggregate(e.Label) {
			diag.SkippedAggregates++
			continue
		}

		rec := types.EntityRecord{
			Label:     e.Label,
			Variables: make(map[string]any, len(e.Variables)),
			Values:    make(map[string]float64),
		}
		for id, raw := range e.Variables {
			rec.Variables[id] = raw
			if len(n.ids) > 0 {
				if _, known := n.Variables[id]; !known {
					unmapped[id] = struct{}{}
				}
			}
		}

		for _, id := range n.idsFor(e) {
			raw, present := e.Variables[id]
			if !present {
				rec.Values[id] = 0
				n.miss(diag, id).Absent++
				continue
			}
			f, ok := extractValue(raw)
			if !ok {
				n.miss(diag, id).Unparseable++
			}
			rec.Values[id] = f
		}

		diag.Values += len(rec.Values)
		records = append(records, rec)
	}
	diag.Records = len(records)

	for _, m := range diag.MissingKeys {
		m.MissCount = m.Absent + m.Unparseable
	}
	diag.UnmappedKeys = sortedKeys(unmapped)
	if v.Table.Columns != nil {
		for _, id := range n.ids {
			if _, ok := v.Table.Columns[id]; !ok {
				diag.UndefinedKeys = append(diag.UndefinedKeys, id)
			}
		}
	}

	actualYear := render(v.Table.Year)
	doc := &types.IngestedDocument{
		ScrapedAtUTC: run.ScrapedAt.UTC().Truncate(time.Millisecond),
		SourceURL:    run.SourceURL,
		Identity:     run.Identity,
		ActualYear:   actualYear,
		Metadata: types.TableMetadata{
			Title:             render(v.Table.Title),
			Scope:             render(v.Table.Scope),
			RequestedYear:     run.Identity.RequestedYear,
			ActualYear:        actualYear,
			Source:            render(v.Table.Source),
			Notes:             render(v.Table.Notes),
			ColumnDefinitions: v.Table.Columns,
			PaginationCount:   v.Pagination.Count,
			PaginationPage:    v.Pagination.Page,
		},
		Records:       records,
		Diagnostics:   diag,
		SchemaVersion: types.SchemaVersion,
	}
	return doc, diag
}

// idsFor returns the variable-ids to emit for e: the configured ids, or the
// ids present on the record when nothing is configured.
func (n *Normalizer) idsFor(e validate.Entity) []string {
	if len(n.ids) > 0 {
		return n.ids
	}
	ids := make([]string, 0, len(e.Variables))
	for id := range e.Variables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (n *Normalizer) miss(d *types.Diagnostics, id string) *types.KeyMiss {
	if d.MissingKeys == nil {
		d.MissingKeys = make(map[string]*types.KeyMiss)
	}
	m, ok := d.MissingKeys[id]
	if !ok {
		m = &types.KeyMiss{Label: n.Variables[id]}
		d.MissingKeys[id] = m
	}
	return m
}

// render copies a descriptive field verbatim: strings as-is, numbers in
// shortest decimal form. Other types are dropped.
func render(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
