// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the bps-ingest pipeline:
// the configuration tree and the persisted document schema.
package types

import (
	"sort"
	"time"
)

// SchemaVersion tags documents produced by the current normalization rules.
// Bump it whenever value parsing, aggregate filtering or the document shape
// changes so consumers can tell documents apart.
const SchemaVersion = "2"

// RawPayload is the untyped JSON tree received from the statistics API:
// map[string]any, []any, string, float64, bool or nil.
type RawPayload = any

// Identity addresses one logical dataset snapshot. At most one live document
// exists per identity.
type Identity struct {
	TableID       string `json:"tableId" yaml:"table_id" bson:"tableId"`
	RequestedYear string `json:"requestedYear" yaml:"requested_year" bson:"requestedYear"`
}

// Key returns a stable string form used for run locks and logging.
func (id Identity) Key() string {
	return id.TableID + "/" + id.RequestedYear
}

// TableMetadata holds the descriptive fields of a statistics table. Absent
// fields stay empty and are omitted when persisted.
type TableMetadata struct {
	Title         string `json:"title,omitempty" yaml:"title,omitempty" bson:"title,omitempty"`
	Scope         string `json:"scope,omitempty" yaml:"scope,omitempty" bson:"scope,omitempty"`
	RequestedYear string `json:"requestedYear,omitempty" yaml:"requested_year,omitempty" bson:"requestedYear,omitempty"`
	ActualYear    string `json:"actualYear,omitempty" yaml:"actual_year,omitempty" bson:"actualYear,omitempty"`
	Source        string `json:"source,omitempty" yaml:"source,omitempty" bson:"source,omitempty"`
	Notes         string `json:"notes,omitempty" yaml:"notes,omitempty" bson:"notes,omitempty"`

	// ColumnDefinitions maps variable-id to the upstream variable metadata
	// object, copied verbatim.
	ColumnDefinitions map[string]any `json:"columnDefinitions,omitempty" yaml:"column_definitions,omitempty" bson:"columnDefinitions,omitempty"`

	PaginationCount *int `json:"paginationCount,omitempty" yaml:"pagination_count,omitempty" bson:"paginationCount,omitempty"`
	PaginationPage  *int `json:"paginationPage,omitempty" yaml:"pagination_page,omitempty" bson:"paginationPage,omitempty"`
}

// EntityRecord is one row of the dataset, typically one province.
type EntityRecord struct {
	Label string `json:"label" yaml:"label" bson:"label"`

	// Variables holds the upstream value-objects keyed by variable-id, as received.
	Variables map[string]any `json:"variables" yaml:"variables" bson:"variables"`

	// Values holds the parsed numeric value for each variable-id. Degraded
	// values are 0 and reported in Diagnostics.
	Values map[string]float64 `json:"values" yaml:"values" bson:"values"`
}

// KeyMiss counts extraction misses for one variable-id.
type KeyMiss struct {
	Label       string `json:"label,omitempty" yaml:"label,omitempty" bson:"label,omitempty"`
	MissCount   int    `json:"missCount" yaml:"miss_count" bson:"missCount"`
	Absent      int    `json:"absent" yaml:"absent" bson:"absent"`
	Unparseable int    `json:"unparseable" yaml:"unparseable" bson:"unparseable"`
}

// Diagnostics reports how faithfully raw values were mapped during
// normalization. A non-empty report means upstream drift is degrading
// numeric output.
type Diagnostics struct {
	Records           int                 `json:"records" yaml:"records" bson:"records"`
	Values            int                 `json:"values" yaml:"values" bson:"values"`
	SkippedAggregates int                 `json:"skippedAggregates" yaml:"skipped_aggregates" bson:"skippedAggregates"`
	MissingKeys       map[string]*KeyMiss `json:"missingKeys,omitempty" yaml:"missing_keys,omitempty" bson:"missingKeys,omitempty"`

	// UnmappedKeys lists variable-ids present in the data that are not in the
	// configured variable map.
	UnmappedKeys []string `json:"unmappedKeys,omitempty" yaml:"unmapped_keys,omitempty" bson:"unmappedKeys,omitempty"`

	// UndefinedKeys lists configured variable-ids missing from the table's
	// column definitions.
	UndefinedKeys []string `json:"undefinedKeys,omitempty" yaml:"undefined_keys,omitempty" bson:"undefinedKeys,omitempty"`
}

// Empty reports whether no value was degraded.
func (d *Diagnostics) Empty() bool {
	return d == nil || len(d.MissingKeys) == 0
}

// Misses returns the total number of degraded values.
func (d *Diagnostics) Misses() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, m := range d.MissingKeys {
		n += m.MissCount
	}
	return n
}

// DegradedFraction returns the share of emitted values that fell back to 0.
func (d *Diagnostics) DegradedFraction() float64 {
	if d == nil || d.Values == 0 {
		return 0
	}
	return float64(d.Misses()) / float64(d.Values)
}

// MissedIDs returns the degraded variable-ids in sorted order.
func (d *Diagnostics) MissedIDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, 0, len(d.MissingKeys))
	for id := range d.MissingKeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IngestedDocument is the unit of persistence. A successful run replaces the
// previous document for the same identity in full.
type IngestedDocument struct {
	ScrapedAtUTC  time.Time      `json:"scrapedAtUtc" yaml:"scraped_at_utc" bson:"scrapedAtUtc"`
	SourceURL     string         `json:"sourceUrl" yaml:"source_url" bson:"sourceUrl"`
	Identity      Identity       `json:"identity" yaml:"identity" bson:"identity"`
	ActualYear    string         `json:"actualYear,omitempty" yaml:"actual_year,omitempty" bson:"actualYear,omitempty"`
	Metadata      TableMetadata  `json:"metadata" yaml:"metadata" bson:"metadata"`
	Records       []EntityRecord `json:"records" yaml:"records" bson:"records"`
	Diagnostics   *Diagnostics   `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty" bson:"diagnostics,omitempty"`
	SchemaVersion string         `json:"schemaVersion" yaml:"schema_version" bson:"schemaVersion"`
}
