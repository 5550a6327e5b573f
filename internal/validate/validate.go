// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate checks that a raw simdasi payload has the structure the
// normalizer depends on, and fails with a located diagnostic when it does not.
//
// Expected shape:
//
//	{
//	  "data": [
//	    {"page": 1, "count": 35, ...},             // pagination, optional
//	    {                                          // table container, required
//	      "judul_tabel": "...", "tahun_data": "...", "kolom": {...},
//	      "data": [                                // entity list, required
//	        {"label": "ACEH", "variables": {"<id>": {...}}},
//	        ...
//	      ]
//	    }
//	  ]
//	}
//
// Required fields fail hard. The only tolerated gap is a record without
// "variables", which is read as an empty mapping.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// Field names used by the simdasi API.
const (
	FieldData      = "data"
	FieldPage      = "page"
	FieldCount     = "count"
	FieldTitle     = "judul_tabel"
	FieldScope     = "cakupan"
	FieldYear      = "tahun_data"
	FieldSource    = "sumber"
	FieldNotes     = "catatan"
	FieldColumns   = "kolom"
	FieldLabel     = "label"
	FieldVariables = "variables"
)

// Pagination holds the optional paging fields of element 0.
type Pagination struct {
	Count *int
	Page  *int
}

// Table holds the descriptive fields of the table container. Each field is
// the raw JSON value, nil when absent.
type Table struct {
	Title  any
	Scope  any
	Year   any
	Source any
	Notes  any

	// Columns maps variable-id to variable metadata; nil when absent or not an object.
	Columns map[string]any
}

// Entity is one validated entity record.
type Entity struct {
	Label     string
	Variables map[string]any
}

// Validated is a payload known to match the expected structure.
type Validated struct {
	Pagination Pagination
	Table      Table
	Entities   []Entity
}

// Payload validates raw and extracts the parts the normalizer needs.
func Payload(raw types.RawPayload) (*Validated, error) {
	top, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Kind: NotAKeyedStructure, Path: "$", Observed: typeName(raw, true)}
	}

	value, present := top[FieldData]
	seq, ok := value.([]any)
	if !ok {
		return nil, &Error{Kind: MissingDataSequence, Path: "$." + FieldData, Observed: typeName(value, present)}
	}
	if len(seq) < 2 {
		return nil, &Error{
			Kind:     InsufficientElements,
			Path:     "$." + FieldData,
			Observed: fmt.Sprintf("%d element(s), need at least 2", len(seq)),
		}
	}

	v := &Validated{Pagination: pagination(seq[0])}

	containerPath := "$." + FieldData + "[1]"
	container, ok := seq[1].(map[string]any)
	if !ok {
		return nil, &Error{Kind: ContainerNotKeyed, Path: containerPath, Observed: typeName(seq[1], true)}
	}

	v.Table = Table{
		Title:  container[FieldTitle],
		Scope:  container[FieldScope],
		Year:   container[FieldYear],
		Source: container[FieldSource],
		Notes:  container[FieldNotes],
	}
	if cols, ok := container[FieldColumns].(map[string]any); ok {
		v.Table.Columns = cols
	}

	listPath := containerPath + "." + FieldData
	value, present = container[FieldData]
	list, ok := value.([]any)
	if !ok {
		return nil, &Error{Kind: MissingEntityList, Path: listPath, Observed: typeName(value, present)}
	}

	v.Entities = make([]Entity, 0, len(list))
	for i, item := range list {
		e, err := entity(item, fmt.Sprintf("%s[%d]", listPath, i))
		if err != nil {
			return nil, err
		}
		v.Entities = append(v.Entities, e)
	}
	return v, nil
}

func entity(item any, path string) (Entity, error) {
	rec, ok := item.(map[string]any)
	if !ok {
		return Entity{}, &Error{Kind: MalformedEntityRecord, Path: path, Observed: typeName(item, true)}
	}

	value, present := rec[FieldLabel]
	label, ok := value.(string)
	if !ok {
		return Entity{}, &Error{Kind: MalformedEntityRecord, Path: path + "." + FieldLabel, Observed: typeName(value, present)}
	}

	e := Entity{Label: label, Variables: map[string]any{}}
	value, present = rec[FieldVariables]
	if !present || value == nil {
		return e, nil
	}
	vars, ok := value.(map[string]any)
	if !ok {
		return Entity{}, &Error{Kind: MalformedEntityRecord, Path: path + "." + FieldVariables, Observed: typeName(value, present)}
	}
	e.Variables = vars
	return e, nil
}

func pagination(v any) Pagination {
	m, ok := v.(map[string]any)
	if !ok {
		return Pagination{}
	}
	return Pagination{
		Count: intField(m[FieldCount]),
		Page:  intField(m[FieldPage]),
	}
}

// intField reads a whole number from a JSON number or numeric string.
func intField(v any) *int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

// typeName names the JSON type of v for diagnostics.
func typeName(v any, present bool) string {
	if !present {
		return "missing"
	}
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
