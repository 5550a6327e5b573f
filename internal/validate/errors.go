// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import "fmt"

// Kind classifies a structural mismatch.
type Kind int

const (
	NotAKeyedStructure Kind = iota + 1
	MissingDataSequence
	InsufficientElements
	ContainerNotKeyed
	MissingEntityList
	MalformedEntityRecord
)

func (k Kind) String() string {
	switch k {
	case NotAKeyedStructure:
		return "not_a_keyed_structure"
	case MissingDataSequence:
		return "missing_data_sequence"
	case InsufficientElements:
		return "insufficient_elements"
	case ContainerNotKeyed:
		return "container_not_keyed"
	case MissingEntityList:
		return "missing_entity_list"
	case MalformedEntityRecord:
		return "malformed_entity_record"
	default:
		return "unknown"
	}
}

// Error pinpoints where the payload diverged from the expected shape.
type Error struct {
	Kind Kind

	// Path is a JSONPath-like location, e.g. "$.data[1].data".
	Path string

	// Observed describes what was found: a JSON type name, "missing", or a
	// length for InsufficientElements.
	Observed string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: %s at %s (observed %s)", e.Kind, e.Path, e.Observed)
}

// Is matches another *Error of the same Kind, so callers can test with
// errors.Is(err, &validate.Error{Kind: validate.MissingEntityList}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
