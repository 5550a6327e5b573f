// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists ingested documents with replace-upsert semantics:
// exactly one live document per identity, fully replaced on each write.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// Result describes a successful upsert.
type Result int

const (
	Inserted Result = iota + 1
	Replaced
	Unchanged
)

func (r Result) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned by Get when no document exists for the identity.
var ErrNotFound = errors.New("document not found")

// Kind classifies a store failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectionLost
	KindWriteConflict
)

func (k Kind) String() string {
	switch k {
	case KindConnectionLost:
		return "connection_lost"
	case KindWriteConflict:
		return "write_conflict"
	default:
		return "unknown"
	}
}

// Error wraps a backend failure with its classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsConnectionLost reports whether err is a *Error of KindConnectionLost.
func IsConnectionLost(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindConnectionLost
}

// Store is implemented by every persistence backend. Implementations never
// retry; a replace is atomic for one identity.
type Store interface {
	// Upsert writes doc as the only document for id, replacing any previous
	// content in full.
	Upsert(ctx context.Context, id types.Identity, doc *types.IngestedDocument) (Result, error)

	// Get returns the live document for id, or ErrNotFound.
	Get(ctx context.Context, id types.Identity) (*types.IngestedDocument, error)

	// Close releases the backend's connections.
	Close(ctx context.Context) error
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg types.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case types.DriverMongo:
		return OpenMongo(ctx, cfg)
	case types.DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case types.DriverSQLite:
		return OpenSQLite(ctx, cfg)
	case types.DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// checkIdentity rejects a document whose identity differs from the key it is
// written under.
func checkIdentity(id types.Identity, doc *types.IngestedDocument) error {
	if doc == nil {
		return &Error{Kind: KindUnknown, Op: "upsert", Err: errors.New("nil document")}
	}
	if doc.Identity != id {
		return &Error{
			Kind: KindUnknown,
			Op:   "upsert",
			Err:  fmt.Errorf("document identity %s does not match key %s", doc.Identity.Key(), id.Key()),
		}
	}
	return nil
}

// encode returns the canonical JSON of doc and its sha256 hex digest.
// encoding/json sorts map keys, so equal documents encode identically.
func encode(doc *types.IngestedDocument) ([]byte, string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, "", &Error{Kind: KindUnknown, Op: "encode", Err: err}
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

func decode(data []byte) (*types.IngestedDocument, error) {
	var doc types.IngestedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Kind: KindUnknown, Op: "decode", Err: err}
	}
	return &doc, nil
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// tableName validates a SQL table name taken from configuration.
func tableName(name string) (string, error) {
	if name == "" {
		name = types.DefaultCollection
	}
	if !identRE.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}
