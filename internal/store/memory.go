// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// Memory keeps encoded snapshots in a map. It backs dry runs and tests.
type Memory struct {
	mu   sync.Mutex
	docs map[types.Identity][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[types.Identity][]byte)}
}

func (m *Memory) Upsert(ctx context.Context, id types.Identity, doc *types.IngestedDocument) (Result, error) {
	if err := checkIdentity(id, doc); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, &Error{Kind: KindConnectionLost, Op: "upsert", Err: err}
	}
	data, _, err := encode(doc)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.docs[id]
	m.docs[id] = data
	switch {
	case !ok:
		return Inserted, nil
	case bytes.Equal(prev, data):
		return Unchanged, nil
	default:
		return Replaced, nil
	}
}

func (m *Memory) Get(ctx context.Context, id types.Identity) (*types.IngestedDocument, error) {
	m.mu.Lock()
	data, ok := m.docs[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

// Len returns the number of stored identities.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *Memory) Close(context.Context) error { return nil }
