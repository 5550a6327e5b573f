// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// mongoDoc is the stored form: the document fields at top level plus the
// hash of its canonical JSON encoding.
type mongoDoc struct {
	types.IngestedDocument `bson:",inline"`
	ContentHash            string `bson:"contentHash"`
}

// Mongo stores documents natively in one collection with a unique index on
// identity.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to cfg.DSN, pings the server, and ensures the identity
// index exists.
func OpenMongo(ctx context.Context, cfg types.StoreConfig) (*Mongo, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mongo: dsn (connection URI) is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, classifyMongo("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, classifyMongo("connect", err)
	}

	database := cfg.Database
	if database == "" {
		database = types.DefaultDatabase
	}
	collection := cfg.Collection
	if collection == "" {
		collection = types.DefaultCollection
	}
	m := &Mongo{client: client, coll: client.Database(database).Collection(collection)}

	_, err = m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "identity.tableId", Value: 1},
			{Key: "identity.requestedYear", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("identity_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating identity index: %w", classifyMongo("index", err))
	}
	return m, nil
}

func identityFilter(id types.Identity) bson.D {
	return bson.D{
		{Key: "identity.tableId", Value: id.TableID},
		{Key: "identity.requestedYear", Value: id.RequestedYear},
	}
}

// Upsert compares the stored content hash first, then replaces the whole
// document with upsert enabled. The replace is atomic for the identity.
func (m *Mongo) Upsert(ctx context.Context, id types.Identity, doc *types.IngestedDocument) (Result, error) {
	if err := checkIdentity(id, doc); err != nil {
		return 0, err
	}
	_, hash, err := encode(doc)
	if err != nil {
		return 0, err
	}

	var prev struct {
		ContentHash string `bson:"contentHash"`
	}
	err = m.coll.FindOne(ctx, identityFilter(id),
		options.FindOne().SetProjection(bson.D{{Key: "contentHash", Value: 1}}),
	).Decode(&prev)
	switch {
	case err == nil && prev.ContentHash == hash:
		return Unchanged, nil
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return 0, classifyMongo("upsert", err)
	}

	res, err := m.coll.ReplaceOne(ctx, identityFilter(id),
		mongoDoc{IngestedDocument: *doc, ContentHash: hash},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return 0, classifyMongo("upsert", err)
	}
	if res.UpsertedCount > 0 {
		return Inserted, nil
	}
	return Replaced, nil
}

func (m *Mongo) Get(ctx context.Context, id types.Identity) (*types.IngestedDocument, error) {
	var stored mongoDoc
	err := m.coll.FindOne(ctx, identityFilter(id)).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyMongo("get", err)
	}
	doc := stored.IngestedDocument
	doc.Metadata.ColumnDefinitions = plainMap(doc.Metadata.ColumnDefinitions)
	for i := range doc.Records {
		doc.Records[i].Variables = plainMap(doc.Records[i].Variables)
	}
	return &doc, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// plainMap converts decoded BSON containers back to the map[string]any and
// []any shapes the rest of the pipeline works with.
func plainMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.M:
		return plainMap(x)
	case map[string]any:
		return plainMap(x)
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return v
	}
}

func classifyMongo(op string, err error) error {
	kind := KindUnknown
	var se mongo.ServerError
	switch {
	case mongo.IsDuplicateKeyError(err):
		kind = KindWriteConflict
	case errors.As(err, &se) && se.HasErrorCode(112):
		kind = KindWriteConflict
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		kind = KindConnectionLost
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
