// Package columnar implements the schema-driven columnar adapter for Milvus.
// The collection schema is fetched fresh on every extract/load call and
// drives the conversion between normalized records and the column-major
// payloads the backend requires.
package columnar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/vecbridge/vecbridge/engine/migrate"
	"github.com/vecbridge/vecbridge/engine/record"
)

const (
	defaultCollection = "default_collection"
	defaultLimit      = int64(100)
)

// client is the slice of the Milvus SDK surface the adapter uses, narrow
// enough to fake in tests.
type client interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	DescribeCollection(ctx context.Context, collName string) (*entity.Collection, error)
	Query(ctx context.Context, collName string, partitionNames []string, expr string, outputFields []string, opts ...mclient.SearchQueryOptionFunc) (mclient.ResultSet, error)
	Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Close() error
}

// Store is the Milvus adapter. It owns one SDK client.
type Store struct {
	cli client
	log *slog.Logger
}

// New creates an unconnected Store.
func New(logger *slog.Logger) migrate.Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: logger}
}

// NewWithClient wires a pre-built client, for tests.
func NewWithClient(cli client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cli: cli, log: logger}
}

type connParams struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

type queryParams struct {
	Collection string `json:"collection_name"`
	Limit      int64  `json:"limit"`
	Offset     int64  `json:"offset"`
	Filter     string `json:"filter_expr"`
}

type loadParams struct {
	Collection string `json:"collection_name"`
}

// Connect establishes the SDK client.
func (s *Store) Connect(ctx context.Context, params json.RawMessage) error {
	var p connParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("columnar: connection params: %w", err)
		}
	}
	if p.Address == "" {
		p.Address = "localhost:19530"
	}

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  p.Address,
		Username: p.Username,
		Password: p.Password,
		DBName:   p.DBName,
	})
	if err != nil {
		return fmt.Errorf("columnar: connect %s: %w", p.Address, err)
	}

	s.cli = cli
	s.log.Debug("connected", "address", p.Address)
	return nil
}

// Disconnect releases the client. No-op when already disconnected.
func (s *Store) Disconnect() {
	if s.cli == nil {
		return
	}
	if err := s.cli.Close(); err != nil {
		s.log.Warn("close failed", "error", err)
	}
	s.cli = nil
	s.log.Debug("disconnected")
}

// Extract queries the primary, vector, and metadata fields identified by the
// collection schema and converts each returned row into a normalized record.
// A missing collection or a backend failure yields an empty result.
func (s *Store) Extract(ctx context.Context, params json.RawMessage) ([]record.Record, error) {
	if s.cli == nil {
		return nil, record.ErrNotConnected
	}

	p := queryParams{Collection: defaultCollection, Limit: defaultLimit}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			s.log.Error("bad query params", "error", err)
			return nil, nil
		}
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}

	has, err := s.cli.HasCollection(ctx, p.Collection)
	if err != nil {
		s.log.Error("has collection failed", "collection", p.Collection, "error", err)
		return nil, nil
	}
	if !has {
		s.log.Warn("collection not found", "collection", p.Collection)
		return nil, nil
	}

	plan, err := s.fetchPlan(ctx, p.Collection)
	if err != nil {
		s.log.Error("schema fetch failed", "collection", p.Collection, "error", err)
		return nil, nil
	}

	opts := []mclient.SearchQueryOptionFunc{mclient.WithLimit(p.Limit)}
	if p.Offset > 0 {
		opts = append(opts, mclient.WithOffset(p.Offset))
	}

	// An empty expr is how the client omits the filter; some servers reject
	// an explicit null filter but accept its absence.
	rs, err := s.cli.Query(ctx, p.Collection, nil, p.Filter, plan.outputFields(), opts...)
	if err != nil {
		s.log.Error("query failed", "collection", p.Collection, "error", err)
		return nil, nil
	}

	records, err := recordsFromColumns(plan, rs)
	if err != nil {
		s.log.Error("convert result failed", "collection", p.Collection, "error", err)
		return nil, nil
	}

	s.log.Debug("extracted records", "collection", p.Collection, "count", len(records))
	return records, nil
}

// Load marshals the records into schema-ordered columns and submits them in
// one insert. Failures after this point are captured into the result, never
// propagated: the caller always gets counts reflecting how far the call got.
func (s *Store) Load(ctx context.Context, records []record.Record, params json.RawMessage) (*record.LoadResult, error) {
	if s.cli == nil {
		return nil, record.ErrNotConnected
	}

	result := &record.LoadResult{InputCount: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	p := loadParams{Collection: defaultCollection}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
	}

	capture := func(err error) (*record.LoadResult, error) {
		s.log.Error("load failed", "collection", p.Collection, "error", err)
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	has, err := s.cli.HasCollection(ctx, p.Collection)
	if err != nil {
		return capture(err)
	}
	if !has {
		// Loading requires an existing collection; creating one is a
		// separate setup concern.
		return capture(fmt.Errorf("collection %s does not exist", p.Collection))
	}

	plan, err := s.fetchPlan(ctx, p.Collection)
	if err != nil {
		return capture(err)
	}

	cols, accepted, err := buildColumns(plan, records, s.log)
	result.ProcessedCount = len(accepted)
	if err != nil {
		return capture(err)
	}
	if len(accepted) == 0 {
		result.Errors = append(result.Errors, "no valid records processed")
		return result, nil
	}

	idCol, err := s.cli.Insert(ctx, p.Collection, "", cols...)
	if err != nil {
		return capture(err)
	}

	if idCol != nil {
		result.InsertCount = idCol.Len()
		for i := 0; i < idCol.Len(); i++ {
			if v, err := idCol.Get(i); err == nil {
				result.PrimaryKeys = append(result.PrimaryKeys, idToString(v))
			}
		}
	}

	// The insert protocol reports only a count, no row-level failure detail;
	// a shortfall is recorded as a discrepancy without failing the call.
	if result.InsertCount < result.ProcessedCount {
		s.log.Warn("insert count below processed count",
			"inserted", result.InsertCount, "processed", result.ProcessedCount)
		result.Errors = append(result.Errors,
			fmt.Sprintf("Discrepancy: %d processed, %d inserted.", result.ProcessedCount, result.InsertCount))
	}

	s.log.Info("loaded records", "collection", p.Collection,
		"inserted", result.InsertCount, "processed", result.ProcessedCount, "input", result.InputCount)
	return result, nil
}

// DescribeSchema returns the collection's field schema, or nil when the
// collection does not exist or introspection fails.
func (s *Store) DescribeSchema(ctx context.Context, collection string) (*record.Schema, error) {
	if s.cli == nil {
		return nil, record.ErrNotConnected
	}
	if collection == "" {
		collection = defaultCollection
	}

	has, err := s.cli.HasCollection(ctx, collection)
	if err != nil || !has {
		if err != nil {
			s.log.Error("has collection failed", "collection", collection, "error", err)
		}
		return nil, nil
	}

	coll, err := s.cli.DescribeCollection(ctx, collection)
	if err != nil {
		s.log.Error("describe collection failed", "collection", collection, "error", err)
		return nil, nil
	}
	return describeSchema(collection, coll.Schema), nil
}

// fetchPlan fetches the schema and classifies its fields. Always fresh; the
// remote schema may change between operations.
func (s *Store) fetchPlan(ctx context.Context, collection string) (*fieldPlan, error) {
	coll, err := s.cli.DescribeCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("describe collection %s: %w", collection, err)
	}
	if coll == nil || coll.Schema == nil {
		return nil, fmt.Errorf("collection %s has no schema", collection)
	}
	plan, err := planFields(coll.Schema)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", collection, err)
	}
	return plan, nil
}
