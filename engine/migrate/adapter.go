// Package migrate defines the backend adapter contract, the adapter registry,
// and the migration orchestrator that moves normalized records from one
// backend to another.
package migrate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vecbridge/vecbridge/engine/record"
)

// Adapter is the capability set every backend family implements. Each
// instance owns exactly one live backend handle; instances are not safe to
// share across concurrent migrations.
type Adapter interface {
	// Connect establishes and stores the backend handle. It must leave no
	// partial state behind on failure.
	Connect(ctx context.Context, params json.RawMessage) error

	// Disconnect releases the handle. Safe to call when already disconnected.
	Disconnect()

	// Extract reads records matching the query parameters. An empty or
	// missing source collection yields an empty slice, not an error; backend
	// failures degrade to an empty slice and are logged. The only error is
	// record.ErrNotConnected.
	Extract(ctx context.Context, params json.RawMessage) ([]record.Record, error)

	// Load writes records into the target collection, optionally
	// (re)creating it. Backends capable of partial failure report it through
	// the LoadResult rather than the error.
	Load(ctx context.Context, records []record.Record, params json.RawMessage) (*record.LoadResult, error)

	// DescribeSchema introspects a collection. It returns (nil, nil) when
	// the collection does not exist or introspection fails, and
	// record.ErrNotConnected when there is no live handle.
	DescribeSchema(ctx context.Context, collection string) (*record.Schema, error)
}

// Constructor builds a fresh, unconnected adapter.
type Constructor func(logger *slog.Logger) Adapter

// EndpointParams carries the per-call parameter documents for one side of a
// migration, forwarded verbatim to the adapter.
type EndpointParams struct {
	Connection json.RawMessage
	Query      json.RawMessage
	Load       json.RawMessage
}
