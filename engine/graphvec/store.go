// Package graphvec implements the graph-vector adapter for Neo4j. Records
// map onto nodes under a configurable label: the id and vector live in node
// properties alongside the metadata.
package graphvec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/vecbridge/vecbridge/engine/migrate"
	"github.com/vecbridge/vecbridge/engine/record"
)

const (
	defaultLabel      = "Record"
	defaultIDProp     = "id"
	defaultVectorProp = "embedding"
	defaultLimit      = 1000
	defaultBatchSize  = 100
)

// Store is the Neo4j adapter. It owns one driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	log      *slog.Logger
}

// New creates an unconnected Store.
func New(logger *slog.Logger) migrate.Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: logger}
}

// NewWithDriver wires a pre-built driver, for tests.
func NewWithDriver(driver neo4j.DriverWithContext, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{driver: driver, log: logger}
}

type connParams struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type queryParams struct {
	Label         string   `json:"label"`
	IDProperty    string   `json:"id_property"`
	VectorProp    string   `json:"vector_property"`
	MetadataProps []string `json:"metadata_properties"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
	Filter        string   `json:"filter_condition"`
}

type loadParams struct {
	Label      string `json:"label"`
	IDProperty string `json:"id_property"`
	VectorProp string `json:"vector_property"`
	Recreate   bool   `json:"recreate_label"`
	BatchSize  int    `json:"batch_size"`
}

// Connect builds the driver and verifies connectivity so a bad endpoint
// fails here rather than on first use.
func (s *Store) Connect(ctx context.Context, params json.RawMessage) error {
	var p connParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("graphvec: connection params: %w", err)
		}
	}
	if p.URI == "" {
		p.URI = "neo4j://localhost:7687"
	}

	driver, err := neo4j.NewDriverWithContext(p.URI, neo4j.BasicAuth(p.Username, p.Password, ""))
	if err != nil {
		return fmt.Errorf("graphvec: driver %s: %w", p.URI, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return fmt.Errorf("graphvec: verify %s: %w", p.URI, err)
	}

	s.driver = driver
	s.database = p.Database
	s.log.Debug("connected", "uri", p.URI)
	return nil
}

// Disconnect closes the driver. No-op when already disconnected.
func (s *Store) Disconnect() {
	if s.driver == nil {
		return
	}
	s.driver.Close(context.Background())
	s.driver = nil
	s.log.Debug("disconnected")
}

// Extract reads labeled nodes into normalized records. Query failures
// degrade to an empty result.
func (s *Store) Extract(ctx context.Context, params json.RawMessage) ([]record.Record, error) {
	if s.driver == nil {
		return nil, record.ErrNotConnected
	}

	p := queryParams{Label: defaultLabel, IDProperty: defaultIDProp, VectorProp: defaultVectorProp, Limit: defaultLimit}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			s.log.Error("bad query params", "error", err)
			return nil, nil
		}
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	var q strings.Builder
	fmt.Fprintf(&q, "MATCH (n:%s)", sanitizeLabel(p.Label))
	if p.Filter != "" {
		fmt.Fprintf(&q, " WHERE %s", p.Filter)
	}
	fmt.Fprintf(&q, " RETURN n SKIP $offset LIMIT $limit")

	result, err := sess.Run(ctx, q.String(), map[string]any{"offset": p.Offset, "limit": p.Limit})
	if err != nil {
		s.log.Error("extract query failed", "label", p.Label, "error", err)
		return nil, nil
	}

	var out []record.Record
	for result.Next(ctx) {
		v, ok := result.Record().Get("n")
		if !ok {
			continue
		}
		node, ok := v.(neo4j.Node)
		if !ok {
			continue
		}
		out = append(out, nodeToRecord(node, p))
	}
	if err := result.Err(); err != nil {
		s.log.Error("extract rows failed", "error", err)
		return nil, nil
	}

	s.log.Debug("extracted nodes", "label", p.Label, "count", len(out))
	return out, nil
}

// Load merges records into labeled nodes in batches. With recreate_label the
// label's nodes are detach-deleted first.
func (s *Store) Load(ctx context.Context, records []record.Record, params json.RawMessage) (*record.LoadResult, error) {
	if s.driver == nil {
		return nil, record.ErrNotConnected
	}

	result := &record.LoadResult{InputCount: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	p := loadParams{Label: defaultLabel, IDProperty: defaultIDProp, VectorProp: defaultVectorProp, BatchSize: defaultBatchSize}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("graphvec: load params: %w", err)
		}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	label := sanitizeLabel(p.Label)
	if p.Recreate {
		if _, err := sess.Run(ctx, fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", label), nil); err != nil {
			return nil, fmt.Errorf("graphvec: recreate label %s: %w", p.Label, err)
		}
		s.log.Info("cleared label", "label", p.Label)
	}

	cypher := fmt.Sprintf(
		`UNWIND $rows AS row
		 MERGE (n:%s {%s: row.id})
		 SET n += row.props, n.%s = row.vector`,
		label, sanitizeProp(p.IDProperty), sanitizeProp(p.VectorProp))

	var rows []map[string]any
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if _, err := sess.Run(ctx, cypher, map[string]any{"rows": rows}); err != nil {
			return fmt.Errorf("graphvec: merge %d nodes: %w", len(rows), err)
		}
		result.InsertCount += len(rows)
		rows = rows[:0]
		return nil
	}

	for i, rec := range records {
		if rec.ID == "" {
			s.log.Warn("record missing id, skipped", "index", i)
			continue
		}
		row := map[string]any{
			"id":     rec.ID,
			"props":  flattenMetadata(rec.Metadata),
			"vector": vectorToFloat64(rec.Vector),
		}
		rows = append(rows, row)
		result.ProcessedCount++
		result.PrimaryKeys = append(result.PrimaryKeys, rec.ID)

		if len(rows) >= p.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	s.log.Info("loaded nodes", "label", p.Label, "count", result.InsertCount)
	return result, nil
}

// DescribeSchema samples one node under the label and derives fields from
// its properties. A label with no nodes reports no schema.
func (s *Store) DescribeSchema(ctx context.Context, label string) (*record.Schema, error) {
	if s.driver == nil {
		return nil, record.ErrNotConnected
	}
	if label == "" {
		label = defaultLabel
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT 1", sanitizeLabel(label)), nil)
	if err != nil {
		s.log.Error("describe schema failed", "label", label, "error", err)
		return nil, nil
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	v, ok := result.Record().Get("n")
	if !ok {
		return nil, nil
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return nil, nil
	}

	schema := &record.Schema{Collection: label}
	for name, val := range node.Props {
		f := record.Field{Name: name, Kind: record.KindScalar}
		switch {
		case name == defaultIDProp:
			f.Kind = record.KindPrimaryKey
			f.Primary = true
			schema.PrimaryField = name
		case isFloatList(val):
			f.Kind = record.KindVector
			f.Params = map[string]string{"dim": fmt.Sprintf("%d", len(val.([]any)))}
		}
		schema.Fields = append(schema.Fields, f)
	}
	return schema, nil
}

func nodeToRecord(node neo4j.Node, p queryParams) record.Record {
	rec := record.Record{}
	if v, ok := node.Props[p.IDProperty]; ok && v != nil {
		rec.ID = fmt.Sprint(v)
	}
	if v, ok := node.Props[p.VectorProp]; ok {
		rec.Vector = vectorFromValue(v)
	}

	want := func(name string) bool {
		if name == p.IDProperty || name == p.VectorProp {
			return false
		}
		if len(p.MetadataProps) == 0 {
			return true
		}
		for _, m := range p.MetadataProps {
			if m == name {
				return true
			}
		}
		return false
	}
	for name, v := range node.Props {
		if v == nil || !want(name) {
			continue
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		rec.Metadata[name] = v
	}
	return rec
}

// flattenMetadata keeps only property-compatible values; nested maps are not
// representable as node properties and are dropped with their keys.
func flattenMetadata(meta map[string]any) map[string]any {
	props := make(map[string]any, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case map[string]any, nil:
			continue
		default:
			props[k] = v
		}
	}
	return props
}

func vectorToFloat64(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func vectorFromValue(v any) []float32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		switch n := item.(type) {
		case float64:
			out = append(out, float32(n))
		case int64:
			out = append(out, float32(n))
		default:
			return nil
		}
	}
	return out
}

func isFloatList(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	_, ok = list[0].(float64)
	return ok
}

func sanitizeLabel(label string) string {
	return "`" + strings.ReplaceAll(label, "`", "") + "`"
}

func sanitizeProp(prop string) string {
	return "`" + strings.ReplaceAll(prop, "`", "") + "`"
}
