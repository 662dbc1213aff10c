// Package sqlvec implements the relational-vector adapter on SQLite. Rows
// carry a text primary key, a float32-blob vector column, and one TEXT column
// per metadata key with JSON-encoded values.
package sqlvec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/vecbridge/vecbridge/engine/migrate"
	"github.com/vecbridge/vecbridge/engine/record"
)

const (
	defaultTable        = "items"
	defaultIDColumn     = "id"
	defaultVectorColumn = "embedding"
	defaultBatchSize    = 100
)

// Store is the SQLite-backed adapter. It owns one *sql.DB handle.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New creates an unconnected Store.
func New(logger *slog.Logger) migrate.Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: logger}
}

type connParams struct {
	Path string `json:"path"`
}

type queryParams struct {
	Table           string   `json:"table_name"`
	IDColumn        string   `json:"id_column"`
	VectorColumn    string   `json:"vector_column"`
	MetadataColumns []string `json:"metadata_columns"`
	Limit           int      `json:"limit"`
	Offset          int      `json:"offset"`
	Filter          string   `json:"filter_condition"`
}

type loadParams struct {
	Table         string   `json:"table_name"`
	IDColumn      string   `json:"id_column"`
	VectorColumn  string   `json:"vector_column"`
	MetadataCols  []string `json:"metadata_columns"`
	RecreateTable bool     `json:"recreate_table"`
	BatchSize     int      `json:"batch_size"`
}

// Connect opens the database file and applies the usual pragmas. On any
// failure the handle is closed again so no partial state remains.
func (s *Store) Connect(ctx context.Context, params json.RawMessage) error {
	var p connParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("sqlvec: connection params: %w", err)
		}
	}
	if p.Path == "" {
		p.Path = "vectors.db"
	}

	db, err := sql.Open("sqlite", p.Path)
	if err != nil {
		return fmt.Errorf("sqlvec: open %s: %w", p.Path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("sqlvec: pragma: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlvec: ping %s: %w", p.Path, err)
	}

	s.db = db
	s.log.Debug("connected", "path", p.Path)
	return nil
}

// Disconnect closes the handle. No-op when already disconnected.
func (s *Store) Disconnect() {
	if s.db == nil {
		return
	}
	s.db.Close()
	s.db = nil
	s.log.Debug("disconnected")
}

// Extract reads rows into normalized records. Query failures (including a
// missing table) degrade to an empty result.
func (s *Store) Extract(ctx context.Context, params json.RawMessage) ([]record.Record, error) {
	if s.db == nil {
		return nil, record.ErrNotConnected
	}

	p := queryParams{Table: defaultTable, IDColumn: defaultIDColumn, VectorColumn: defaultVectorColumn}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			s.log.Error("bad query params", "error", err)
			return nil, nil
		}
	}

	cols := make([]string, 0, 2+len(p.MetadataColumns))
	cols = append(cols, quoteIdent(p.IDColumn), quoteIdent(p.VectorColumn))
	for _, c := range p.MetadataColumns {
		cols = append(cols, quoteIdent(c))
	}

	var q strings.Builder
	fmt.Fprintf(&q, "SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdent(p.Table))
	if p.Filter != "" {
		fmt.Fprintf(&q, " WHERE %s", p.Filter)
	}
	if p.Limit > 0 {
		fmt.Fprintf(&q, " LIMIT %d", p.Limit)
	}
	if p.Offset > 0 {
		if p.Limit <= 0 {
			q.WriteString(" LIMIT -1")
		}
		fmt.Fprintf(&q, " OFFSET %d", p.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q.String())
	if err != nil {
		s.log.Error("extract query failed", "table", p.Table, "error", err)
		return nil, nil
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var id sql.NullString
		var blob []byte
		meta := make([]sql.NullString, len(p.MetadataColumns))

		dest := make([]any, 0, 2+len(meta))
		dest = append(dest, &id, &blob)
		for i := range meta {
			dest = append(dest, &meta[i])
		}
		if err := rows.Scan(dest...); err != nil {
			s.log.Error("extract scan failed", "error", err)
			return nil, nil
		}

		rec := record.Record{ID: id.String}
		if len(blob) > 0 {
			rec.Vector = decodeVector(blob)
		}
		for i, c := range p.MetadataColumns {
			if !meta[i].Valid {
				continue
			}
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]any, len(p.MetadataColumns))
			}
			rec.Metadata[c] = decodeMetaValue(meta[i].String)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("extract rows failed", "error", err)
		return nil, nil
	}

	s.log.Debug("extracted rows", "table", p.Table, "count", len(out))
	return out, nil
}

// Load writes records into the table, creating it from the first record's
// vector dimension when recreate_table is set. Inserts run batched inside a
// single transaction.
func (s *Store) Load(ctx context.Context, records []record.Record, params json.RawMessage) (*record.LoadResult, error) {
	if s.db == nil {
		return nil, record.ErrNotConnected
	}

	result := &record.LoadResult{InputCount: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	p := loadParams{Table: defaultTable, IDColumn: defaultIDColumn, VectorColumn: defaultVectorColumn, BatchSize: defaultBatchSize}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("sqlvec: load params: %w", err)
		}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}

	metaCols := p.MetadataCols
	if len(metaCols) == 0 {
		metaCols = observedMetadataKeys(records)
	}

	if p.RecreateTable {
		if err := s.recreateTable(ctx, p, metaCols, records); err != nil {
			return nil, err
		}
	}

	cols := make([]string, 0, 2+len(metaCols))
	cols = append(cols, quoteIdent(p.IDColumn), quoteIdent(p.VectorColumn))
	for _, c := range metaCols {
		cols = append(cols, quoteIdent(c))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insertSQL := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(p.Table), strings.Join(cols, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlvec: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("sqlvec: prepare: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if rec.ID == "" {
			s.log.Warn("record missing id, skipped", "index", i)
			continue
		}

		args := make([]any, 0, len(cols))
		args = append(args, rec.ID)
		if rec.Vector != nil {
			args = append(args, encodeVector(rec.Vector))
		} else {
			args = append(args, nil)
		}
		for _, c := range metaCols {
			v := rec.Meta(c)
			if v == nil {
				args = append(args, nil)
				continue
			}
			args = append(args, encodeMetaValue(v))
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("sqlvec: insert id %s: %w", rec.ID, err)
		}
		result.ProcessedCount++
		result.PrimaryKeys = append(result.PrimaryKeys, rec.ID)

		if result.ProcessedCount%p.BatchSize == 0 {
			s.log.Debug("inserted batch", "count", result.ProcessedCount)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlvec: commit: %w", err)
	}

	result.InsertCount = result.ProcessedCount
	s.log.Info("loaded records", "table", p.Table, "count", result.InsertCount)
	return result, nil
}

func (s *Store) recreateTable(ctx context.Context, p loadParams, metaCols []string, records []record.Record) error {
	first := records[0]
	if first.Vector == nil {
		return fmt.Errorf("sqlvec: cannot recreate %s: first record has no vector to derive the dimension from", p.Table)
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(p.Table)); err != nil {
		return fmt.Errorf("sqlvec: drop table: %w", err)
	}

	defs := make([]string, 0, 2+len(metaCols))
	defs = append(defs,
		quoteIdent(p.IDColumn)+" TEXT PRIMARY KEY",
		quoteIdent(p.VectorColumn)+" BLOB",
	)
	for _, c := range metaCols {
		defs = append(defs, quoteIdent(c)+" TEXT")
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(p.Table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlvec: create table: %w", err)
	}

	s.log.Info("created table", "table", p.Table, "dimension", len(first.Vector), "metadata_columns", len(metaCols))
	return nil
}

// DescribeSchema introspects the table via pragma_table_info. The vector
// dimension is sampled from one stored row since the BLOB type carries none.
func (s *Store) DescribeSchema(ctx context.Context, table string) (*record.Schema, error) {
	if s.db == nil {
		return nil, record.ErrNotConnected
	}
	if table == "" {
		table = defaultTable
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name, type, pk FROM pragma_table_info(?)", table)
	if err != nil {
		s.log.Error("describe schema failed", "table", table, "error", err)
		return nil, nil
	}
	defer rows.Close()

	schema := &record.Schema{Collection: table}
	var vectorCol string
	for rows.Next() {
		var name, typ string
		var pk int
		if err := rows.Scan(&name, &typ, &pk); err != nil {
			s.log.Error("describe schema scan failed", "error", err)
			return nil, nil
		}
		f := record.Field{Name: name, Kind: record.KindScalar, Params: map[string]string{"sql_type": typ}}
		switch {
		case pk > 0:
			f.Kind = record.KindPrimaryKey
			f.Primary = true
			schema.PrimaryField = name
		case strings.EqualFold(typ, "BLOB"):
			f.Kind = record.KindVector
			if vectorCol == "" {
				vectorCol = name
			}
		}
		schema.Fields = append(schema.Fields, f)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("describe schema rows failed", "error", err)
		return nil, nil
	}
	if len(schema.Fields) == 0 {
		// Table does not exist.
		return nil, nil
	}

	if vectorCol != "" {
		var blob []byte
		q := fmt.Sprintf("SELECT %s FROM %s LIMIT 1", quoteIdent(vectorCol), quoteIdent(table))
		if err := s.db.QueryRowContext(ctx, q).Scan(&blob); err == nil && len(blob) > 0 {
			for i := range schema.Fields {
				if schema.Fields[i].Name == vectorCol {
					schema.Fields[i].Params["dim"] = strconv.Itoa(len(blob) / 4)
				}
			}
		}
	}
	return schema, nil
}

// observedMetadataKeys returns the sorted union of all metadata keys seen in
// the batch, so one prepared statement covers every record.
func observedMetadataKeys(records []record.Record) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r.Metadata {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Metadata cells hold JSON so values round-trip with their types intact.
func encodeMetaValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func decodeMetaValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		// Pre-existing tables may hold plain text.
		return s
	}
	return v
}
