package columnar

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/vecbridge/vecbridge/engine/record"
)

// buildColumns converts record-oriented input into the column-major layout
// the backend's insert primitive takes, in schema field order: primary key
// column, vector column, then one column per schema metadata field.
//
// Records without an id are skipped (and logged), never failed. Metadata keys
// absent from the schema are ignored with a warning; schema fields absent
// from a record's metadata take the field's zero value (the typed wire
// columns carry no per-row null). A missing vector becomes a zero vector.
//
// Returns the columns and the accepted ids. The accepted ids are returned
// even on error so callers can report how far processing got.
func buildColumns(plan *fieldPlan, records []record.Record, log *slog.Logger) ([]entity.Column, []string, error) {
	var (
		accepted []string
		ids      []string
		vectors  [][]float32
		metaVals = make(map[string][]any, len(plan.meta))
	)

	for i, rec := range records {
		if rec.ID == "" {
			log.Warn("record missing id, skipped", "index", i)
			continue
		}
		accepted = append(accepted, rec.ID)
		ids = append(ids, rec.ID)

		if plan.vector != nil {
			if rec.Vector == nil {
				log.Warn("record missing vector, zero-filled", "id", rec.ID, "field", plan.vector.Name)
				vectors = append(vectors, make([]float32, plan.dim))
			} else {
				vectors = append(vectors, rec.Vector)
			}
		}

		for _, f := range plan.meta {
			metaVals[f.Name] = append(metaVals[f.Name], rec.Meta(f.Name))
		}
		for k := range rec.Metadata {
			if k != plan.primary.Name && (plan.vector == nil || k != plan.vector.Name) && plan.metaField(k) == nil {
				log.Warn("metadata key not in schema, ignored", "id", rec.ID, "key", k)
			}
		}
	}

	cols := make([]entity.Column, 0, 2+len(plan.meta))

	pkCol, err := primaryKeyColumn(plan.primary, ids)
	if err != nil {
		return nil, accepted, err
	}
	cols = append(cols, pkCol)

	if plan.vector != nil {
		cols = append(cols, entity.NewColumnFloatVector(plan.vector.Name, plan.dim, vectors))
	}

	for _, f := range plan.meta {
		col, err := scalarColumn(f, metaVals[f.Name])
		if err != nil {
			return nil, accepted, err
		}
		cols = append(cols, col)
	}

	// Every column must be exactly as long as the accepted record count; a
	// mismatch is an internal consistency fault, never silently truncated.
	for _, col := range cols {
		if col.Len() != len(accepted) {
			return nil, accepted, fmt.Errorf("%w: field %s has %d entries, expected %d",
				record.ErrColumnLengthMismatch, col.Name(), col.Len(), len(accepted))
		}
	}

	return cols, accepted, nil
}

// recordsFromColumns is the inverse direction: each row across the columns
// becomes a normalized record. Metadata keys with an absent value are
// omitted.
func recordsFromColumns(plan *fieldPlan, cols []entity.Column) ([]record.Record, error) {
	byName := make(map[string]entity.Column, len(cols))
	for _, c := range cols {
		byName[c.Name()] = c
	}

	pkCol, ok := byName[plan.primary.Name]
	if !ok {
		return nil, fmt.Errorf("columnar: result missing primary field %s", plan.primary.Name)
	}

	var vectors [][]float32
	if plan.vector != nil {
		if vc, ok := byName[plan.vector.Name].(*entity.ColumnFloatVector); ok {
			vectors = vc.Data()
		}
	}

	out := make([]record.Record, 0, pkCol.Len())
	for i := 0; i < pkCol.Len(); i++ {
		v, err := pkCol.Get(i)
		if err != nil {
			return nil, fmt.Errorf("columnar: read primary key row %d: %w", i, err)
		}
		rec := record.Record{ID: idToString(v)}

		if vectors != nil && i < len(vectors) {
			rec.Vector = vectors[i]
		}

		for _, f := range plan.meta {
			col, ok := byName[f.Name]
			if !ok || i >= col.Len() {
				continue
			}
			mv, err := col.Get(i)
			if err != nil || mv == nil {
				continue
			}
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]any, len(plan.meta))
			}
			rec.Metadata[f.Name] = mv
		}
		out = append(out, rec)
	}
	return out, nil
}

// primaryKeyColumn builds the pk column in the collection's native key type.
func primaryKeyColumn(f *entity.Field, ids []string) (entity.Column, error) {
	switch f.DataType {
	case entity.FieldTypeInt64:
		vals := make([]int64, len(ids))
		for i, id := range ids {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("columnar: id %q is not a valid int64 key for field %s: %w", id, f.Name, err)
			}
			vals[i] = n
		}
		return entity.NewColumnInt64(f.Name, vals), nil
	case entity.FieldTypeVarChar, entity.FieldTypeString:
		return entity.NewColumnVarChar(f.Name, ids), nil
	default:
		return nil, fmt.Errorf("columnar: unsupported primary key type %s for field %s", dataTypeName(f.DataType), f.Name)
	}
}

// scalarColumn builds a typed metadata column, coercing the loosely-typed
// metadata values. Absent values take the type's zero value.
func scalarColumn(f *entity.Field, vals []any) (entity.Column, error) {
	switch f.DataType {
	case entity.FieldTypeBool:
		out := make([]bool, len(vals))
		for i, v := range vals {
			b, _ := v.(bool)
			out[i] = b
		}
		return entity.NewColumnBool(f.Name, out), nil
	case entity.FieldTypeInt32:
		out := make([]int32, len(vals))
		for i, v := range vals {
			n, _ := asInt64(v)
			out[i] = int32(n)
		}
		return entity.NewColumnInt32(f.Name, out), nil
	case entity.FieldTypeInt64:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i], _ = asInt64(v)
		}
		return entity.NewColumnInt64(f.Name, out), nil
	case entity.FieldTypeFloat:
		out := make([]float32, len(vals))
		for i, v := range vals {
			fv, _ := asFloat64(v)
			out[i] = float32(fv)
		}
		return entity.NewColumnFloat(f.Name, out), nil
	case entity.FieldTypeDouble:
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i], _ = asFloat64(v)
		}
		return entity.NewColumnDouble(f.Name, out), nil
	case entity.FieldTypeVarChar, entity.FieldTypeString:
		out := make([]string, len(vals))
		for i, v := range vals {
			if v != nil {
				out[i] = fmt.Sprint(v)
			}
		}
		return entity.NewColumnVarChar(f.Name, out), nil
	default:
		return nil, fmt.Errorf("columnar: unsupported metadata field type %s for field %s", dataTypeName(f.DataType), f.Name)
	}
}

func asInt64(v any) (int64, bool) {
	switch tv := v.(type) {
	case int:
		return int64(tv), true
	case int32:
		return int64(tv), true
	case int64:
		return tv, true
	case float64:
		return int64(tv), true
	case float32:
		return int64(tv), true
	case string:
		n, err := strconv.ParseInt(tv, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func idToString(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case int64:
		return strconv.FormatInt(tv, 10)
	case int:
		return strconv.Itoa(tv)
	default:
		return fmt.Sprint(tv)
	}
}
