// Package record defines the normalized data model shared by all backend
// adapters: the record shape every backend is converted to and from, the
// introspected schema descriptor, and the structured load result.
package record

// Record is the normalized representation of one vector entry. Every adapter
// extracts into this shape and loads from it. A missing id is the empty
// string; Vector may be nil for backends that store payload-only entries.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key, or nil when absent.
func (r Record) Meta(key string) any {
	if r.Metadata == nil {
		return nil
	}
	return r.Metadata[key]
}

// Transform rewrites a full extracted batch between extraction and loading.
// It may return a sequence of different length. An error aborts the migration.
type Transform func(records []Record) ([]Record, error)

// LoadResult reports the outcome of a Load call. InputCount counts every
// record passed in, ProcessedCount those accepted after id screening, and
// InsertCount what the backend acknowledged.
type LoadResult struct {
	InsertCount    int      `json:"insert_count"`
	ProcessedCount int      `json:"total_processed_count"`
	InputCount     int      `json:"total_input_count"`
	PrimaryKeys    []string `json:"primary_keys_inserted,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// Ok reports whether the load completed without recorded errors.
func (r *LoadResult) Ok() bool {
	return r != nil && len(r.Errors) == 0
}
