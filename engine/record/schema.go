package record

// FieldKind classifies an introspected field.
type FieldKind string

const (
	KindPrimaryKey FieldKind = "primary_key"
	KindVector     FieldKind = "vector"
	KindScalar     FieldKind = "scalar"
)

// Field describes one field of a backend collection.
type Field struct {
	Name    string            `json:"name"`
	Kind    FieldKind         `json:"type"`
	Primary bool              `json:"is_primary"`
	Params  map[string]string `json:"params,omitempty"`
}

// Schema is the introspected shape of a backend collection. It is fetched
// fresh for every extract/load call; the remote schema is the source of truth
// and may change between operations, so it is never cached.
type Schema struct {
	Collection   string  `json:"collection"`
	Fields       []Field `json:"fields"`
	PrimaryField string  `json:"primary_field,omitempty"`
}

// VectorField returns the first vector field in schema order, or nil.
// Collections with multiple vector fields are not supported; the first one
// wins (documented limitation).
func (s *Schema) VectorField() *Field {
	for i := range s.Fields {
		if s.Fields[i].Kind == KindVector {
			return &s.Fields[i]
		}
	}
	return nil
}

// MetadataFields returns all non-primary, non-vector fields in schema order.
func (s *Schema) MetadataFields() []Field {
	vec := s.VectorField()
	var out []Field
	for _, f := range s.Fields {
		if f.Primary || f.Kind == KindPrimaryKey {
			continue
		}
		if vec != nil && f.Name == vec.Name {
			continue
		}
		if f.Kind == KindVector {
			// Secondary vector fields are neither the vector nor metadata.
			continue
		}
		out = append(out, f)
	}
	return out
}
