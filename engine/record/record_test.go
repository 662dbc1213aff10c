package record

import "testing"

func TestMeta(t *testing.T) {
	r := Record{ID: "a", Metadata: map[string]any{"k": "v"}}
	if r.Meta("k") != "v" {
		t.Error("expected value")
	}
	if r.Meta("missing") != nil {
		t.Error("expected nil for absent key")
	}
	empty := Record{ID: "b"}
	if empty.Meta("k") != nil {
		t.Error("expected nil for nil metadata")
	}
}

func TestSchema_VectorField(t *testing.T) {
	s := Schema{
		Collection: "docs",
		Fields: []Field{
			{Name: "id", Kind: KindPrimaryKey, Primary: true},
			{Name: "v1", Kind: KindVector},
			{Name: "v2", Kind: KindVector},
			{Name: "title", Kind: KindScalar},
		},
	}
	vf := s.VectorField()
	if vf == nil || vf.Name != "v1" {
		t.Errorf("expected first vector field, got %+v", vf)
	}
	meta := s.MetadataFields()
	if len(meta) != 1 || meta[0].Name != "title" {
		t.Errorf("metadata fields = %+v", meta)
	}
}

func TestSchema_NoVectorField(t *testing.T) {
	s := Schema{Fields: []Field{{Name: "id", Kind: KindPrimaryKey}}}
	if s.VectorField() != nil {
		t.Error("expected nil")
	}
}

func TestLoadResult_Ok(t *testing.T) {
	ok := LoadResult{InsertCount: 2, ProcessedCount: 2, InputCount: 2}
	if !ok.Ok() {
		t.Error("expected ok")
	}
	withErrors := LoadResult{InsertCount: 1, ProcessedCount: 2, Errors: []string{"x"}}
	if withErrors.Ok() {
		t.Error("expected not ok")
	}
}
