package graphvec

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/vecbridge/vecbridge/engine/record"
)

func TestExtract_NotConnected(t *testing.T) {
	s := New(nil)
	if _, err := s.Extract(context.Background(), nil); !errors.Is(err, record.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestLoad_NotConnected(t *testing.T) {
	s := New(nil)
	if _, err := s.Load(context.Background(), []record.Record{{ID: "a"}}, nil); !errors.Is(err, record.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestNodeToRecord(t *testing.T) {
	node := dbtype.Node{Props: map[string]any{
		"id":        "n1",
		"embedding": []any{float64(0.5), float64(1.5)},
		"title":     "hello",
		"views":     int64(3),
		"ignored":   nil,
	}}
	p := queryParams{IDProperty: "id", VectorProp: "embedding"}

	rec := nodeToRecord(neo4j.Node(node), p)
	if rec.ID != "n1" {
		t.Errorf("id = %s", rec.ID)
	}
	if len(rec.Vector) != 2 || rec.Vector[1] != 1.5 {
		t.Errorf("vector = %v", rec.Vector)
	}
	if rec.Metadata["title"] != "hello" || rec.Metadata["views"] != int64(3) {
		t.Errorf("metadata = %v", rec.Metadata)
	}
	if _, ok := rec.Metadata["embedding"]; ok {
		t.Error("vector property must not leak into metadata")
	}
	if _, ok := rec.Metadata["ignored"]; ok {
		t.Error("nil properties must be dropped")
	}
}

func TestNodeToRecord_SelectedMetadata(t *testing.T) {
	node := dbtype.Node{Props: map[string]any{
		"id": "n1", "keep": "yes", "drop": "no",
	}}
	p := queryParams{IDProperty: "id", VectorProp: "embedding", MetadataProps: []string{"keep"}}

	rec := nodeToRecord(neo4j.Node(node), p)
	if rec.Metadata["keep"] != "yes" {
		t.Errorf("metadata = %v", rec.Metadata)
	}
	if _, ok := rec.Metadata["drop"]; ok {
		t.Error("unselected property must be dropped")
	}
}

func TestVectorConversion_RoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3}
	as64 := vectorToFloat64(in)
	asAny := make([]any, len(as64))
	for i, v := range as64 {
		asAny[i] = v
	}
	out := vectorFromValue(asAny)
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("value %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVectorFromValue_NotAList(t *testing.T) {
	if v := vectorFromValue("nope"); v != nil {
		t.Errorf("expected nil, got %v", v)
	}
	if v := vectorFromValue([]any{"a"}); v != nil {
		t.Errorf("expected nil for non-numeric list, got %v", v)
	}
}

func TestFlattenMetadata(t *testing.T) {
	props := flattenMetadata(map[string]any{
		"s":      "text",
		"n":      int64(1),
		"nested": map[string]any{"x": 1},
		"nil":    nil,
	})
	if props["s"] != "text" || props["n"] != int64(1) {
		t.Errorf("props = %v", props)
	}
	if _, ok := props["nested"]; ok {
		t.Error("nested maps are not node properties")
	}
	if _, ok := props["nil"]; ok {
		t.Error("nil values must be dropped")
	}
}

func TestSanitizeLabel(t *testing.T) {
	if got := sanitizeLabel("Rec`ord"); got != "`Record`" {
		t.Errorf("got %s", got)
	}
}
