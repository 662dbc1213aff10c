package adapters

import (
	"log/slog"
	"testing"
)

func TestDefault_RegistersAllBackends(t *testing.T) {
	reg := Default()
	want := []string{"milvus", "neo4j", "qdrant", "sqlite"}
	names := reg.Names()
	if len(names) != len(want) {
		t.Fatalf("expected %d adapters, got %v", len(want), names)
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("names[%d] = %s, want %s", i, names[i], n)
		}
	}
}

func TestDefault_ConstructorsBuild(t *testing.T) {
	reg := Default()
	for _, name := range reg.Names() {
		ctor, ok := reg.Lookup(name)
		if !ok {
			t.Fatalf("lookup %s failed", name)
		}
		if ctor(slog.Default()) == nil {
			t.Errorf("%s constructor returned nil", name)
		}
	}
}
