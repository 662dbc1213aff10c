// Package adapters assembles the built-in adapter registry.
package adapters

import (
	"github.com/vecbridge/vecbridge/engine/columnar"
	"github.com/vecbridge/vecbridge/engine/graphvec"
	"github.com/vecbridge/vecbridge/engine/migrate"
	"github.com/vecbridge/vecbridge/engine/pointstore"
	"github.com/vecbridge/vecbridge/engine/sqlvec"
)

// Default returns a registry with every built-in adapter registered.
func Default() *migrate.Registry {
	reg := migrate.NewRegistry()
	reg.Register("sqlite", sqlvec.New)
	reg.Register("qdrant", pointstore.New)
	reg.Register("milvus", columnar.New)
	reg.Register("neo4j", graphvec.New)
	return reg
}
