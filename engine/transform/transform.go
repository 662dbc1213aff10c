// Package transform holds the host-controlled table of named record
// transforms. The original tool loaded transform code from arbitrary file
// paths at run time; here the embedding application registers functions under
// names and the CLI resolves them at configuration time.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vecbridge/vecbridge/engine/record"
)

// Registry maps transform names to functions.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]record.Transform
}

// NewRegistry creates an empty transform registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]record.Transform)}
}

// Register adds fn under name, replacing any previous entry.
func (r *Registry) Register(name string, fn record.Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[strings.ToLower(name)] = fn
}

// Lookup resolves a registered transform by name.
func (r *Registry) Lookup(name string) (record.Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (valid: %s)", name, strings.Join(r.names(), ", "))
	}
	return fn, nil
}

// Names returns all registered transform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with the built-in transforms.
func Default() *Registry {
	r := NewRegistry()
	r.Register("add-source-tracking", AddSourceTracking("vecbridge"))
	r.Register("strip-vectors", StripVectors)
	return r
}

// AddSourceTracking stamps every record's metadata with the source database
// name and the migration timestamp.
func AddSourceTracking(sourceDB string) record.Transform {
	return func(records []record.Record) ([]record.Record, error) {
		ts := time.Now().Format(time.RFC3339)
		for i := range records {
			if records[i].Metadata == nil {
				records[i].Metadata = make(map[string]any, 2)
			}
			records[i].Metadata["source_db"] = sourceDB
			records[i].Metadata["migration_timestamp"] = ts
		}
		return records, nil
	}
}

// StripVectors drops the vector from every record, keeping ids and metadata.
// Useful when moving payloads into a target that re-embeds.
func StripVectors(records []record.Record) ([]record.Record, error) {
	for i := range records {
		records[i].Vector = nil
	}
	return records, nil
}
