package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/vecbridge/vecbridge/engine/record"
)

// --- Mocks ---

type stubAdapter struct {
	connectErr  error
	extractRecs []record.Record
	extractErr  error
	loadResult  *record.LoadResult
	loadErr     error

	connectCalls    int
	extractCalls    int
	loadCalls       int
	disconnectCalls int
	gotRecords      []record.Record
}

func (a *stubAdapter) Connect(_ context.Context, _ json.RawMessage) error {
	a.connectCalls++
	return a.connectErr
}

func (a *stubAdapter) Disconnect() {
	a.disconnectCalls++
}

func (a *stubAdapter) Extract(_ context.Context, _ json.RawMessage) ([]record.Record, error) {
	a.extractCalls++
	return a.extractRecs, a.extractErr
}

func (a *stubAdapter) Load(_ context.Context, records []record.Record, _ json.RawMessage) (*record.LoadResult, error) {
	a.loadCalls++
	a.gotRecords = records
	if a.loadResult != nil || a.loadErr != nil {
		return a.loadResult, a.loadErr
	}
	return &record.LoadResult{
		InsertCount:    len(records),
		ProcessedCount: len(records),
		InputCount:     len(records),
	}, nil
}

func (a *stubAdapter) DescribeSchema(_ context.Context, _ string) (*record.Schema, error) {
	return nil, nil
}

func newTestMigrator(t *testing.T, source, target *stubAdapter) *Migrator {
	t.Helper()
	reg := NewRegistry()
	reg.Register("stub-source", func(_ *slog.Logger) Adapter { return source })
	reg.Register("stub-target", func(_ *slog.Logger) Adapter { return target })
	m, err := New(reg, "stub-source", "stub-target", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func twoRecords() []record.Record {
	return []record.Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}
}

// --- Tests ---

func TestNew_UnknownSourceType(t *testing.T) {
	reg := NewRegistry()
	reg.Register("known", func(_ *slog.Logger) Adapter { return &stubAdapter{} })
	if _, err := New(reg, "bogus", "known", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_UnknownTargetType(t *testing.T) {
	reg := NewRegistry()
	reg.Register("known", func(_ *slog.Logger) Adapter { return &stubAdapter{} })
	if _, err := New(reg, "known", "bogus", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestMigrate_Success(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.loadCalls != 1 {
		t.Fatalf("expected 1 load call, got %d", target.loadCalls)
	}
	if len(target.gotRecords) != 2 {
		t.Fatalf("expected 2 records loaded, got %d", len(target.gotRecords))
	}
	if source.disconnectCalls != 1 || target.disconnectCalls != 1 {
		t.Errorf("expected both handles released, got source=%d target=%d",
			source.disconnectCalls, target.disconnectCalls)
	}
}

func TestMigrate_TransformApplied(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	tag := func(records []record.Record) ([]record.Record, error) {
		for i := range records {
			if records[i].Metadata == nil {
				records[i].Metadata = make(map[string]any)
			}
			records[i].Metadata["tag"] = "x"
		}
		return records, nil
	}

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, tag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(target.gotRecords) != 2 {
		t.Fatalf("expected 2 records, got %d", len(target.gotRecords))
	}
	for _, r := range target.gotRecords {
		if r.Metadata["tag"] != "x" {
			t.Errorf("record %s missing tag", r.ID)
		}
	}
}

func TestMigrate_SourceConnectFails(t *testing.T) {
	source := &stubAdapter{connectErr: errors.New("refused")}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err == nil {
		t.Fatal("expected error")
	}
	if target.connectCalls != 0 || target.loadCalls != 0 {
		t.Errorf("target must not be touched, got connect=%d load=%d",
			target.connectCalls, target.loadCalls)
	}
}

func TestMigrate_ExtractFails(t *testing.T) {
	source := &stubAdapter{extractErr: errors.New("boom")}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err == nil {
		t.Fatal("expected error")
	}
	if source.disconnectCalls != 1 {
		t.Errorf("expected source released, got %d", source.disconnectCalls)
	}
	if target.connectCalls != 0 {
		t.Errorf("target must not be connected, got %d", target.connectCalls)
	}
}

func TestMigrate_NoData(t *testing.T) {
	source := &stubAdapter{}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if source.disconnectCalls != 1 {
		t.Errorf("expected source released, got %d", source.disconnectCalls)
	}
	if target.connectCalls != 0 || target.loadCalls != 0 {
		t.Errorf("target must not be touched, got connect=%d load=%d",
			target.connectCalls, target.loadCalls)
	}
}

func TestMigrate_TransformFails(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	fail := func(_ []record.Record) ([]record.Record, error) {
		return nil, errors.New("bad transform")
	}

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, fail); err == nil {
		t.Fatal("expected error")
	}
	if source.disconnectCalls != 1 {
		t.Errorf("expected source released, got %d", source.disconnectCalls)
	}
	if target.connectCalls != 0 {
		t.Errorf("target must not be connected, got %d", target.connectCalls)
	}
}

func TestMigrate_TargetConnectFails(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{connectErr: errors.New("refused")}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err == nil {
		t.Fatal("expected error")
	}
	if source.disconnectCalls != 1 {
		t.Errorf("expected source released, got %d", source.disconnectCalls)
	}
	if target.loadCalls != 0 {
		t.Errorf("load must not run, got %d", target.loadCalls)
	}
}

func TestMigrate_LoadFails(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{loadErr: errors.New("write refused")}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err == nil {
		t.Fatal("expected error")
	}
	if source.disconnectCalls != 1 || target.disconnectCalls != 1 {
		t.Errorf("expected both handles released, got source=%d target=%d",
			source.disconnectCalls, target.disconnectCalls)
	}
}

func TestMigrate_LoadResultErrorsDoNotFail(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{loadResult: &record.LoadResult{
		InsertCount:    1,
		ProcessedCount: 2,
		InputCount:     2,
		Errors:         []string{"Discrepancy: 2 processed, 1 inserted."},
	}}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMigrate_EachCallOnce(t *testing.T) {
	source := &stubAdapter{extractRecs: twoRecords()}
	target := &stubAdapter{}
	m := newTestMigrator(t, source, target)

	if err := m.Migrate(context.Background(), EndpointParams{}, EndpointParams{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.connectCalls != 1 || source.extractCalls != 1 {
		t.Errorf("source calls: connect=%d extract=%d", source.connectCalls, source.extractCalls)
	}
	if target.connectCalls != 1 || target.loadCalls != 1 {
		t.Errorf("target calls: connect=%d load=%d", target.connectCalls, target.loadCalls)
	}
}
