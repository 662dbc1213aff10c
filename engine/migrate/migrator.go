package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/vecbridge/vecbridge/engine/record"
)

const instrumentationName = "github.com/vecbridge/vecbridge/engine/migrate"

// ErrNoData is returned when extraction yields zero records. The migration is
// aborted: a legitimately empty source is indistinguishable from a failed
// extraction at this layer, so callers get a distinct sentinel to decide with.
var ErrNoData = errors.New("no data extracted from source")

// Migrator orchestrates one source-to-target migration. It owns both adapter
// instances for the duration of the run and releases both handles on every
// exit path. A Migrator is single-use per Migrate call and must not be shared
// across concurrent runs.
type Migrator struct {
	source     Adapter
	target     Adapter
	sourceType string
	targetType string
	log        *slog.Logger

	recordsExtracted metric.Int64Counter
	recordsLoaded    metric.Int64Counter
}

// New builds a Migrator with fresh source and target adapters from the
// registry. Unknown backend types fail here, before any I/O.
func New(reg *Registry, sourceType, targetType string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	srcCtor, ok := reg.Lookup(sourceType)
	if !ok {
		return nil, reg.errUnknownType("source", sourceType)
	}
	tgtCtor, ok := reg.Lookup(targetType)
	if !ok {
		return nil, reg.errUnknownType("target", targetType)
	}

	meter := otel.Meter(instrumentationName)
	extracted, _ := meter.Int64Counter("vecbridge.records.extracted",
		metric.WithDescription("Records extracted from source backends"))
	loaded, _ := meter.Int64Counter("vecbridge.records.loaded",
		metric.WithDescription("Records acknowledged by target backends"))

	return &Migrator{
		source:           srcCtor(logger.With("adapter", sourceType, "role", "source")),
		target:           tgtCtor(logger.With("adapter", targetType, "role", "target")),
		sourceType:       sourceType,
		targetType:       targetType,
		log:              logger,
		recordsExtracted: extracted,
		recordsLoaded:    loaded,
	}, nil
}

// Migrate runs connect → extract → transform → connect → load → disconnect.
// Each adapter call is attempted exactly once; no retries happen at this
// layer. A nil return is the single consolidated success verdict. The source
// handle is always released before or together with the target handle, and
// the target is only ever connected after a successful extract.
func (m *Migrator) Migrate(ctx context.Context, source, target EndpointParams, transform record.Transform) (err error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "migrate")
	span.SetAttributes(
		attribute.String("source.type", m.sourceType),
		attribute.String("target.type", m.targetType),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	m.log.Info("starting migration", "source", m.sourceType, "target", m.targetType)

	if err := m.source.Connect(ctx, source.Connection); err != nil {
		m.log.Error("source connection failed", "error", err)
		return fmt.Errorf("source connection failed: %w", err)
	}

	records, err := m.source.Extract(ctx, source.Query)
	if err != nil {
		m.source.Disconnect()
		m.log.Error("extraction failed", "error", err)
		return fmt.Errorf("extract from %s: %w", m.sourceType, err)
	}
	if len(records) == 0 {
		m.source.Disconnect()
		m.log.Warn("no data extracted from source, migration aborted")
		return ErrNoData
	}
	m.recordsExtracted.Add(ctx, int64(len(records)))
	m.log.Info("extracted records", "count", len(records))

	if transform != nil {
		records, err = transform(records)
		if err != nil {
			m.source.Disconnect()
			m.log.Error("transform failed", "error", err)
			return fmt.Errorf("transform: %w", err)
		}
		m.log.Info("transformed records", "count", len(records))
	}

	if err := m.target.Connect(ctx, target.Connection); err != nil {
		m.source.Disconnect()
		m.log.Error("target connection failed", "error", err)
		return fmt.Errorf("target connection failed: %w", err)
	}

	result, loadErr := m.target.Load(ctx, records, target.Load)

	// Both handles are released unconditionally, source first, even when the
	// load failed.
	m.source.Disconnect()
	m.target.Disconnect()

	if loadErr != nil {
		m.log.Error("load failed", "error", loadErr)
		return fmt.Errorf("load into %s: %w", m.targetType, loadErr)
	}
	if result != nil {
		m.recordsLoaded.Add(ctx, int64(result.InsertCount))
		for _, e := range result.Errors {
			m.log.Warn("load reported error", "error", e)
		}
		m.log.Info("load finished",
			"inserted", result.InsertCount,
			"processed", result.ProcessedCount,
			"input", result.InputCount,
		)
	}

	m.log.Info("migration completed",
		"source", m.sourceType,
		"target", m.targetType,
		"duration", time.Since(start),
	)
	return nil
}
