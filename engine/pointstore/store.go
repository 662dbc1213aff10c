// Package pointstore implements the point-store adapter for Qdrant over gRPC.
// Records map onto points: the id becomes the point id, the vector the point
// vector, and metadata the payload.
package pointstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vecbridge/vecbridge/engine/migrate"
	"github.com/vecbridge/vecbridge/engine/record"
)

const (
	defaultCollection = "default_collection"
	defaultLimit      = 1000
	defaultBatchSize  = 100
)

// PointsClient is the slice of the points API the adapter uses, narrow
// enough to fake in tests. The generated gRPC client satisfies it.
type PointsClient interface {
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// CollectionsClient is the slice of the collections API the adapter uses.
type CollectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is the Qdrant adapter. It owns one gRPC connection.
type Store struct {
	conn        *grpc.ClientConn
	points      PointsClient
	collections CollectionsClient
	log         *slog.Logger
}

// New creates an unconnected Store.
func New(logger *slog.Logger) migrate.Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: logger}
}

// NewWithClients wires pre-built clients, for tests.
func NewWithClients(points PointsClient, collections CollectionsClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{points: points, collections: collections, log: logger}
}

type connParams struct {
	Address string `json:"address"`
}

type queryParams struct {
	Collection string            `json:"collection_name"`
	Limit      uint32            `json:"limit"`
	Offset     string            `json:"offset"`
	Filter     map[string]string `json:"filter"`
}

type loadParams struct {
	Collection string `json:"collection_name"`
	Recreate   bool   `json:"recreate_collection"`
	Distance   string `json:"distance"`
	BatchSize  int    `json:"batch_size"`
	OnDisk     bool   `json:"on_disk"`
}

// Connect dials the gRPC endpoint.
func (s *Store) Connect(ctx context.Context, params json.RawMessage) error {
	var p connParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("pointstore: connection params: %w", err)
		}
	}
	if p.Address == "" {
		p.Address = "localhost:6334"
	}

	conn, err := grpc.NewClient(p.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("pointstore: dial %s: %w", p.Address, err)
	}

	s.conn = conn
	s.points = pb.NewPointsClient(conn)
	s.collections = pb.NewCollectionsClient(conn)
	s.log.Debug("connected", "address", p.Address)
	return nil
}

// Disconnect closes the gRPC connection. No-op when already disconnected.
func (s *Store) Disconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.points = nil
	s.collections = nil
	s.log.Debug("disconnected")
}

func (s *Store) connected() bool {
	return s.points != nil && s.collections != nil
}

// Extract scrolls points out of a collection. A missing collection or a
// backend failure yields an empty result.
func (s *Store) Extract(ctx context.Context, params json.RawMessage) ([]record.Record, error) {
	if !s.connected() {
		return nil, record.ErrNotConnected
	}

	p := queryParams{Collection: defaultCollection, Limit: defaultLimit}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			s.log.Error("bad query params", "error", err)
			return nil, nil
		}
	}
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}

	exists, err := s.collectionExists(ctx, p.Collection)
	if err != nil {
		s.log.Error("list collections failed", "error", err)
		return nil, nil
	}
	if !exists {
		s.log.Warn("collection not found", "collection", p.Collection)
		return nil, nil
	}

	req := &pb.ScrollPoints{
		CollectionName: p.Collection,
		Limit:          &p.Limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}
	if p.Offset != "" {
		req.Offset = pointID(p.Offset)
	}
	if len(p.Filter) > 0 {
		must := make([]*pb.Condition, 0, len(p.Filter))
		for k, v := range p.Filter {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		s.log.Error("scroll failed", "collection", p.Collection, "error", err)
		return nil, nil
	}

	out := make([]record.Record, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		rec := record.Record{ID: idString(pt.GetId())}
		if v := pt.GetVectors().GetVector(); v != nil {
			rec.Vector = v.GetData()
		}
		if payload := pt.GetPayload(); len(payload) > 0 {
			rec.Metadata = make(map[string]any, len(payload))
			for k, v := range payload {
				rec.Metadata[k] = valueToAny(v)
			}
		}
		out = append(out, rec)
	}

	s.log.Debug("extracted points", "collection", p.Collection, "count", len(out))
	return out, nil
}

// Load upserts records as points in batches, creating or recreating the
// collection with the declared distance metric first. The vector dimension
// comes from the first record carrying a vector.
func (s *Store) Load(ctx context.Context, records []record.Record, params json.RawMessage) (*record.LoadResult, error) {
	if !s.connected() {
		return nil, record.ErrNotConnected
	}

	result := &record.LoadResult{InputCount: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	p := loadParams{Collection: defaultCollection, Distance: "cosine", BatchSize: defaultBatchSize}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("pointstore: load params: %w", err)
		}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}

	dim := 0
	for _, r := range records {
		if r.Vector != nil {
			dim = len(r.Vector)
			break
		}
	}
	if dim == 0 {
		return nil, fmt.Errorf("pointstore: no record carries a vector to derive the collection dimension from")
	}

	if err := s.ensureCollection(ctx, p, uint64(dim)); err != nil {
		return nil, err
	}

	points := make([]*pb.PointStruct, 0, p.BatchSize)
	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		wait := true
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: p.Collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("pointstore: upsert %d points: %w", len(points), err)
		}
		result.InsertCount += len(points)
		points = points[:0]
		return nil
	}

	for i, rec := range records {
		if rec.ID == "" {
			s.log.Warn("record missing id, skipped", "index", i)
			continue
		}
		payload := make(map[string]*pb.Value, len(rec.Metadata))
		for k, v := range rec.Metadata {
			payload[k] = anyToValue(v)
		}
		points = append(points, &pb.PointStruct{
			Id:      pointID(rec.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: payload,
		})
		result.ProcessedCount++
		result.PrimaryKeys = append(result.PrimaryKeys, rec.ID)

		if len(points) >= p.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	s.log.Info("loaded points", "collection", p.Collection, "count", result.InsertCount)
	return result, nil
}

// DescribeSchema reports the synthetic schema of a collection: the implicit
// point id, the vector config, and scalar fields observed on a sample point.
func (s *Store) DescribeSchema(ctx context.Context, collection string) (*record.Schema, error) {
	if !s.connected() {
		return nil, record.ErrNotConnected
	}
	if collection == "" {
		collection = defaultCollection
	}

	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		s.log.Warn("collection info unavailable", "collection", collection, "error", err)
		return nil, nil
	}

	schema := &record.Schema{
		Collection:   collection,
		PrimaryField: "id",
		Fields: []record.Field{
			{Name: "id", Kind: record.KindPrimaryKey, Primary: true},
		},
	}

	if vp := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams(); vp != nil {
		schema.Fields = append(schema.Fields, record.Field{
			Name: "vector",
			Kind: record.KindVector,
			Params: map[string]string{
				"dim":      fmt.Sprintf("%d", vp.GetSize()),
				"distance": vp.GetDistance().String(),
			},
		})
	}

	// Sample one point to surface payload fields.
	one := uint32(1)
	sample, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: collection,
		Limit:          &one,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err == nil && len(sample.GetResult()) > 0 {
		for k := range sample.GetResult()[0].GetPayload() {
			schema.Fields = append(schema.Fields, record.Field{Name: k, Kind: record.KindScalar})
		}
	}
	return schema, nil
}

func (s *Store) collectionExists(ctx context.Context, name string) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, err
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ensureCollection(ctx context.Context, p loadParams, dim uint64) error {
	exists, err := s.collectionExists(ctx, p.Collection)
	if err != nil {
		return fmt.Errorf("pointstore: list collections: %w", err)
	}

	if exists && !p.Recreate {
		return nil
	}
	if exists {
		if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: p.Collection}); err != nil {
			return fmt.Errorf("pointstore: delete collection %s: %w", p.Collection, err)
		}
	}

	vp := &pb.VectorParams{Size: dim, Distance: distanceOf(p.Distance)}
	if p.OnDisk {
		onDisk := true
		vp.OnDisk = &onDisk
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: p.Collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{Params: vp},
		},
	})
	if err != nil {
		return fmt.Errorf("pointstore: create collection %s: %w", p.Collection, err)
	}
	s.log.Info("created collection", "collection", p.Collection, "dimension", dim)
	return nil
}

func distanceOf(name string) pb.Distance {
	switch strings.ToLower(name) {
	case "euclid", "euclidean":
		return pb.Distance_Euclid
	case "dot":
		return pb.Distance_Dot
	default:
		return pb.Distance_Cosine
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
