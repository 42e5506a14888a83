package vector

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

const (
	payloadText       = "text"
	payloadChunkIndex = "chunk_index"
	payloadSource     = "source"
	payloadChapter    = "chapter"
)

// pointsAPI is the subset of pb.PointsClient the index uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the index uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantConfig holds the connection settings for a Qdrant server.
type QdrantConfig struct {
	// URL is the server address, e.g. "http://localhost:6333" or "https://xyz.cloud.qdrant.io".
	// The REST port 6333 is mapped to the gRPC port 6334; https enables TLS.
	URL    string
	APIKey string
}

// QdrantIndex is the sole owner of all Qdrant operations.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
}

// NewQdrantIndex connects to Qdrant over gRPC. The connection is established lazily.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, apperr.NotConfigured("vector", "QDRANT_URL")
	}
	addr, useTLS, err := GRPCTarget(cfg.URL)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "vector", err)
	}

	opts := []grpc.DialOption{}
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, apperr.Unreachable("vector", fmt.Errorf("dial qdrant %s: %w", addr, err))
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// NewQdrantIndexWithClients builds an index over existing clients. Close is a no-op.
func NewQdrantIndexWithClients(points pointsAPI, collections collectionsAPI) *QdrantIndex {
	return &QdrantIndex{points: points, collections: collections}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// GRPCTarget converts a Qdrant URL into a gRPC host:port and whether TLS is required.
// A bare host:port is taken as-is without TLS.
func GRPCTarget(raw string) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err != nil {
			return net.JoinHostPort(raw, "6334"), false, nil
		}
		return raw, false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid qdrant url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", false, fmt.Errorf("invalid qdrant url %q: missing host", raw)
	}
	port := u.Port()
	if port == "" || port == "6333" {
		port = "6334"
	}
	return net.JoinHostPort(u.Hostname(), port), u.Scheme == "https", nil
}

// Backend returns "qdrant".
func (q *QdrantIndex) Backend() string { return "qdrant" }

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error {
	if dimension <= 0 {
		return apperr.Validationf("vector", "dimension must be positive, got %d", dimension)
	}
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return grpcError("vector: list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}

	distance := pb.Distance_Cosine
	if metric == MetricDot {
		distance = pb.Distance_Dot
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: distance,
				},
			},
		},
	})
	if err != nil {
		// Another process may have created it between List and Create.
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return grpcError("vector: create collection "+name, err)
	}
	return nil
}

// Upsert stores records as points keyed by their UUID id.
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return grpcError(fmt.Sprintf("vector: upsert %d points", len(records)), err)
	}
	return nil
}

// Search performs k-NN similarity search.
func (q *QdrantIndex) Search(ctx context.Context, collection string, query []float32, limit int) ([]models.Hit, error) {
	if limit <= 0 {
		return nil, apperr.Validation("vector search", apperr.ErrInvalidLimit)
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         query,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, grpcError("vector: search", err)
	}

	results := resp.GetResult()
	if len(results) > limit {
		results = results[:limit]
	}
	hits := make([]models.Hit, len(results))
	for i, r := range results {
		hits[i] = models.Hit{
			ID:      r.GetId().GetUuid(),
			Score:   float64(r.GetScore()),
			Payload: fromPayload(r.GetPayload()),
		}
	}
	return hits, nil
}

// DeleteFrom removes the points of source with chunk_index >= fromIndex.
func (q *QdrantIndex) DeleteFrom(ctx context.Context, collection, source string, fromIndex int) error {
	wait := true
	from := float64(fromIndex)
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch(payloadSource, source),
						fieldRange(payloadChunkIndex, &pb.Range{Gte: &from}),
					},
				},
			},
		},
	})
	if err != nil {
		return grpcError(fmt.Sprintf("vector: delete %s from %d", source, fromIndex), err)
	}
	return nil
}

// Count returns the exact number of points in collection.
func (q *QdrantIndex) Count(ctx context.Context, collection string) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return 0, grpcError("vector: count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func toPayload(p models.Payload) map[string]*pb.Value {
	return map[string]*pb.Value{
		payloadText:       {Kind: &pb.Value_StringValue{StringValue: p.Text}},
		payloadChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.ChunkIndex)}},
		payloadSource:     {Kind: &pb.Value_StringValue{StringValue: p.Source}},
		payloadChapter:    {Kind: &pb.Value_StringValue{StringValue: p.Chapter}},
	}
}

func fromPayload(m map[string]*pb.Value) models.Payload {
	p := models.Payload{
		Text:    m[payloadText].GetStringValue(),
		Source:  m[payloadSource].GetStringValue(),
		Chapter: m[payloadChapter].GetStringValue(),
	}
	if v, ok := m[payloadChunkIndex]; ok {
		// Points written by other clients may carry the index as a double.
		if _, isDouble := v.GetKind().(*pb.Value_DoubleValue); isDouble {
			p.ChunkIndex = int(v.GetDoubleValue())
		} else {
			p.ChunkIndex = int(v.GetIntegerValue())
		}
	}
	return p
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func fieldRange(key string, r *pb.Range) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Range: r},
		},
	}
}

// grpcError classifies a Qdrant gRPC failure.
func grpcError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return apperr.New(apperr.KindProvider, op, err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(st.Message()), "dimension") {
			return apperr.New(apperr.KindDimensionMismatch, op, fmt.Errorf("%w: %s", apperr.ErrDimensionMismatch, st.Message()))
		}
		return apperr.New(apperr.KindProvider, op, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return apperr.Unreachable(op, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return apperr.New(apperr.KindAuth, op, err)
	case codes.ResourceExhausted:
		return apperr.New(apperr.KindRateLimited, op, err)
	default:
		return apperr.New(apperr.KindProvider, op, err)
	}
}
