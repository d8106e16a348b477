package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// IngestUploadMethod is the unary RPC receiving metric batches.
// The request is a structpb.ListValue of row structs; the response is emptypb.Empty.
const IngestUploadMethod = "/synthprod.ingest.v1.Ingest/Upload"

// GRPCSinkConfig describes one gRPC ingestion endpoint.
// Params: host:port address, optional bearer token, and extra dial options.
// Returns: gRPC sink settings.
type GRPCSinkConfig struct {
	Addr        string
	Token       string
	DialOptions []grpc.DialOption
}

// GRPCSink pushes batches over a cached gRPC client connection.
type GRPCSink struct {
	addr        string
	token       string
	dialOptions []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewGRPCSink validates settings and builds the sink; connection is opened lazily.
// Params: cfg endpoint settings.
// Returns: gRPC sink or error on empty address.
func NewGRPCSink(cfg GRPCSinkConfig) (*GRPCSink, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("grpc address is empty")
	}
	options := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	options = append(options, cfg.DialOptions...)

	return &GRPCSink{
		addr:        addr,
		token:       strings.TrimSpace(cfg.Token),
		dialOptions: options,
	}, nil
}

// Send encodes and pushes one batch.
// Params: ctx call context; batch payload.
// Returns: transient error for retryable status codes, fatal error for encode failures and other codes.
func (s *GRPCSink) Send(ctx context.Context, batch []MetricPoint) error {
	request, err := encodeBatch(batch)
	if err != nil {
		return Fatal(err)
	}

	conn, err := s.connection()
	if err != nil {
		return Transient(err)
	}

	if s.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.token)
	}

	if err := conn.Invoke(ctx, IngestUploadMethod, request, &emptypb.Empty{}); err != nil {
		code := status.Code(err)
		wrapped := fmt.Errorf("upload %s: %w", s.addr, err)
		if code == codes.Unavailable {
			s.dropConnection(conn)
		}
		if retryableGRPCCode(code) {
			return Transient(wrapped)
		}
		return Fatal(wrapped)
	}
	return nil
}

// Close closes the cached connection.
// Params: none.
// Returns: close error when present.
func (s *GRPCSink) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// connection returns cached client connection or creates a new one.
// Params: none.
// Returns: client connection or error.
func (s *GRPCSink) connection() (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := grpc.NewClient(s.addr, s.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	s.conn = conn
	return conn, nil
}

// dropConnection discards conn if it is still the cached one.
// Params: conn connection that failed.
// Returns: none.
func (s *GRPCSink) dropConnection(conn *grpc.ClientConn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()
}

// retryableGRPCCode reports whether a status code is transient.
// Params: code gRPC status code.
// Returns: true for availability, throttling, deadline, and server-side codes.
func retryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable,
		codes.ResourceExhausted,
		codes.DeadlineExceeded,
		codes.Aborted,
		codes.Internal,
		codes.Unknown:
		return true
	default:
		return false
	}
}

// encodeBatch converts points into protobuf rows.
// Params: batch points.
// Returns: list value or conversion error.
func encodeBatch(batch []MetricPoint) (*structpb.ListValue, error) {
	rows := make([]*structpb.Value, 0, len(batch))
	for idx, point := range batch {
		row, err := encodePoint(point)
		if err != nil {
			return nil, fmt.Errorf("encode point[%d]: %w", idx, err)
		}
		rows = append(rows, structpb.NewStructValue(row))
	}
	return &structpb.ListValue{Values: rows}, nil
}

// encodePoint converts one point into a protobuf struct using ingestion field names.
// Params: point metric sample.
// Returns: struct row or error on non-finite values.
func encodePoint(point MetricPoint) (*structpb.Struct, error) {
	if !isFinite(point.CPUPercent) || !isFinite(point.LatencyMs) {
		return nil, fmt.Errorf("non-finite float value")
	}

	tags := make(map[string]any, len(point.Tags))
	for key, value := range point.Tags {
		tags[key] = value
	}

	return structpb.NewStruct(map[string]any{
		"TimeGenerated": point.Timestamp.UTC().Format(time.RFC3339Nano),
		"Host":          point.Host,
		"cpu_percent":   point.CPUPercent,
		"latency_ms":    point.LatencyMs,
		"tags":          tags,
	})
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
