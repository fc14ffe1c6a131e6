package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region constants
const (
	remoteService = "trainwatch.MetricSink"
	recordMethod  = "/" + remoteService + "/Record"
)
// #endregion constants

// #region client
// Remote buffers logged pairs and ships them to a MetricSink gRPC service on
// Flush. Each Flush sends one Record call carrying the run ID and every
// pending pair as a google.protobuf.Struct.
type Remote struct {
	cc      grpc.ClientConnInterface
	conn    *grpc.ClientConn // nil when cc was injected
	runID   string
	pending []Entry
	logger  *slog.Logger
	backoff time.Duration
}

// NewRemote connects to addr without transport security.
func NewRemote(addr, runID string, logger *slog.Logger) (*Remote, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	r := NewRemoteWithConn(conn, runID, logger)
	r.conn = conn
	return r, nil
}

// NewRemoteWithConn uses an existing connection, which the caller closes.
func NewRemoteWithConn(cc grpc.ClientConnInterface, runID string, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{cc: cc, runID: runID, logger: logger, backoff: defaultBackoff}
}

func (r *Remote) Log(name string, value float64) {
	r.pending = append(r.pending, Entry{Name: name, Value: value})
}

// Pending returns the number of buffered pairs.
func (r *Remote) Pending() int { return len(r.pending) }

// Flush sends every buffered pair. A transient failure is retried up to
// maxRetries times; after that, or on any other failure, the batch is
// dropped. The buffer is cleared either way.
func (r *Remote) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil

	req, err := encodeRecord(r.runID, batch)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	for attempt := 1; ; attempt++ {
		err = r.cc.Invoke(ctx, recordMethod, req, &emptypb.Empty{})
		if err == nil {
			return nil
		}
		if !shouldRetry(ctx, err, attempt) {
			break
		}
		r.logger.Debug("remote sink retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	r.logger.Warn("remote sink flush failed", "points", len(batch), "error", err)
	return fmt.Errorf("record rpc: %w", err)
}

// Close shuts down a connection opened by NewRemote.
func (r *Remote) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
// #endregion client

// #region retry
const (
	maxRetries     = 2 // 3 attempts in total
	defaultBackoff = 100 * time.Millisecond
)

// shouldRetry reports whether a failed Record call deserves another attempt.
// attempts counts the calls made so far.
func shouldRetry(ctx context.Context, err error, attempts int) bool {
	if attempts > maxRetries || ctx.Err() != nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}
// #endregion retry

// #region server
// RecordHandler receives one flushed batch on the server side.
type RecordHandler func(ctx context.Context, runID string, points []Entry) error

type metricSinkServer interface {
	Record(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

type recordServer struct {
	handle RecordHandler
}

func (s *recordServer) Record(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	runID, points, err := decodeRecord(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.handle(ctx, runID, points); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}

func recordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metricSinkServer).Record(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recordMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(metricSinkServer).Record(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var metricSinkServiceDesc = grpc.ServiceDesc{
	ServiceName: remoteService,
	HandlerType: (*metricSinkServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Record", Handler: recordHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trainwatch/metric_sink",
}

// RegisterRemoteServer exposes the MetricSink service on s.
func RegisterRemoteServer(s grpc.ServiceRegistrar, handle RecordHandler) {
	s.RegisterService(&metricSinkServiceDesc, &recordServer{handle: handle})
}
// #endregion server

// #region codec
func encodeRecord(runID string, points []Entry) (*structpb.Struct, error) {
	list := make([]any, len(points))
	for i, p := range points {
		list[i] = map[string]any{"name": p.Name, "value": p.Value}
	}
	return structpb.NewStruct(map[string]any{
		"run_id": runID,
		"points": list,
	})
}

func decodeRecord(req *structpb.Struct) (string, []Entry, error) {
	fields := req.GetFields()
	raw, ok := fields["points"]
	if !ok {
		return "", nil, errors.New("record: missing points")
	}
	values := raw.GetListValue().GetValues()
	points := make([]Entry, 0, len(values))
	for i, v := range values {
		p := v.GetStructValue().GetFields()
		name := p["name"].GetStringValue()
		if name == "" {
			return "", nil, fmt.Errorf("record: point %d has no name", i)
		}
		points = append(points, Entry{Name: name, Value: p["value"].GetNumberValue()})
	}
	return fields["run_id"].GetStringValue(), points, nil
}
// #endregion codec
