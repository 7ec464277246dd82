// Package visualiser streams navigation status to external viewers over gRPC.
//
// The service is declared by hand with protobuf well-known types, so no
// generated stubs are needed:
//
//	service NavStream {
//	  rpc GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc WatchStatus(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
//
// Each Struct carries the JSON form of nav.Status.
package visualiser

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wallnav.visualiser.v1.NavStream"

const (
	getStatusMethod   = "/" + ServiceName + "/GetStatus"
	watchStatusMethod = "/" + ServiceName + "/WatchStatus"
)

// DefaultInterval is the WatchStatus cadence.
const DefaultInterval = 100 * time.Millisecond

// StatusSource is satisfied by *nav.NavigationLoop.
type StatusSource interface {
	Status() nav.Status
}

// NavStreamServer is the server side of the NavStream service.
type NavStreamServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchStatus(*emptypb.Empty, grpc.ServerStream) error
}

var navStreamDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NavStreamServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchStatus", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "wallnav/visualiser/v1/navstream.proto",
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NavStreamServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NavStreamServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NavStreamServer).WatchStatus(in, stream)
}

// Stats counts streaming activity.
type Stats struct {
	Clients  int32  `json:"clients"`
	Messages uint64 `json:"messages"`
}

// Server implements NavStreamServer over a StatusSource.
type Server struct {
	source   StatusSource
	clock    timeutil.Clock
	interval time.Duration

	clients  atomic.Int32
	messages atomic.Uint64
}

var _ NavStreamServer = (*Server)(nil)

// NewServer streams source every interval; interval <= 0 uses DefaultInterval.
func NewServer(source StatusSource, clock timeutil.Clock, interval time.Duration) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Server{source: source, clock: clock, interval: interval}
}

// Register adds the NavStream service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&navStreamDesc, s)
}

// GetStatus returns one status snapshot.
func (s *Server) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return s.snapshot()
}

// WatchStatus sends a snapshot immediately and then every interval until the
// client goes away.
func (s *Server) WatchStatus(_ *emptypb.Empty, stream grpc.ServerStream) error {
	s.clients.Add(1)
	defer s.clients.Add(-1)
	monitoring.Logf("[visualiser] status client connected")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	ctx := stream.Context()
	for {
		msg, err := s.snapshot()
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
		s.messages.Add(1)

		select {
		case <-ctx.Done():
			monitoring.Logf("[visualiser] status client disconnected")
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

func (s *Server) snapshot() (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.Unavailable, "navigation loop not running")
	}
	msg, err := StatusStruct(s.source.Status())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return msg, nil
}

// Stats returns the streaming counters.
func (s *Server) Stats() Stats {
	return Stats{Clients: s.clients.Load(), Messages: s.messages.Load()}
}

// Serve runs a gRPC server on lis until ctx ends. Open streams are cancelled
// on shutdown since WatchStatus never ends on its own.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	g := grpc.NewServer()
	s.Register(g)

	errc := make(chan error, 1)
	go func() { errc <- g.Serve(lis) }()
	monitoring.Logf("[visualiser] gRPC server listening on %s", lis.Addr())

	select {
	case <-ctx.Done():
		g.Stop()
		<-errc
		monitoring.Logf("[visualiser] gRPC server stopped")
		return nil
	case err := <-errc:
		return err
	}
}

// StatusStruct converts st to a protobuf Struct through its JSON form.
func StatusStruct(st nav.Status) (*structpb.Struct, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}
