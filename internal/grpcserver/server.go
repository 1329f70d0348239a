// Package grpcserver exposes the listing operations over gRPC.
//
// It delegates all business logic to the lifecycle engine, the analytics
// aggregator and the scheduler and handles only the gRPC transport
// concerns: role metadata, error mapping and conversion of domain values to
// well-known protobuf types. The service descriptor is declared by hand
// over wrapperspb/structpb messages, so no generated code is needed.
package grpcserver

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"jobmate/listing-service/internal/access"
	"jobmate/listing-service/internal/analytics"
	apperr "jobmate/listing-service/internal/errors"
	"jobmate/listing-service/internal/lifecycle"
	"jobmate/listing-service/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "jobmate.listing.v1.ListingService"

// Jobs is the part of the lifecycle engine served over gRPC.
type Jobs interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ReactivateJob(ctx context.Context, id string) (*model.Job, error)
	MoveToDump(ctx context.Context, id string) (*model.Job, error)
	MoveToInactive(ctx context.Context, id string) (*model.Job, error)
}

// Reports serves the analytics rollup.
type Reports interface {
	Dashboard(ctx context.Context, days int) (*analytics.Dashboard, error)
}

// Runner triggers an on-demand lifecycle pass.
type Runner interface {
	RunNow(ctx context.Context) (lifecycle.TransitionResult, bool, error)
}

// Server owns the grpc.Server, its health service and the listing service.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	jobs    Jobs
	reports Reports
	runner  Runner
	logger  *zap.Logger
}

// New builds a Server with the listing, health and reflection services
// registered.
func New(jobs Jobs, reports Reports, runner Runner, logger *zap.Logger) *Server {
	s := &Server{
		health:  health.NewServer(),
		jobs:    jobs,
		reports: reports,
		runner:  runner,
		logger:  logger,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		errorInterceptor(logger),
		roleInterceptor(methodCapabilities),
	))
	s.grpc.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Serve blocks serving lis until Stop or GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop marks the service NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// WatchHealth runs checks every interval until ctx ends and publishes the
// result as the serving status of both the server and ServiceName.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration, checks ...Check) {
	s.updateHealth(ctx, checks)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealth(ctx, checks)
		}
	}
}

func (s *Server) updateHealth(ctx context.Context, checks []Check) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// ─── RPC implementations ─────────────────────────────────────────────────────

// GetJob returns one job by id. Roles that cannot transition jobs only see
// active ones.
func (s *Server) GetJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	job, err := s.jobs.GetJob(ctx, req.GetValue())
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusActive && !access.Allowed(roleFromCtx(ctx), access.TransitionJobs) {
		return nil, apperr.NotFound("job not found", nil)
	}
	return toStruct(job)
}

// ReactivateJob moves a job back to active.
func (s *Server) ReactivateJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	job, err := s.jobs.ReactivateJob(ctx, req.GetValue())
	if err != nil {
		return nil, err
	}
	return toStruct(job)
}

// MoveToDump moves a job to dump regardless of age.
func (s *Server) MoveToDump(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	job, err := s.jobs.MoveToDump(ctx, req.GetValue())
	if err != nil {
		return nil, err
	}
	return toStruct(job)
}

// MoveToInactive moves a job to inactive regardless of age.
func (s *Server) MoveToInactive(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	job, err := s.jobs.MoveToInactive(ctx, req.GetValue())
	if err != nil {
		return nil, err
	}
	return toStruct(job)
}

// RunTransitions runs a lifecycle pass now unless one is in flight.
func (s *Server) RunTransitions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, ran, err := s.runner.RunNow(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{
		"ran":             ran,
		"movedToDump":     res.MovedToDump,
		"movedToInactive": res.MovedToInactive,
	})
}

// Dashboard returns the analytics rollup of the last N days.
func (s *Server) Dashboard(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	d, err := s.reports.Dashboard(ctx, int(req.GetValue()))
	if err != nil {
		return nil, err
	}
	return toStruct(d)
}

// ─── Service descriptor ──────────────────────────────────────────────────────

// ListingServer is the handler type of the listing service.
type ListingServer interface {
	GetJob(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ReactivateJob(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	MoveToDump(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	MoveToInactive(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RunTransitions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Dashboard(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
}

var methodCapabilities = map[string]access.Capability{
	"/" + ServiceName + "/GetJob":         access.ReadJobs,
	"/" + ServiceName + "/ReactivateJob":  access.TransitionJobs,
	"/" + ServiceName + "/MoveToDump":     access.TransitionJobs,
	"/" + ServiceName + "/MoveToInactive": access.TransitionJobs,
	"/" + ServiceName + "/RunTransitions": access.RunTransitions,
	"/" + ServiceName + "/Dashboard":      access.ReadAnalytics,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ListingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetJob", ListingServer.GetJob),
		unary("ReactivateJob", ListingServer.ReactivateJob),
		unary("MoveToDump", ListingServer.MoveToDump),
		unary("MoveToInactive", ListingServer.MoveToInactive),
		unary("RunTransitions", ListingServer.RunTransitions),
		unary("Dashboard", ListingServer.Dashboard),
	},
	Streams: []grpc.StreamDesc{},
}

// unary builds the MethodDesc protoc-gen-go-grpc would generate for a
// unary method.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}](name string, call func(ListingServer, context.Context, PReq) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ListingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ListingServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// toStruct converts a JSON-serialisable value into a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
