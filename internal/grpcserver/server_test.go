package grpcserver_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"jobmate/listing-service/internal/analytics"
	"jobmate/listing-service/internal/clock"
	apperr "jobmate/listing-service/internal/errors"
	"jobmate/listing-service/internal/grpcserver"
	"jobmate/listing-service/internal/lifecycle"
	"jobmate/listing-service/internal/model"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubRunner struct {
	res lifecycle.TransitionResult
	err error
}

func (r stubRunner) RunNow(context.Context) (lifecycle.TransitionResult, bool, error) {
	return r.res, true, r.err
}

type env struct {
	conn   *grpc.ClientConn
	srv    *grpcserver.Server
	engine *lifecycle.Engine
	jobID  string
}

func setup(t *testing.T, runner grpcserver.Runner) *env {
	t.Helper()
	clk := clock.NewFixed(now)
	store := lifecycle.NewMemoryStore()
	engine := lifecycle.NewEngine(store, clk, nil, zap.NewNop())
	agg := analytics.NewAggregator(analytics.NewMemoryStore(), store, clk, zap.NewNop())

	job, err := engine.CreateJob(context.Background(), lifecycle.JobInput{
		Company: "Acme", Role: "SRE", HiringLink: "https://acme.example/apply",
	})
	require.NoError(t, err)

	srv := grpcserver.New(engine, agg, runner, zap.NewNop())
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &env{conn: conn, srv: srv, engine: engine, jobID: job.ID}
}

func asRole(role string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-user-role", role)
}

func method(name string) string { return "/" + grpcserver.ServiceName + "/" + name }

func TestGetJob(t *testing.T) {
	e := setup(t, stubRunner{})

	out := &structpb.Struct{}
	err := e.conn.Invoke(context.Background(), method("GetJob"), wrapperspb.String(e.jobID), out)
	require.NoError(t, err)
	assert.Equal(t, e.jobID, out.Fields["id"].GetStringValue())
	assert.Equal(t, "active", out.Fields["status"].GetStringValue())
}

func TestGetJob_HiddenUnlessActive(t *testing.T) {
	e := setup(t, stubRunner{})
	_, err := e.engine.MoveToInactive(context.Background(), e.jobID)
	require.NoError(t, err)
	req := wrapperspb.String(e.jobID)

	err = e.conn.Invoke(context.Background(), method("GetJob"), req, &structpb.Struct{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = e.conn.Invoke(asRole("analyst"), method("GetJob"), req, &structpb.Struct{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	out := &structpb.Struct{}
	require.NoError(t, e.conn.Invoke(asRole("recruiter"), method("GetJob"), req, out))
	assert.Equal(t, string(model.StatusInactive), out.Fields["status"].GetStringValue())
}

func TestGetJob_NotFound(t *testing.T) {
	e := setup(t, stubRunner{})

	err := e.conn.Invoke(context.Background(), method("GetJob"), wrapperspb.String("missing"), &structpb.Struct{})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMoveToDump_RequiresCapability(t *testing.T) {
	e := setup(t, stubRunner{})
	req := wrapperspb.String(e.jobID)

	err := e.conn.Invoke(context.Background(), method("MoveToDump"), req, &structpb.Struct{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	err = e.conn.Invoke(asRole("intruder"), method("MoveToDump"), req, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	out := &structpb.Struct{}
	require.NoError(t, e.conn.Invoke(asRole("recruiter"), method("MoveToDump"), req, out))
	assert.Equal(t, "dump", out.Fields["status"].GetStringValue())

	require.NoError(t, e.conn.Invoke(asRole("recruiter"), method("ReactivateJob"), req, out))
	assert.Equal(t, "active", out.Fields["status"].GetStringValue())

	require.NoError(t, e.conn.Invoke(asRole("admin"), method("MoveToInactive"), req, out))
	assert.Equal(t, "inactive", out.Fields["status"].GetStringValue())
	assert.False(t, out.Fields["isActive"].GetBoolValue())
}

func TestRunTransitions(t *testing.T) {
	e := setup(t, stubRunner{res: lifecycle.TransitionResult{MovedToDump: 3, MovedToInactive: 1}})

	err := e.conn.Invoke(asRole("recruiter"), method("RunTransitions"), &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	out := &structpb.Struct{}
	require.NoError(t, e.conn.Invoke(asRole("admin"), method("RunTransitions"), &emptypb.Empty{}, out))
	assert.True(t, out.Fields["ran"].GetBoolValue())
	assert.Equal(t, 3.0, out.Fields["movedToDump"].GetNumberValue())
	assert.Equal(t, 1.0, out.Fields["movedToInactive"].GetNumberValue())
}

func TestRunTransitions_StorageFailure(t *testing.T) {
	e := setup(t, stubRunner{err: apperr.StorageFailure("move", errors.New("db down"))})

	err := e.conn.Invoke(asRole("admin"), method("RunTransitions"), &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestRunTransitions_StorageFailureLogsStack(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	srv := grpcserver.New(nil, nil, stubRunner{err: apperr.StorageFailure("move", errors.New("db down"))}, zap.New(core))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	err = conn.Invoke(asRole("admin"), method("RunTransitions"), &emptypb.Empty{}, &structpb.Struct{})
	require.Equal(t, codes.Unavailable, status.Code(err))

	entries := logs.FilterMessage("storage failure").All()
	require.Len(t, entries, 1)
	stack, ok := entries[0].ContextMap()["stack"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, stack)
}

func TestDashboard(t *testing.T) {
	e := setup(t, stubRunner{})

	out := &structpb.Struct{}
	require.NoError(t, e.conn.Invoke(asRole("analyst"), method("Dashboard"), wrapperspb.Int32(7), out))
	assert.Equal(t, 7.0, out.Fields["days"].GetNumberValue())

	err := e.conn.Invoke(asRole("analyst"), method("Dashboard"), wrapperspb.Int32(0), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealth(t *testing.T) {
	e := setup(t, stubRunner{})
	client := healthpb.NewHealthClient(e.conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var down atomic.Bool
	down.Store(true)
	go e.srv.WatchHealth(ctx, 10*time.Millisecond, func(context.Context) error {
		if down.Load() {
			return errors.New("store down")
		}
		return nil
	})

	statusOf := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.Status
	}

	assert.Eventually(t, func() bool {
		return statusOf() == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)

	down.Store(false)
	assert.Eventually(t, func() bool {
		return statusOf() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{apperr.NotFound("x", nil), codes.NotFound},
		{apperr.InvalidInput("x", nil), codes.InvalidArgument},
		{apperr.InvalidState("x", nil), codes.FailedPrecondition},
		{apperr.StorageFailure("x", errors.New("y")), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Aborted, "keep"), codes.Aborted},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, status.Code(grpcserver.ToStatus(c.err)), "%v", c.err)
	}
	assert.NoError(t, grpcserver.ToStatus(nil))
}
