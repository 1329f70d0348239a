package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"jobmate/listing-service/internal/access"
	apperr "jobmate/listing-service/internal/errors"
)

// ToStatus maps domain errors to gRPC status errors. Errors that already
// carry a status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch apperr.TypeOf(err) {
	case apperr.ErrTypeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case apperr.ErrTypeInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case apperr.ErrTypeInvalidState:
		return status.Error(codes.FailedPrecondition, err.Error())
	case apperr.ErrTypeStorageFailure:
		return status.Error(codes.Unavailable, "storage unavailable")
	}
	if ctxErr := status.FromContextError(err); ctxErr.Code() != codes.Unknown {
		return ctxErr.Err()
	}
	return status.Error(codes.Internal, "internal server error")
}

func errorInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if apperr.IsStorageFailure(err) {
			logger.Error("storage failure",
				zap.String("method", info.FullMethod),
				zap.Error(err),
				zap.ByteString("stack", apperr.StackOf(err)))
		}
		return resp, ToStatus(err)
	}
}

// roleInterceptor checks the x-user-role metadata forwarded by the gateway
// against the capability each method requires. Methods outside the table
// (health, reflection) are open.
func roleInterceptor(required map[string]access.Capability) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		c, ok := required[info.FullMethod]
		if !ok {
			return handler(ctx, req)
		}
		role := roleFromCtx(ctx)
		if !access.Known(role) {
			return nil, status.Error(codes.Unauthenticated, "unknown role")
		}
		if !access.Allowed(role, c) {
			return nil, status.Errorf(codes.PermissionDenied, "role %q lacks %s", role, c)
		}
		return handler(ctx, req)
	}
}

func roleFromCtx(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return access.RoleAnonymous
	}
	vals := md.Get(access.RoleHeader)
	if len(vals) == 0 {
		return access.RoleAnonymous
	}
	return vals[0]
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("took", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unavailable {
			logger.Error("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
