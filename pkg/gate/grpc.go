package gate

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// MethodEntitlements maps a full gRPC method name
// ("/pkg.Service/Method") to the entitlement it requires. Methods not in
// the map only require authentication.
type MethodEntitlements map[string]string

// UnaryServerInterceptor authenticates every call from the
// "authorization" metadata and applies methods.
func (g *Gate) UnaryServerInterceptor(methods MethodEntitlements) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.authorizeRPC(ctx, info.FullMethod, methods)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streams.
func (g *Gate) StreamServerInterceptor(methods MethodEntitlements) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.authorizeRPC(ss.Context(), info.FullMethod, methods)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func (g *Gate) authorizeRPC(ctx context.Context, method string, methods MethodEntitlements) (context.Context, error) {
	var raw string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = vals[0]
		}
	}
	claims, err := g.Verify(ctx, raw)
	if err != nil {
		return ctx, g.rpcError(ctx, err)
	}
	if key, ok := methods[method]; ok && key != "" {
		if err := g.Check(ctx, claims, key); err != nil {
			return ctx, g.rpcError(ctx, err)
		}
	}
	return ContextWithClaims(ctx, claims), nil
}

func (g *Gate) rpcError(ctx context.Context, err error) error {
	e := sserr.FromError(err)
	g.metrics.GateRejection(e.Reason())
	var code codes.Code
	switch {
	case e.Code == sserr.CodeOrgContextRequired:
		code = codes.FailedPrecondition
	case sserr.IsAuthentication(e):
		code = codes.Unauthenticated
	case sserr.IsAuthorization(e):
		code = codes.PermissionDenied
	case sserr.IsUnavailable(e):
		code = codes.Unavailable
	default:
		g.logger.ErrorContext(ctx, "gate failed", "error", err)
		code = codes.Internal
	}
	return status.Error(code, e.Reason())
}

// wrappedServerStream carries the enriched context into stream handlers.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context { return w.ctx }
