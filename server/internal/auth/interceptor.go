package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor returns a gRPC UnaryServerInterceptor that requires a
// bearer token in the "authorization" metadata on every call except the
// full method names listed in public.
//
// A missing or rejected token returns codes.Unauthenticated; a store failure
// while resolving the caller returns codes.Internal.
func UnaryInterceptor(v Validator, public ...string) grpc.UnaryServerInterceptor {
	open := methodSet(public)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if open[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authorize(ctx, v)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
func StreamInterceptor(v Validator, public ...string) grpc.StreamServerInterceptor {
	open := methodSet(public)
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if open[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := authorize(ss.Context(), v)
		if err != nil {
			return err
		}
		return handler(srv, &principalStream{ServerStream: ss, ctx: ctx})
	}
}

func methodSet(methods []string) map[string]bool {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	return set
}

// authorize resolves the caller from the incoming metadata and returns ctx
// carrying the Principal.
func authorize(ctx context.Context, v Validator) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	tok, ok := strings.CutPrefix(vals[0], "Bearer ")
	if !ok || tok == "" {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}

	p, err := v.Validate(ctx, tok)
	if err != nil {
		var te *TokenError
		if errors.As(err, &te) || errors.Is(err, ErrUnauthenticated) {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return nil, status.Error(codes.Internal, "resolve caller")
	}
	return NewContext(ctx, p), nil
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context { return s.ctx }
