package grpcops

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/clientledger/clientledger/server/internal/auth"
)

// StoreService is the health service name that tracks store reachability.
// The empty name reports the same status for the server as a whole.
const StoreService = "clientledger.Store"

// DefaultProbeInterval is how often the store is pinged.
const DefaultProbeInterval = 10 * time.Second

// publicMethods may be called without a token.
var publicMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
}

// Server is the operations gRPC server.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
}

// New builds a Server that authenticates callers with v and probes the
// store with ping every interval (DefaultProbeInterval when zero).
func New(v auth.Validator, ping func(ctx context.Context) error, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	s := &Server{
		grpc: grpc.NewServer(
			grpc.UnaryInterceptor(auth.UnaryInterceptor(v, publicMethods...)),
			grpc.StreamInterceptor(auth.StreamInterceptor(v, publicMethods...)),
		),
		health:   health.NewServer(),
		ping:     ping,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Serve probes the store once, then serves on lis until ctx is cancelled,
// at which point it marks every service NOT_SERVING and stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.probe(ctx)
	go s.probeLoop(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.grpc.Serve(lis) }()

	slog.Info("grpcops: listening", "addr", lis.Addr().String())
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errc:
		return err
	}
}

func (s *Server) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// probe pings the store and publishes the result.
func (s *Server) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.ping(pctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("grpcops: store ping failed", "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(StoreService, st)
}
