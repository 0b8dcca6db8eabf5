// Package health serves the standard gRPC health service so supervisors
// can see whether the speaker holds a live session.
package health

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SessionService is the service name whose status follows the connection.
const SessionService = "speaker.Session"

// Server is a gRPC server exposing only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger zerolog.Logger
}

func NewServer(logger zerolog.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: grpchealth.NewServer(),
		logger: logger.With().Str("component", "health").Logger(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(SessionService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetConnected reports whether the speaker holds a live session.
func (s *Server) SetConnected(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(SessionService, status)
}

// Serve blocks serving on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("health server listening")
	return s.grpc.Serve(ln)
}

// Stop marks every service as not serving and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
