// Package health exposes worker liveness over the standard gRPC health protocol.
package health

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service 對外公布的服務名稱
const Service = "geotile.Worker"

// Server gRPC health 伺服器
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.SugaredLogger
}

// New 建立 health 伺服器，初始狀態為 NOT_SERVING
func New(logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		log:    logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)
	return s
}

// SetServing 更新服務狀態
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Serve 在 lis 上提供服務，直到 Stop 被呼叫
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infow("Health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// ListenAndServe 監聽 port 並提供服務
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("health: listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop 將狀態設為 NOT_SERVING 並關閉伺服器
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
