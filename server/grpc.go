package server

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ChatService is the health service name reported for the chat pipeline.
const ChatService = "solus.Chat"

// HealthServer serves grpc.health.v1 for orchestrators that probe over gRPC.
// Both the overall status ("") and ChatService follow Model.Loaded.
type HealthServer struct {
	model  Model
	health *health.Server
	grpc   *grpc.Server
	logger *log.Logger
}

// NewHealthServer registers a health service on a new gRPC server.
func NewHealthServer(model Model, logger *log.Logger) *HealthServer {
	if logger == nil {
		logger = log.Default().WithPrefix("grpc")
	}
	h := &HealthServer{
		model:  model,
		health: health.NewServer(),
		grpc:   grpc.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.Refresh()
	return h
}

// Refresh copies the model state into the health service.
func (h *HealthServer) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.model.Loaded() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ChatService, status)
}

// Serve accepts connections on lis until ctx is cancelled. The status is
// refreshed every interval.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.grpc.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh()
			}
		}
	}()

	h.logger.Info("starting grpc health server", "addr", lis.Addr().String())
	if err := h.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop stops the server immediately.
func (h *HealthServer) Stop() {
	h.grpc.Stop()
}
