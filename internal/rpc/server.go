package rpc

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

// ServiceName is the health service key next to the overall "" entry.
const ServiceName = "buckethaca"

// HealthServer exposes the gRPC health protocol. A service is SERVING while
// its database answers pings.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewHealthServer(lc fx.Lifecycle, cfg *config.Config, gdb *gorm.DB, logger *zap.SugaredLogger) *HealthServer {
	instance := newHealthServer(gdb, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.Host+":"+cfg.GRPCPort)
			if err != nil {
				return errors.Wrap(err, "grpc listen")
			}
			instance.Check(ctx)

			go func() {
				logger.Infow("starting GRPC server", "listen", lis.Addr().String())
				if err := instance.Serve(lis); err != nil {
					logger.Errorw("grpc server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping GRPC server.")
			instance.Stop()
			return nil
		},
	})

	return instance
}

func newHealthServer(gdb *gorm.DB, logger *zap.SugaredLogger) *HealthServer {
	instance := HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		db:     gdb,
		logger: logger,
	}
	healthpb.RegisterHealthServer(instance.grpc, instance.health)
	return &instance
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Check pings the database and publishes the result for both health keys.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := ping(ctx, s.db); err != nil {
		s.logger.Warnw("database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Stop flips every service to NOT_SERVING before draining connections.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	return sqlDB.PingContext(ctx)
}
