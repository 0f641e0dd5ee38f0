package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/identity"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/logging"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/rpc"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/service"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/storage"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/transport"
)

func main() {
	fx.New(
		fx.Provide(
			config.NewConfig,
			logging.NewLogger,
			newDB,
			identity.NewVerifier,
			fx.Annotate(storage.NewS3, fx.As(new(service.ObjectStorage))),
			transport.NewHTTPServer,
		),
		service.Module,
		rpc.Module,
		fx.WithLogger(func(l *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Desugar()}
		}),
		fx.Invoke(func(*transport.HTTPServer, *rpc.HealthServer) {}),
	).Run()
}

func newDB(lc fx.Lifecycle, cfg *config.Config, logger *zap.SugaredLogger) (*gorm.DB, error) {
	gdb, err := db.NewGormClient(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing database.")
			return db.Close(gdb)
		},
	})
	return gdb, nil
}
