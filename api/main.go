package api

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"

	"github.com/chartline-org/chartline/audit"
	"github.com/chartline-org/chartline/config"
	"github.com/chartline-org/chartline/delta"
	"github.com/chartline-org/chartline/encounters"
	"github.com/chartline-org/chartline/extractor"
	"github.com/chartline-org/chartline/logger"
	"github.com/chartline-org/chartline/orders"
	"github.com/chartline-org/chartline/patients"
	"github.com/chartline-org/chartline/problems"
	"github.com/chartline-org/chartline/store"
)

func Start(e *echo.Echo, cfg *config.Config, lifecycle fx.Lifecycle) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.HttpPort)); err != nil {
					fmt.Println(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

func SetReady(healthCheck *HealthCheck, db *mongo.Database, lifecycle fx.Lifecycle) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.Client().Ping(ctx, nil); err != nil {
				return err
			}

			// It's important this is set after mongo is initialized, which is ensured
			// by taking a dependency on mongo in the constructor, because lifecycle hooks
			// are executed in topological order
			healthCheck.SetReady(true)
			return nil
		},
		OnStop: nil,
	})
}

// Dependencies is the service DI graph. The admin CLI reuses it to run one-off
// commands against the same stores.
func Dependencies() []fx.Option {
	return []fx.Option{
		fx.Provide(
			logger.NewProductionLogger,
			logger.Sugar,
			config.NewConfig,
			store.NewConfig,
			store.GetConnectionString,
			store.NewClient,
			store.NewDatabase,
			patients.NewRepository,
			patients.NewService,
			patients.NewContextLoader,
			problems.NewRepository,
			problems.NewLedger,
			problems.NewReconciler,
			orders.NewRepository,
			encounters.NewRepository,
			encounters.NewService,
			encounters.NewEncounterChecker,
			encounters.NewEncounterLocker,
			encounters.NewCoordinator,
			audit.NewRepository,
			extractor.NewConfig,
			extractor.NewExtractor,
			delta.NewService,
			NewHealthCheck,
			NewHandler,
			NewServer,
		),
	}
}

func MainLoop() {
	opts := append(Dependencies(),
		fx.Invoke(SetReady),
		fx.Invoke(Start),
	)
	fx.New(opts...).Run()
}
