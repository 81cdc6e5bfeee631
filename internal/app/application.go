package app

import (
	"context"
	"io/fs"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/covidash/internal/server"
	"github.com/tigerroll/covidash/internal/snapshot"
	gormadapter "github.com/tigerroll/covidash/pkg/adapter/database/gorm"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/adapter/storage/gcs"
	"github.com/tigerroll/covidash/pkg/adapter/storage/local"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// startTimeout bounds OnStart, which includes the initial refresh.
const startTimeout = 5 * time.Minute

// Options assembles the Fx options for the application. migrationsFS may be nil
// when database migrations are not used.
func Options(envFilePath string, embeddedConfig config.EmbeddedConfig, migrationsFS fs.FS, dbProviderOptions []fx.Option) fx.Option {
	supplied := []interface{}{
		embeddedConfig,
		fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
	}
	if migrationsFS != nil {
		supplied = append(supplied, fx.Annotate(migrationsFS, fx.As(new(fs.FS)), fx.ResultTags(`name:"migrationsFS"`)))
	}

	return fx.Options(
		fx.Supply(supplied...),
		fx.Options(dbProviderOptions...),
		logger.Module,
		config.Module,

		local.Module,
		gcs.Module,
		fx.Provide(storage.NewResolverFromParams),
		gormadapter.Module,

		Module,
	)
}

// RunApplication sets up and runs covidash until appCtx is cancelled.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, migrationsFS fs.FS, dbProviderOptions []fx.Option) {
	app := fx.New(
		Options(envFilePath, embeddedConfig, migrationsFS, dbProviderOptions),
		fx.StartTimeout(startTimeout),
		Hooks(appCtx),
	)

	if err := app.Start(context.Background()); err != nil {
		logger.Fatalf("Application start failed: %v", err)
	}

	<-appCtx.Done()
	logger.Infof("Application context cancelled.")

	if err := app.Stop(context.Background()); err != nil {
		logger.Errorf("Application stop failed: %v", err)
	}
}

// Hooks registers the start and stop hooks. The background refresh loop runs
// until appCtx is cancelled.
func Hooks(appCtx context.Context) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, refresher *snapshot.Refresher, srv *server.Server) {
		lc.Append(fx.Hook{
			OnStart: onStartApplication(appCtx, cfg, refresher, srv),
			OnStop:  onStopApplication(srv),
		})
	})
}

// onStartApplication publishes the first snapshot, starts the HTTP server and
// launches the background refresh loop.
func onStartApplication(appCtx context.Context, cfg *config.Config, refresher *snapshot.Refresher, srv *server.Server) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := refresher.Refresh(ctx); err != nil {
			if cfg.Covidash.Refresh.FailOnStartup {
				return err
			}
			logger.Warnf("Initial refresh failed, serving without data until the next refresh: %s", exception.ExtractErrorMessage(err))
		}

		if err := srv.Start(); err != nil {
			return err
		}

		go refresher.Run(appCtx)
		return nil
	}
}

// onStopApplication stops the HTTP server.
func onStopApplication(srv *server.Server) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Infof("Application is shutting down.")
		return srv.Shutdown(ctx)
	}
}
