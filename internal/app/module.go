// Package app wires covidash together with uber-fx: configuration, storage and
// database adapters, observability, the transformation pipeline, the snapshot
// refresher and the HTTP query API.
package app

import (
	"context"
	"io/fs"
	"net/http"

	"go.uber.org/fx"

	"github.com/tigerroll/covidash/internal/export"
	"github.com/tigerroll/covidash/internal/pipeline"
	"github.com/tigerroll/covidash/internal/server"
	"github.com/tigerroll/covidash/internal/snapshot"
	"github.com/tigerroll/covidash/internal/source"
	"github.com/tigerroll/covidash/pkg/adapter/database"
	gormadapter "github.com/tigerroll/covidash/pkg/adapter/database/gorm"
	"github.com/tigerroll/covidash/pkg/adapter/database/gorm/mysql"
	"github.com/tigerroll/covidash/pkg/adapter/database/gorm/postgres"
	"github.com/tigerroll/covidash/pkg/adapter/database/gorm/sqlite"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/metrics"
	"github.com/tigerroll/covidash/pkg/metrics/otel"
	"github.com/tigerroll/covidash/pkg/metrics/prometheus"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// DBProviderGroup is the Fx value group collecting database providers.
const DBProviderGroup = "db_providers"

// DBProviderMap is used by main.go to select the database providers to register.
var DBProviderMap = map[string]func(cfg *config.Config) database.DBProvider{
	"postgres": postgres.NewProvider,
	"mysql":    mysql.NewProvider,
	"sqlite":   sqlite.NewProvider,
}

// DBProviderOptions registers the named providers from DBProviderMap.
// Unknown names are logged and skipped.
func DBProviderOptions(names ...string) []fx.Option {
	options := make([]fx.Option, 0, len(names))
	for _, name := range names {
		provider, ok := DBProviderMap[name]
		if !ok {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
			continue
		}
		options = append(options, fx.Provide(fx.Annotate(provider, fx.ResultTags(`group:"`+DBProviderGroup+`"`))))
		logger.Debugf("DB Provider '%s' selected and registered.", name)
	}
	return options
}

// Observability bundles the metrics recorder, its HTTP handler and the tracer.
type Observability struct {
	fx.Out

	Recorder metrics.Recorder
	Tracer   metrics.Tracer
	// Handler serves /metrics; nil when metrics are disabled.
	Handler http.Handler `name:"metricsHandler"`
}

// NewObservability selects the Prometheus recorder and the OpenTelemetry tracer
// when enabled, falling back to no-ops otherwise. The tracer is flushed on stop.
func NewObservability(lc fx.Lifecycle, cfg *config.Config) (Observability, error) {
	out := Observability{
		Recorder: metrics.NewNoOpRecorder(),
		Tracer:   metrics.NewNoOpTracer(),
	}

	if mc := cfg.Covidash.Metrics; mc.Enabled {
		rec := prometheus.NewRecorder(mc.Namespace)
		out.Recorder = rec
		out.Handler = rec.Handler()
		logger.Infof("Prometheus metrics enabled (namespace '%s').", mc.Namespace)
	}

	if cfg.Covidash.Tracing.Enabled {
		tracer, err := otel.NewTracer(context.Background(), cfg.Covidash.Tracing)
		if err != nil {
			return Observability{}, err
		}
		out.Tracer = tracer
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return tracer.Shutdown(ctx)
			},
		})
		logger.Infof("OpenTelemetry tracing enabled (%s, endpoint '%s').", cfg.Covidash.Tracing.Protocol, cfg.Covidash.Tracing.Endpoint)
	}
	return out, nil
}

// NewPipeline builds the transformation pipeline from configuration.
func NewPipeline(cfg *config.Config, tracer metrics.Tracer) (*pipeline.Pipeline, error) {
	opts, err := pipeline.OptionsFromConfig(cfg.Covidash.Pipeline)
	if err != nil {
		return nil, err
	}
	return pipeline.New(opts, tracer), nil
}

// ExportersParams defines the dependencies for NewExporters.
type ExportersParams struct {
	fx.In
	Config     *config.Config
	Storages   *storage.Resolver
	Databases  *gormadapter.Resolver
	Migrations fs.FS `name:"migrationsFS" optional:"true"`
	Recorder   metrics.Recorder
}

// NewExporters builds the exporters enabled in configuration.
func NewExporters(p ExportersParams) (*export.Multi, error) {
	return export.FromConfig(p.Config, p.Storages, p.Databases, p.Migrations, p.Recorder)
}

// NewRefresher wires the source, pipeline and exporters into a snapshot.Refresher.
func NewRefresher(
	cfg *config.Config,
	src source.TableSource,
	p *pipeline.Pipeline,
	store *snapshot.Store,
	exporters *export.Multi,
	recorder metrics.Recorder,
	tracer metrics.Tracer,
) *snapshot.Refresher {
	opts := []snapshot.RefresherOption{snapshot.WithObservability(recorder, tracer)}
	if exporters.Len() > 0 {
		opts = append(opts, snapshot.WithExporter(exporters))
	}
	return snapshot.NewRefresher(src, p, store, cfg, opts...)
}

// ServerParams defines the dependencies for NewServer.
type ServerParams struct {
	fx.In
	Config         *config.Config
	Store          *snapshot.Store
	Refresher      *snapshot.Refresher
	MetricsHandler http.Handler `name:"metricsHandler" optional:"true"`
}

// NewServer creates the query API server.
func NewServer(p ServerParams) *server.Server {
	return server.New(p.Config, p.Store, p.Refresher, p.MetricsHandler)
}

// CloseAdapters closes every storage and database connection on stop.
func CloseAdapters(lc fx.Lifecycle, storages *storage.Resolver, databases *gormadapter.Resolver) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing all storage and database connections...")
			storageErr := storages.CloseAll()
			if storageErr != nil {
				logger.Errorf("Failed to close storage connections: %v", storageErr)
			}
			if err := databases.CloseAll(); err != nil {
				logger.Errorf("Failed to close database connections: %v", err)
				return err
			}
			return storageErr
		},
	})
}

// Module provides the covidash components. The caller supplies EmbeddedConfig,
// the adapter providers and optionally the migrations fs.FS.
var Module = fx.Options(
	fx.Provide(
		NewObservability,
		NewPipeline,
		source.New,
		snapshot.NewStore,
		NewExporters,
		NewRefresher,
		NewServer,
	),
	fx.Invoke(CloseAdapters),
)
