package export

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/snapshot"
	gormadapter "github.com/tigerroll/covidash/pkg/adapter/database/gorm"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/migration"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// DatabaseExporterName identifies the database exporter in logs and metrics.
const DatabaseExporterName = "database"

var (
	conflictColumns = []string{"country", "date"}
	updateColumns   = []string{"confirmed", "recovered", "death", "active", "case_fatality_ratio", "complete", "snapshot_id", "built_at"}
)

// DatabaseExporter upserts every snapshot into the covid_daily table, keyed on (country, date).
type DatabaseExporter struct {
	resolver   *gormadapter.Resolver
	cfg        config.DatabaseExportConfig
	migrations fs.FS

	mu       sync.Mutex
	migrated bool
}

var _ snapshot.Exporter = (*DatabaseExporter)(nil)

// NewDatabaseExporter creates a DatabaseExporter. When cfg.Migrate is set the
// schema is migrated from migrations (under cfg.MigrationsPath) before the first export.
func NewDatabaseExporter(resolver *gormadapter.Resolver, cfg config.DatabaseExportConfig, migrations fs.FS) *DatabaseExporter {
	return &DatabaseExporter{resolver: resolver, cfg: cfg, migrations: migrations}
}

func (e *DatabaseExporter) Name() string {
	return DatabaseExporterName
}

func (e *DatabaseExporter) Export(ctx context.Context, snap *snapshot.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	conn, err := e.resolver.Resolve(e.cfg.DBRef)
	if err != nil {
		return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to resolve database connection '%s'", e.cfg.DBRef), err, false)
	}

	if e.cfg.Migrate && !e.migrated {
		if e.migrations == nil {
			return exception.NewPipelineError("export", exception.ErrConfig, "database migration requested but no migrations are available", nil, false)
		}
		if err := migration.NewMigrator(conn, e.migrations, e.cfg.MigrationsPath).Up(); err != nil {
			return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to migrate '%s'", e.cfg.DBRef), err, false)
		}
		e.migrated = true
	}

	records := snap.Records()
	if len(records) == 0 {
		logger.Warnf("Snapshot %s has no records; nothing to write to '%s'.", snap.ID, e.cfg.DBRef)
		return nil
	}
	rows := make([]model.CountryDaily, len(records))
	for i, r := range records {
		rows[i] = model.NewCountryDaily(r, snap.ID, snap.BuiltAt)
	}

	affected, err := conn.ExecuteUpsert(ctx, rows, model.CountryDaily{}.TableName(), conflictColumns, updateColumns, e.cfg.BatchSize)
	if err != nil {
		return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to write snapshot %s to '%s'", snap.ID, e.cfg.DBRef), err, true)
	}
	logger.Infof("Wrote snapshot %s to '%s': %d rows affected.", snap.ID, e.cfg.DBRef, affected)
	return nil
}
