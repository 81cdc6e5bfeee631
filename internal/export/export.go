// Package export writes published snapshots to external sinks: Parquet files
// on a storage connection and rows in a relational database.
package export

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/covidash/internal/snapshot"
	gormadapter "github.com/tigerroll/covidash/pkg/adapter/database/gorm"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/metrics"
)

// Multi runs several exporters in turn. Every exporter runs even when an
// earlier one fails; the failures are returned together.
type Multi struct {
	exporters []snapshot.Exporter
	recorder  metrics.Recorder
}

var _ snapshot.Exporter = (*Multi)(nil)

// NewMulti creates a Multi. A nil recorder records nothing.
func NewMulti(recorder metrics.Recorder, exporters ...snapshot.Exporter) *Multi {
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	return &Multi{exporters: exporters, recorder: recorder}
}

func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of exporters.
func (m *Multi) Len() int {
	return len(m.exporters)
}

func (m *Multi) Export(ctx context.Context, snap *snapshot.Snapshot) error {
	var result *multierror.Error
	for _, e := range m.exporters {
		started := time.Now()
		err := e.Export(ctx, snap)
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusFailure
			result = multierror.Append(result, fmt.Errorf("exporter '%s': %w", e.Name(), err))
		}
		m.recorder.RecordExport(ctx, e.Name(), status, time.Since(started))
	}
	return result.ErrorOrNil()
}

// FromConfig builds the exporters enabled in cfg. migrations holds the embedded
// schema migrations used by the database exporter; it may be nil when migration is off.
func FromConfig(cfg *config.Config, storages *storage.Resolver, databases *gormadapter.Resolver, migrations fs.FS, recorder metrics.Recorder) (*Multi, error) {
	var exporters []snapshot.Exporter
	ec := cfg.Covidash.Export
	if ec.Parquet.Enabled {
		pe, err := NewParquetExporter(storages, ec.Parquet)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, pe)
	}
	if ec.Database.Enabled {
		exporters = append(exporters, NewDatabaseExporter(databases, ec.Database, migrations))
	}
	return NewMulti(recorder, exporters...), nil
}
