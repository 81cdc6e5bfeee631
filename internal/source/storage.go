package source

import (
	"context"
	"fmt"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// StorageTableSource reads the CSV files from a storage connection
// (a local directory or a GCS bucket).
type StorageTableSource struct {
	resolver *storage.Resolver
	ref      string
	objects  map[model.Metric]string
}

var _ TableSource = (*StorageTableSource)(nil)

// NewStorageTableSource creates a source reading cfg's objects from the connection cfg.StorageRef.
func NewStorageTableSource(resolver *storage.Resolver, cfg config.SourceConfig) *StorageTableSource {
	return &StorageTableSource{
		resolver: resolver,
		ref:      cfg.StorageRef,
		objects: map[model.Metric]string{
			model.Confirmed: cfg.ConfirmedObject,
			model.Recovered: cfg.RecoveredObject,
			model.Death:     cfg.DeathsObject,
		},
	}
}

func (s *StorageTableSource) Describe(metric model.Metric) string {
	return fmt.Sprintf("storage://%s/%s", s.ref, s.objects[metric])
}

func (s *StorageTableSource) Fetch(ctx context.Context, metric model.Metric) (*model.RawTable, error) {
	object := s.objects[metric]
	if object == "" {
		return nil, exception.NewPipelineError(module, exception.ErrConfig, fmt.Sprintf("no object configured for %s table", metric), nil, false)
	}
	conn, err := s.resolver.Resolve(ctx, s.ref)
	if err != nil {
		return nil, exception.NewPipelineError(module, exception.ErrSource, fmt.Sprintf("failed to resolve storage connection '%s'", s.ref), err, false)
	}

	rc, err := conn.Download(ctx, "", object)
	if err != nil {
		return nil, exception.NewPipelineError(module, exception.ErrSource, fmt.Sprintf("failed to read %s table from %s", metric, s.Describe(metric)), err, true)
	}
	defer rc.Close()

	table, err := ParseCSV(metric, rc)
	if err != nil {
		return nil, err
	}
	logger.Infof("Read %s table from %s: %d rows.", metric, s.Describe(metric), len(table.Rows))
	return table, nil
}
