// Package source reads the three upstream wide time-series tables.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/exception"
)

const module = "source"

// Source types accepted in configuration.
const (
	TypeHTTP    = "http"
	TypeStorage = "storage"
)

// TableSource supplies the raw wide table of one metric.
type TableSource interface {
	// Fetch returns the table for metric. Every call reads the full table again.
	Fetch(ctx context.Context, metric model.Metric) (*model.RawTable, error)
	// Describe names where metric is read from, for logs.
	Describe(metric model.Metric) string
}

// New builds the TableSource selected by cfg.Covidash.Source.Type.
func New(cfg *config.Config, storages *storage.Resolver) (TableSource, error) {
	sc := cfg.Covidash.Source
	switch sc.Type {
	case TypeHTTP, "":
		return NewHTTPTableSource(sc, nil), nil
	case TypeStorage:
		if storages == nil {
			return nil, exception.NewPipelineError(module, exception.ErrConfig, "storage source requires a storage resolver", nil, false)
		}
		return NewStorageTableSource(storages, sc), nil
	default:
		return nil, exception.NewPipelineError(module, exception.ErrConfig, fmt.Sprintf("unknown source type %q", sc.Type), nil, false)
	}
}

// FetchAll fetches the three metric tables concurrently. Errors from every
// failed metric are returned together; no tables are returned on failure.
func FetchAll(ctx context.Context, src TableSource) (map[model.Metric]*model.RawTable, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		tables = make(map[model.Metric]*model.RawTable, len(model.Metrics))
		errs   = make([]error, len(model.Metrics))
	)
	for i, m := range model.Metrics {
		wg.Add(1)
		go func(i int, m model.Metric) {
			defer wg.Done()
			t, err := src.Fetch(ctx, m)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			tables[m] = t
			mu.Unlock()
		}(i, m)
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return tables, nil
}

// ParseCSV reads a wide table: a header row followed by one row per region.
// Rows may differ in length from the header; the normalizer rejects them.
func ParseCSV(metric model.Metric, r io.Reader) (*model.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, exception.NewSchemaError(module, "%s table: missing header row", metric)
	}
	if err != nil {
		return nil, exception.NewPipelineError(module, exception.ErrSchema, fmt.Sprintf("%s table: malformed CSV header", metric), err, false)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, exception.NewPipelineError(module, exception.ErrSchema, fmt.Sprintf("%s table: malformed CSV", metric), err, false)
	}
	return &model.RawTable{Metric: metric, Columns: header, Rows: rows}, nil
}
