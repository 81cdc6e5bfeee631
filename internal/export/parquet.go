package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/snapshot"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// ParquetExporterName identifies the Parquet exporter in logs and metrics.
const ParquetExporterName = "parquet"

// ParquetRow is the Parquet schema of one exported record.
type ParquetRow struct {
	Country           string `parquet:"name=country,type=BYTE_ARRAY,convertedtype=UTF8"`
	Date              int32  `parquet:"name=date,type=INT32,convertedtype=DATE"`
	Confirmed         int64  `parquet:"name=confirmed,type=INT64"`
	Recovered         int64  `parquet:"name=recovered,type=INT64"`
	Death             int64  `parquet:"name=death,type=INT64"`
	Active            int64  `parquet:"name=active,type=INT64"`
	CaseFatalityRatio int64  `parquet:"name=case_fatality_ratio,type=INT64"`
	Complete          bool   `parquet:"name=complete,type=BOOLEAN"`
	SnapshotID        string `parquet:"name=snapshot_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	BuiltAt           int64  `parquet:"name=built_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// NewParquetRow converts r into its Parquet form. Date is days since the Unix epoch.
func NewParquetRow(r model.MergedRecord, snapshotID string, builtAt time.Time) ParquetRow {
	d := time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
	return ParquetRow{
		Country:           r.Country,
		Date:              int32(d.Unix() / 86400),
		Confirmed:         r.Confirmed,
		Recovered:         r.Recovered,
		Death:             r.Death,
		Active:            r.Active,
		CaseFatalityRatio: r.CaseFatalityRatio,
		Complete:          r.Complete,
		SnapshotID:        snapshotID,
		BuiltAt:           builtAt.UnixMilli(),
	}
}

// ParquetExporter writes each snapshot as Hive-partitioned Parquet files,
// one per date: <base_path>/dt=YYYY-MM-DD/covid_daily_<snapshot id>.parquet.
// Once every partition of a snapshot is uploaded, files of earlier snapshots are deleted.
type ParquetExporter struct {
	resolver *storage.Resolver
	cfg      config.ParquetExportConfig
	codec    parquet.CompressionCodec
}

var _ snapshot.Exporter = (*ParquetExporter)(nil)

// NewParquetExporter creates a ParquetExporter uploading through the storage connection cfg.StorageRef.
func NewParquetExporter(resolver *storage.Resolver, cfg config.ParquetExportConfig) (*ParquetExporter, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, exception.NewPipelineError("export", exception.ErrConfig, "invalid parquet export configuration", err, false)
	}
	return &ParquetExporter{resolver: resolver, cfg: cfg, codec: codec}, nil
}

func (e *ParquetExporter) Name() string {
	return ParquetExporterName
}

// ObjectName returns the object a snapshot's records of day d are written to.
func (e *ParquetExporter) ObjectName(d time.Time, snapshotID string) string {
	return path.Join(e.cfg.BasePath, "dt="+d.Format(snapshot.DateFormat), fmt.Sprintf("covid_daily_%s.parquet", snapshotID))
}

func (e *ParquetExporter) Export(ctx context.Context, snap *snapshot.Snapshot) error {
	conn, err := e.resolver.Resolve(ctx, e.cfg.StorageRef)
	if err != nil {
		return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to resolve storage connection '%s'", e.cfg.StorageRef), err, false)
	}

	for _, d := range snap.Dates() {
		if err := ctx.Err(); err != nil {
			return err
		}
		records := snap.ForDate(d)
		rows := make([]ParquetRow, len(records))
		for i, r := range records {
			rows[i] = NewParquetRow(r, snap.ID, snap.BuiltAt)
		}

		buf, err := e.encode(rows)
		if err != nil {
			return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to encode parquet for %s", d.Format(snapshot.DateFormat)), err, false)
		}
		size := buf.Len()
		objectName := e.ObjectName(d, snap.ID)
		if err := conn.Upload(ctx, "", objectName, buf, "application/x-parquet"); err != nil {
			return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to upload '%s'", objectName), err, true)
		}
		logger.Debugf("Uploaded %d records (%d bytes) to '%s' on storage '%s'.", len(rows), size, objectName, e.cfg.StorageRef)
	}
	logger.Infof("Exported snapshot %s as Parquet: %d dates under '%s'.", snap.ID, len(snap.Dates()), e.cfg.BasePath)

	if err := e.removeStale(ctx, conn, snap.ID); err != nil {
		return exception.NewPipelineError("export", exception.ErrExport, fmt.Sprintf("failed to remove superseded parquet files under '%s'", e.cfg.BasePath), err, true)
	}
	return nil
}

// removeStale deletes the partition files of every snapshot other than keepID,
// so each dt= partition holds exactly one snapshot's rows.
func (e *ParquetExporter) removeStale(ctx context.Context, conn storage.StorageConnection, keepID string) error {
	prefix := ""
	if e.cfg.BasePath != "" {
		prefix = strings.TrimSuffix(e.cfg.BasePath, "/") + "/"
	}
	keep := fmt.Sprintf("covid_daily_%s.parquet", keepID)

	var stale []string
	err := conn.ListObjects(ctx, "", prefix, func(objectName string) error {
		rel := strings.TrimPrefix(objectName, prefix)
		if ok, _ := path.Match("dt=*/covid_daily_*.parquet", rel); ok && path.Base(rel) != keep {
			stale = append(stale, objectName)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, objectName := range stale {
		if err := conn.DeleteObject(ctx, "", objectName); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		logger.Infof("Removed %d superseded parquet files under '%s'.", len(stale), e.cfg.BasePath)
	}
	return nil
}

func (e *ParquetExporter) encode(rows []ParquetRow) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(ParquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = e.codec

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write parquet row: %w", err)
		}
	}

	// WriteStop can panic inside the library on malformed schemas.
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return buf, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type %q", name)
	}
}
