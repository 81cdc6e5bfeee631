package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/pipeline"
	"github.com/tigerroll/covidash/internal/source"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/metrics"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// Exporter receives every newly published snapshot.
type Exporter interface {
	Name() string
	Export(ctx context.Context, snap *Snapshot) error
}

// Refresher rebuilds the snapshot from the source and publishes it to a Store.
type Refresher struct {
	source   source.TableSource
	pipeline *pipeline.Pipeline
	store    *Store
	exporter Exporter
	recorder metrics.Recorder
	tracer   metrics.Tracer
	interval time.Duration
	location *time.Location
	now      func() time.Time

	mu sync.Mutex
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithExporter runs exporter after every successful publish.
func WithExporter(exporter Exporter) RefresherOption {
	return func(r *Refresher) { r.exporter = exporter }
}

// WithObservability sets the metrics recorder and tracer.
func WithObservability(recorder metrics.Recorder, tracer metrics.Tracer) RefresherOption {
	return func(r *Refresher) {
		if recorder != nil {
			r.recorder = recorder
		}
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithClock overrides the clock used for BuiltAt.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher. cfg supplies the refresh interval and the
// timezone of BuiltAt.
func NewRefresher(src source.TableSource, p *pipeline.Pipeline, store *Store, cfg *config.Config, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:   src,
		pipeline: p,
		store:    store,
		recorder: metrics.NewNoOpRecorder(),
		tracer:   metrics.NewNoOpTracer(),
		interval: time.Duration(cfg.Covidash.Refresh.IntervalSeconds) * time.Second,
		location: cfg.Location(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh fetches the three tables, runs the pipeline and publishes the result.
// On any error the previously published snapshot stays in place. Export
// failures are logged and do not fail the refresh. Concurrent calls are serialized.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, end := r.tracer.StartSpan(ctx, "snapshot.refresh", nil)
	defer end()
	started := time.Now()

	snap, err := r.build(ctx)
	if err != nil {
		r.recorder.RecordRefresh(ctx, metrics.StatusFailure, time.Since(started))
		r.tracer.RecordError(ctx, "refresher", err)
		if r.store.Current() != nil {
			logger.Errorf("Refresh failed, keeping snapshot %s: %v", r.store.Current().ID, err)
		} else {
			logger.Errorf("Refresh failed, no snapshot published yet: %v", err)
		}
		return nil, err
	}

	previous := r.store.Swap(snap)
	r.recorder.RecordRefresh(ctx, metrics.StatusSuccess, time.Since(started))
	r.recorder.RecordPublished(ctx, snap.Len(), snap.Report.JoinGaps, snap.Report.DivisionEdgeCases)
	r.tracer.RecordEvent(ctx, "snapshot.published", map[string]interface{}{
		"snapshot_id": snap.ID,
		"records":     snap.Len(),
	})
	if previous != nil {
		logger.Infof("Published snapshot %s (%d records), replacing %s.", snap.ID, snap.Len(), previous.ID)
	} else {
		logger.Infof("Published snapshot %s (%d records).", snap.ID, snap.Len())
	}

	if r.exporter != nil {
		if err := r.exporter.Export(ctx, snap); err != nil {
			logger.Warnf("Export of snapshot %s failed: %v", snap.ID, err)
		}
	}
	return snap, nil
}

func (r *Refresher) build(ctx context.Context) (*Snapshot, error) {
	fetchCtx, endFetch := r.tracer.StartSpan(ctx, "snapshot.fetch", nil)
	tables, err := source.FetchAll(fetchCtx, r.source)
	endFetch()
	if err != nil {
		return nil, err
	}
	for _, m := range model.Metrics {
		r.recorder.RecordRowsRead(ctx, string(m), len(tables[m].Rows))
	}

	result, err := r.pipeline.Run(ctx, tables)
	if err != nil {
		return nil, err
	}
	return New(result.Records, result.Report, r.now().In(r.location)), nil
}

// Run refreshes every configured interval until ctx is done. It returns at
// once when the interval is not positive.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		logger.Debugf("Background refresh disabled.")
		return
	}
	logger.Infof("Refreshing every %s.", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.Refresh(ctx)
			switch {
			case err == nil:
			case exception.IsDataError(err):
				logger.Warnf("Upstream data is unusable (%s); retrying at the next interval.", exception.ExtractErrorMessage(err))
			default:
				logger.Warnf("Refresh failed (%s); retrying at the next interval.", exception.ExtractErrorMessage(err))
			}
		}
	}
}
