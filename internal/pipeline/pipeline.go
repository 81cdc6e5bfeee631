// Package pipeline turns the three wide upstream tables into the merged per-country daily table.
//
// Each metric table runs through Normalize, Melt and Aggregate independently;
// Join then merges the three results and derives active cases and the case
// fatality ratio. A run either produces the complete table or fails: schema and
// date-label errors abort it, and no partial output is returned.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/metrics"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// Options configures a Pipeline.
type Options struct {
	Normalize NormalizeOptions
	Join      JoinOptions
	// Parallel runs the three per-metric chains on separate goroutines.
	Parallel bool
	// Canonicalize rewrites country names before aggregation; nil is the identity.
	Canonicalize Canonicalizer
}

// DefaultOptions returns the options matching the upstream JHU CSSE layout.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.NewConfig().Covidash.Pipeline)
	return opts
}

// OptionsFromConfig builds Options from the pipeline configuration section.
func OptionsFromConfig(cfg config.PipelineConfig) (Options, error) {
	mode, err := ParseJoinMode(cfg.JoinMode)
	if err != nil {
		return Options{}, exception.NewPipelineError("pipeline", exception.ErrConfig, "invalid join mode", err, false)
	}
	rounding, err := ParseRoundingMode(cfg.Rounding)
	if err != nil {
		return Options{}, exception.NewPipelineError("pipeline", exception.ErrConfig, "invalid rounding mode", err, false)
	}
	return Options{
		Normalize: NormalizeOptions{
			Drop:     cfg.DropColumns,
			Rename:   cfg.RenameColumns,
			Tolerant: cfg.Tolerant,
		},
		Join:         JoinOptions{Mode: mode, Rounding: rounding},
		Parallel:     cfg.Parallel,
		Canonicalize: AliasCanonicalizer(cfg.CountryAliases),
	}, nil
}

// Report summarizes one pipeline run.
type Report struct {
	// RowsRead is the number of raw rows per metric table.
	RowsRead map[model.Metric]int `json:"rows_read"`
	// Aggregated is the number of (country, date) totals per metric table.
	Aggregated map[model.Metric]int `json:"aggregated"`
	// JoinGaps counts keys missing from at least one table, by the tables they were present in.
	JoinGaps map[string]int `json:"join_gaps"`
	// JoinGapTotal is the sum of JoinGaps.
	JoinGapTotal int `json:"join_gap_total"`
	// DivisionEdgeCases counts records whose ratio was forced to 0 because confirmed was 0.
	DivisionEdgeCases int `json:"division_edge_cases"`
	// Records is the number of merged records produced.
	Records int `json:"records"`
	// JoinMode and Rounding record the options the table was built with.
	JoinMode JoinMode     `json:"join_mode"`
	Rounding RoundingMode `json:"rounding"`
	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`
}

// Result is the output of a successful run.
type Result struct {
	Records []model.MergedRecord
	Report  Report
}

// Pipeline runs the transformation stages.
type Pipeline struct {
	opts   Options
	tracer metrics.Tracer
}

// New creates a Pipeline. A nil tracer disables tracing.
func New(opts Options, tracer metrics.Tracer) *Pipeline {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &Pipeline{opts: opts, tracer: tracer}
}

// Options returns the options the pipeline was built with.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run transforms the three raw tables. tables must contain every model.Metrics entry.
func (p *Pipeline) Run(ctx context.Context, tables map[model.Metric]*model.RawTable) (*Result, error) {
	ctx, end := p.tracer.StartSpan(ctx, "pipeline.run", map[string]interface{}{
		"parallel":  p.opts.Parallel,
		"join_mode": string(p.opts.Join.Mode),
	})
	defer end()
	started := time.Now()

	for _, m := range model.Metrics {
		if tables[m] == nil {
			err := exception.NewSchemaError("pipeline", "%s table is missing", m)
			p.tracer.RecordError(ctx, "pipeline", err)
			return nil, err
		}
	}

	var aggregated [3][]model.AggregatedRecord
	var err error
	if p.opts.Parallel {
		aggregated, err = p.runParallel(ctx, tables)
	} else {
		aggregated, err = p.runSequential(ctx, tables)
	}
	if err != nil {
		p.tracer.RecordError(ctx, "pipeline", err)
		return nil, err
	}

	_, endJoin := p.tracer.StartSpan(ctx, "pipeline.join", nil)
	records, stats := Join(aggregated[0], aggregated[1], aggregated[2], p.opts.Join)
	endJoin()

	report := Report{
		RowsRead:          map[model.Metric]int{},
		Aggregated:        map[model.Metric]int{},
		JoinGaps:          stats.JoinGaps,
		JoinGapTotal:      stats.JoinGapTotal(),
		DivisionEdgeCases: stats.DivisionEdgeCases,
		Records:           len(records),
		JoinMode:          p.opts.Join.Mode,
		Rounding:          p.opts.Join.Rounding,
		Duration:          time.Since(started),
	}
	for i, m := range model.Metrics {
		report.RowsRead[m] = len(tables[m].Rows)
		report.Aggregated[m] = len(aggregated[i])
	}

	if report.JoinGapTotal > 0 {
		verb := "dropped"
		if p.opts.Join.Mode == JoinOuter {
			verb = "kept with zero-filled metrics"
		}
		logger.Warnf("Pipeline: %d (country, date) keys missing from at least one table were %s: %v", report.JoinGapTotal, verb, report.JoinGaps)
	}
	if report.DivisionEdgeCases > 0 {
		logger.Warnf("Pipeline: %d records with confirmed == 0 have case_fatality_ratio set to 0", report.DivisionEdgeCases)
	}
	logger.Infof("Pipeline: built %d merged records in %s", report.Records, report.Duration)

	return &Result{Records: records, Report: report}, nil
}

func (p *Pipeline) runSequential(ctx context.Context, tables map[model.Metric]*model.RawTable) ([3][]model.AggregatedRecord, error) {
	var out [3][]model.AggregatedRecord
	for i, m := range model.Metrics {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		agg, err := p.runChain(ctx, tables[m])
		if err != nil {
			return out, err
		}
		out[i] = agg
	}
	return out, nil
}

// runParallel runs one chain per metric. Each goroutine owns its result slot;
// errors are combined in metric order.
func (p *Pipeline) runParallel(ctx context.Context, tables map[model.Metric]*model.RawTable) ([3][]model.AggregatedRecord, error) {
	var (
		out  [3][]model.AggregatedRecord
		errs [3]error
		wg   sync.WaitGroup
	)
	for i, m := range model.Metrics {
		wg.Add(1)
		go func(i int, table *model.RawTable) {
			defer wg.Done()
			out[i], errs[i] = p.runChain(ctx, table)
		}(i, tables[m])
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		if len(result.Errors) == 1 {
			return out, result.Errors[0]
		}
		return out, result
	}
	return out, ctx.Err()
}

// runChain normalizes, melts and aggregates one metric table.
func (p *Pipeline) runChain(ctx context.Context, raw *model.RawTable) ([]model.AggregatedRecord, error) {
	_, end := p.tracer.StartSpan(ctx, "pipeline.chain", map[string]interface{}{"metric": string(raw.Metric)})
	defer end()

	normalized, err := Normalize(raw, p.opts.Normalize)
	if err != nil {
		return nil, err
	}
	long, err := Melt(normalized)
	if err != nil {
		return nil, fmt.Errorf("%s table: %w", raw.Metric, err)
	}
	agg := Aggregate(long, p.opts.Canonicalize)
	logger.Debugf("Pipeline: %s table: %d rows, %d long records, %d aggregated", raw.Metric, len(raw.Rows), len(long), len(agg))
	return agg, nil
}
