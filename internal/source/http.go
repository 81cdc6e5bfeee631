package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// maxBodyBytes caps a downloaded CSV.
const maxBodyBytes = 256 << 20

// HTTPTableSource downloads the upstream CSV files over HTTP.
type HTTPTableSource struct {
	client *http.Client
	urls   map[model.Metric]string
	retry  config.RetryConfig

	// maxBody is the largest accepted response body; larger bodies are rejected, not truncated.
	maxBody int64
}

var _ TableSource = (*HTTPTableSource)(nil)

// NewHTTPTableSource creates a source for the URLs in cfg. A nil client gets a
// default client with cfg.TimeoutSeconds as its timeout.
func NewHTTPTableSource(cfg config.SourceConfig, client *http.Client) *HTTPTableSource {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &HTTPTableSource{
		client: client,
		urls: map[model.Metric]string{
			model.Confirmed: cfg.ConfirmedURL,
			model.Recovered: cfg.RecoveredURL,
			model.Death:     cfg.DeathsURL,
		},
		retry:   cfg.Retry,
		maxBody: maxBodyBytes,
	}
}

func (s *HTTPTableSource) Describe(metric model.Metric) string {
	return s.urls[metric]
}

// Fetch downloads and parses the table for metric. Network errors and 5xx
// responses are retried with exponential backoff; other statuses fail at once.
func (s *HTTPTableSource) Fetch(ctx context.Context, metric model.Metric) (*model.RawTable, error) {
	url, ok := s.urls[metric]
	if !ok || url == "" {
		return nil, exception.NewPipelineError(module, exception.ErrConfig, fmt.Sprintf("no URL configured for %s table", metric), nil, false)
	}

	var body []byte
	op := func() error {
		b, err := s.get(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnf("Fetching %s table from %s failed: %v. Retrying in %s.", metric, url, err, wait)
	}

	if err := backoff.RetryNotify(op, s.newBackOff(ctx), notify); err != nil {
		var pe *exception.PipelineError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, exception.NewPipelineError(module, exception.ErrSource, fmt.Sprintf("failed to fetch %s table from %s", metric, url), err, true)
	}

	table, err := ParseCSV(metric, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	logger.Infof("Fetched %s table from %s: %d rows, %d columns.", metric, url, len(table.Rows), len(table.Columns))
	return table, nil
}

func (s *HTTPTableSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(exception.NewPipelineError(module, exception.ErrConfig, fmt.Sprintf("invalid source URL %q", url), err, false))
	}
	req.Header.Set("User-Agent", "covidash")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, exception.NewPipelineError(module, exception.ErrSource, fmt.Sprintf("GET %s: server error %s", url, resp.Status), nil, true)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(exception.NewPipelineError(module, exception.ErrSource, fmt.Sprintf("GET %s: unexpected status %s", url, resp.Status), nil, false))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading body: %w", url, err)
	}
	if int64(len(b)) > s.maxBody {
		return nil, backoff.Permanent(exception.NewPipelineError(module, exception.ErrSource,
			fmt.Sprintf("GET %s: response body exceeds %d bytes", url, s.maxBody), nil, false))
	}
	return b, nil
}

func (s *HTTPTableSource) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		eb.InitialInterval = time.Duration(s.retry.InitialInterval) * time.Millisecond
	}
	if s.retry.MaxInterval > 0 {
		eb.MaxInterval = time.Duration(s.retry.MaxInterval) * time.Millisecond
	}
	if s.retry.Factor > 0 {
		eb.Multiplier = s.retry.Factor
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	retries := s.retry.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b = backoff.WithMaxRetries(b, uint64(retries))
	return backoff.WithContext(b, ctx)
}
