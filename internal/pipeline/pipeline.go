package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/geofence"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/couchcryptid/cap-alert-service/internal/render"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
)

const initialBackoff = 200 * time.Millisecond

// Source produces the alerts not seen by any earlier run.
type Source interface {
	Ingest(ctx context.Context, feeds []string) (domain.AlertSet, error)
}

// Renderer turns a filtered alert set into an output.
type Renderer interface {
	Output(alerts domain.AlertSet, format render.Format) (render.Output, error)
}

// Publisher delivers an output to a sink.
type Publisher interface {
	Publish(ctx context.Context, out render.Output) error
}

// Dependency is a backing service readiness also depends on.
type Dependency interface {
	Ping(ctx context.Context) error
}

// Config holds the per-run settings of a Runner.
type Config struct {
	Feeds       []string
	MinSeverity domain.Severity
	Boundaries  orb.MultiPolygon
	Format      render.Format
	Interval    time.Duration // 0 runs once
}

// RunSummary describes the most recent completed run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Ingested  int       `json:"ingested"`
	Published int       `json:"published"`
	Partial   int       `json:"partial_failures,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Runner executes ingest, filter, render and publish, once or on an interval.
type Runner struct {
	cfg        Config
	source     Source
	renderer   Renderer
	publishers []Publisher
	deps       []Dependency
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	ready atomic.Bool
	mu    sync.Mutex
	last  *RunSummary
}

// NewRunner creates a Runner. A nil clock means the real clock.
func NewRunner(cfg Config, src Source, r Renderer, pubs []Publisher, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		cfg:        cfg,
		source:     src,
		renderer:   r,
		publishers: pubs,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// DependOn adds backing services that must answer Ping for the runner to
// report ready. Call it before serving readiness checks.
func (r *Runner) DependOn(deps ...Dependency) {
	r.deps = append(r.deps, deps...)
}

// CheckReadiness returns nil once a run has completed successfully and
// every dependency answers.
func (r *Runner) CheckReadiness(ctx context.Context) error {
	if !r.ready.Load() {
		return errors.New("no run has completed successfully yet")
	}
	for _, d := range r.deps {
		if err := d.Ping(ctx); err != nil {
			return fmt.Errorf("dependency unavailable: %w", err)
		}
	}
	return nil
}

// Status returns the last run summary, or nil before the first run ends.
func (r *Runner) Status() *RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// RunOnce performs a single run. Under the collect policy, ingestion
// failures are logged and the run carries on with the alerts that did parse.
func (r *Runner) RunOnce(ctx context.Context) (*RunSummary, error) {
	start := r.clock.Now()
	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: start}
	logger := r.logger.With("run_id", summary.RunID)

	err := r.run(ctx, logger, summary)

	elapsed := r.clock.Since(start)
	summary.Duration = elapsed.String()
	r.metrics.RunDuration.Observe(elapsed.Seconds())
	if err != nil {
		summary.Error = err.Error()
		r.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("run failed", "kind", domain.ErrorKind(err), "error", err)
	} else {
		r.metrics.Runs.WithLabelValues("success").Inc()
		r.metrics.LastSuccess.Set(float64(r.clock.Now().Unix()))
		r.ready.Store(true)
		logger.Info("run complete", "ingested", summary.Ingested, "published", summary.Published, "duration", elapsed)
	}

	r.mu.Lock()
	r.last = summary
	r.mu.Unlock()
	return summary, err
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, summary *RunSummary) error {
	alerts, err := r.source.Ingest(ctx, r.cfg.Feeds)
	var partial *PartialError
	switch {
	case errors.As(err, &partial):
		summary.Partial = len(partial.Errs)
		logger.Warn("ingestion partially failed", "failures", len(partial.Errs), "error", err)
	case err != nil:
		return err
	}
	summary.Ingested = len(alerts)

	kept := geofence.BySeverity(alerts, r.cfg.MinSeverity)
	r.countFiltered("severity", len(alerts), len(kept))

	before := len(kept)
	kept, err = geofence.ByBoundary(kept, r.cfg.Boundaries)
	if err != nil {
		return err
	}
	r.countFiltered("boundary", before, len(kept))

	logger.Info("filtered alerts", "ingested", len(alerts), "kept", len(kept), "min_severity", r.cfg.MinSeverity)
	if len(kept) == 0 {
		return nil
	}

	out, err := r.renderer.Output(kept, r.cfg.Format)
	if err != nil {
		return err
	}
	out.RunID = summary.RunID

	for _, p := range r.publishers {
		if err := p.Publish(ctx, out); err != nil {
			return err
		}
	}
	summary.Published = len(kept)
	return nil
}

func (r *Runner) countFiltered(filter string, before, after int) {
	r.metrics.AlertsFiltered.WithLabelValues(filter, "kept").Add(float64(after))
	r.metrics.AlertsFiltered.WithLabelValues(filter, "dropped").Add(float64(before - after))
}

// Run performs one run when the interval is zero and returns its error.
// Otherwise it runs until ctx is cancelled, waiting the interval after each
// success and backing off exponentially (capped at the interval) after each
// failure.
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		_, err := r.RunOnce(ctx)
		return err
	}

	r.logger.Info("poller started", "interval", r.cfg.Interval, "feeds", len(r.cfg.Feeds))
	r.metrics.PollerRunning.Set(1)
	defer r.metrics.PollerRunning.Set(0)

	backoff := initialBackoff
	for {
		wait := r.cfg.Interval
		if _, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("poller stopping", "reason", ctx.Err())
				return nil
			}
			wait = min(backoff, r.cfg.Interval)
			backoff = nextBackoff(backoff, r.cfg.Interval)
			r.logger.Warn("retrying after failure", "backoff", wait)
		} else {
			backoff = initialBackoff
		}

		if !r.sleep(ctx, wait) {
			r.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(d):
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
