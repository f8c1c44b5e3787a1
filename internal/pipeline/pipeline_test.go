package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/couchcryptid/cap-alert-service/internal/pipeline"
	"github.com/couchcryptid/cap-alert-service/internal/render"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSource struct {
	mu      sync.Mutex
	results []sourceResult
	calls   int
}

type sourceResult struct {
	alerts domain.AlertSet
	err    error
}

func (f *fakeSource) Ingest(context.Context, []string) (domain.AlertSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i].alerts, f.results[i].err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRenderer struct{ err error }

func (f fakeRenderer) Output(alerts domain.AlertSet, format render.Format) (render.Output, error) {
	if f.err != nil {
		return render.Output{}, f.err
	}
	return render.Output{Message: "rendered", Format: format, AlertIDs: alerts.GUIDs()}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	outs []render.Output
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, out render.Output) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outs = append(f.outs, out)
	return f.err
}

func (f *fakePublisher) published() []render.Output {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]render.Output(nil), f.outs...)
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY}}}
}

func alert(guid string, sev domain.Severity, poly orb.Polygon) domain.Alert {
	return domain.Alert{GUID: guid, Info: domain.AlertInfo{
		Severity: sev,
		Areas:    []domain.Area{{Desc: guid, Polygons: []orb.Polygon{poly}}},
	}}
}

func newRunner(cfg pipeline.Config, src pipeline.Source, r pipeline.Renderer, pub pipeline.Publisher, clock clockwork.Clock) (*pipeline.Runner, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return pipeline.NewRunner(cfg, src, r, []pipeline.Publisher{pub}, clock, metrics, discardLogger()), metrics
}

// --- tests ---

func TestRunOnce_FiltersAndPublishes(t *testing.T) {
	src := &fakeSource{results: []sourceResult{{alerts: domain.NewAlertSet(
		alert("inside-severe", domain.SeveritySevere, square(1, 1, 2, 2)),
		alert("inside-minor", domain.SeverityMinor, square(1, 1, 2, 2)),
		alert("outside-extreme", domain.SeverityExtreme, square(20, 20, 21, 21)),
	)}}}
	pub := &fakePublisher{}
	cfg := pipeline.Config{
		MinSeverity: domain.SeverityModerate,
		Boundaries:  orb.MultiPolygon{square(0, 0, 10, 10)},
		Format:      render.FormatText,
	}
	r, metrics := newRunner(cfg, src, fakeRenderer{}, pub, nil)

	require.Error(t, r.CheckReadiness(context.Background()))
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	outs := pub.published()
	require.Len(t, outs, 1)
	assert.Equal(t, []string{"inside-severe"}, outs[0].AlertIDs)
	assert.Equal(t, summary.RunID, outs[0].RunID)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Ingested)
	assert.Equal(t, 1, summary.Published)

	assert.NoError(t, r.CheckReadiness(context.Background()))
	assert.Equal(t, summary.RunID, r.Status().RunID)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.AlertsFiltered.WithLabelValues("severity", "dropped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.AlertsFiltered.WithLabelValues("boundary", "dropped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")), 0)
}

type fakeDependency struct{ err error }

func (d fakeDependency) Ping(context.Context) error { return d.err }

func TestCheckReadiness_FailsWhenDependencyDown(t *testing.T) {
	src := &fakeSource{results: []sourceResult{{alerts: domain.NewAlertSet()}}}
	cacheErr := &domain.StoreError{Op: "ping", Err: errors.New("database is closed")}

	healthy, _ := newRunner(pipeline.Config{Format: render.FormatText}, src, fakeRenderer{}, &fakePublisher{}, nil)
	healthy.DependOn(fakeDependency{})
	_, err := healthy.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NoError(t, healthy.CheckReadiness(context.Background()))

	down, _ := newRunner(pipeline.Config{Format: render.FormatText}, src, fakeRenderer{}, &fakePublisher{}, nil)
	down.DependOn(fakeDependency{}, fakeDependency{err: cacheErr})
	_, err = down.RunOnce(context.Background())
	require.NoError(t, err)

	err = down.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cacheErr)
	assert.Equal(t, "store", domain.ErrorKind(err))
}

func TestRunOnce_NothingNewPublishesNothing(t *testing.T) {
	src := &fakeSource{results: []sourceResult{{alerts: domain.AlertSet{}}}}
	pub := &fakePublisher{}
	r, _ := newRunner(pipeline.Config{Format: render.FormatText}, src, fakeRenderer{}, pub, nil)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pub.published())
}

func TestRunOnce_IngestFailure(t *testing.T) {
	boom := &domain.FetchError{URL: "https://feed.example", Status: 503}
	src := &fakeSource{results: []sourceResult{{err: boom}}}
	pub := &fakePublisher{}
	r, metrics := newRunner(pipeline.Config{Format: render.FormatText}, src, fakeRenderer{}, pub, nil)

	summary, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, summary.Error, "status 503")
	assert.Empty(t, pub.published())
	assert.Error(t, r.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Runs.WithLabelValues("error")), 0)
}

func TestRunOnce_PartialIngestStillPublishes(t *testing.T) {
	partial := &pipeline.PartialError{Errs: []error{errors.New("one feed down")}}
	src := &fakeSource{results: []sourceResult{{
		alerts: domain.NewAlertSet(alert("a", domain.SeveritySevere, square(0, 0, 1, 1))),
		err:    partial,
	}}}
	pub := &fakePublisher{}
	r, _ := newRunner(pipeline.Config{Format: render.FormatText}, src, fakeRenderer{}, pub, nil)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Partial)
	assert.Len(t, pub.published(), 1)
}

func TestRunOnce_RenderFailureStopsPublish(t *testing.T) {
	src := &fakeSource{results: []sourceResult{{alerts: domain.NewAlertSet(alert("a", domain.SeveritySevere, square(0, 0, 1, 1)))}}}
	pub := &fakePublisher{}
	renderErr := &domain.GeometryError{Op: "bounds", Err: domain.ErrNothingToDraw}
	r, _ := newRunner(pipeline.Config{Format: render.FormatMap}, src, fakeRenderer{err: renderErr}, pub, nil)

	_, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrNothingToDraw)
	assert.Empty(t, pub.published())
}

func TestRun_OneShotReturnsError(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{results: []sourceResult{{err: boom}}}
	r, _ := newRunner(pipeline.Config{}, src, fakeRenderer{}, &fakePublisher{}, nil)

	require.ErrorIs(t, r.Run(context.Background()), boom)
	assert.Equal(t, 1, src.callCount())
}

func TestRun_PollsAndBacksOff(t *testing.T) {
	set := domain.NewAlertSet(alert("a", domain.SeveritySevere, square(0, 0, 1, 1)))
	src := &fakeSource{results: []sourceResult{
		{err: errors.New("transient")},
		{alerts: set},
		{alerts: domain.AlertSet{}},
	}}
	pub := &fakePublisher{}
	clock := clockwork.NewFakeClock()
	cfg := pipeline.Config{Format: render.FormatText, Interval: time.Minute}
	r, metrics := newRunner(cfg, src, fakeRenderer{}, pub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// First run fails and waits out the initial backoff.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, src.callCount())
	clock.Advance(200 * time.Millisecond)

	// Second run succeeds and waits the full interval.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, src.callCount())
	assert.Len(t, pub.published(), 1)
	clock.Advance(time.Minute)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 3, src.callCount())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PollerRunning), 0)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PollerRunning), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Runs.WithLabelValues("error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")), 0)
}
