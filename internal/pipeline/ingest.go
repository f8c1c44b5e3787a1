package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/cap-alert-service/internal/capxml"
	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/feed"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
)

// Fetcher retrieves feed and CAP documents.
type Fetcher interface {
	Fetch(ctx context.Context, url, target string) (domain.Document, error)
}

// Claimer is the dedup store: TryClaim reports true exactly once per GUID.
type Claimer interface {
	TryClaim(ctx context.Context, guid, link string) (bool, error)
}

// Ingestor turns feed URLs into the set of alerts not seen before.
type Ingestor struct {
	fetcher Fetcher
	claims  Claimer
	policy  Policy
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewIngestor creates an Ingestor. A nil policy means FailFast.
func NewIngestor(f Fetcher, c Claimer, policy Policy, metrics *observability.Metrics, logger *slog.Logger) *Ingestor {
	if policy == nil {
		policy = FailFast{}
	}
	return &Ingestor{fetcher: f, claims: c, policy: policy, metrics: metrics, logger: logger}
}

// Ingest fetches every feed concurrently, claims each entry's GUID and
// fetches and parses the newly claimed alerts concurrently. Under FailFast
// any failure aborts the whole ingestion; under CollectErrors the alerts
// that did succeed are returned together with a *PartialError.
func (in *Ingestor) Ingest(ctx context.Context, feeds []string) (domain.AlertSet, error) {
	var (
		mu     sync.Mutex
		result = make(domain.AlertSet)
	)
	add := func(a domain.Alert) {
		mu.Lock()
		defer mu.Unlock()
		result.Add(a)
	}

	tasks := make([]Task, 0, len(feeds))
	for _, url := range feeds {
		tasks = append(tasks, func(ctx context.Context) error {
			return in.ingestFeed(ctx, url, add)
		})
	}

	err := in.policy.Run(ctx, tasks)
	var partial *PartialError
	if err != nil && !errors.As(err, &partial) {
		return nil, err
	}
	in.logger.Info("ingested feeds", "feeds", len(feeds), "new_alerts", len(result), "policy", in.policy.Name())
	return result, err
}

func (in *Ingestor) ingestFeed(ctx context.Context, url string, add func(domain.Alert)) error {
	in.logger.Info("fetching CAP feed", "url", url)
	doc, err := in.fetcher.Fetch(ctx, url, "feed")
	if err != nil {
		in.metrics.FeedsFetched.WithLabelValues("error").Inc()
		return in.fail(ctx, err)
	}
	in.metrics.FeedsFetched.WithLabelValues("success").Inc()

	refs, err := feed.Parse(url, doc.Body, doc.ContentType)
	if err != nil {
		return in.fail(ctx, err)
	}
	in.logger.Debug("extracted feed entries", "url", url, "entries", len(refs))

	fresh := make([]domain.AlertReference, 0, len(refs))
	for _, ref := range refs {
		ok, err := in.claims.TryClaim(ctx, ref.GUID, ref.Link)
		if err != nil {
			return in.fail(ctx, err)
		}
		if !ok {
			in.logger.Debug("alert already seen, skipping", "guid", ref.GUID)
			continue
		}
		fresh = append(fresh, ref)
	}
	in.logger.Info("after cache pass", "url", url, "entries", len(refs), "new", len(fresh))

	tasks := make([]Task, 0, len(fresh))
	for _, ref := range fresh {
		tasks = append(tasks, func(ctx context.Context) error {
			alert, err := in.fetchAlert(ctx, ref)
			if err != nil {
				return in.fail(ctx, err)
			}
			add(alert)
			return nil
		})
	}
	return in.policy.Run(ctx, tasks)
}

func (in *Ingestor) fetchAlert(ctx context.Context, ref domain.AlertReference) (domain.Alert, error) {
	in.logger.Debug("fetching CAP", "guid", ref.GUID, "link", ref.Link)
	doc, err := in.fetcher.Fetch(ctx, ref.Link, "alert")
	if err != nil {
		return domain.Alert{}, err
	}
	alert, err := capxml.Parse(ref.Link, doc.Body, in.logger)
	if err != nil {
		return domain.Alert{}, err
	}
	in.metrics.AlertsParsed.Inc()
	return alert, nil
}

// fail counts and logs err. Cancellations caused by a sibling failure under
// FailFast are not counted again.
func (in *Ingestor) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	in.metrics.IngestErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
	in.logger.Warn("ingest task failed", "kind", domain.ErrorKind(err), "error", err)
	return err
}
