package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
)

// DefaultMaxBytes caps a single response body.
const DefaultMaxBytes = 10 << 20

const acceptHeader = "application/rss+xml, application/atom+xml, application/cap+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.5"

var errBodyTooLarge = errors.New("response body too large")

// Client fetches feeds and CAP documents over HTTP.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a fetch client. A zero timeout disables the per-request deadline.
func NewClient(timeout time.Duration, userAgent string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		maxBytes:   DefaultMaxBytes,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch GETs url. target labels the request in metrics ("feed" or "alert").
// Transport failures and non-2xx statuses are returned as *domain.FetchError.
func (c *Client) Fetch(ctx context.Context, url, target string) (domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Document{}, &domain.FetchError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", acceptHeader)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Document{}, &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("fetch failed", "url", url, "status", resp.StatusCode)
		return domain.Document{}, &domain.FetchError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return domain.Document{}, &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBytes {
		return domain.Document{}, &domain.FetchError{URL: url, Err: errBodyTooLarge}
	}

	c.logger.Debug("fetched",
		"url", url,
		"target", target,
		"status", resp.StatusCode,
		"bytes", len(body),
		"content_type", resp.Header.Get("Content-Type"),
		"age", resp.Header.Get("Age"),
	)
	return domain.Document{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}
