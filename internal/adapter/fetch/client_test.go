package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headerContentType = "Content-Type"

func testClient(timeout time.Duration) *Client {
	return NewClient(timeout, "cap-alert-test/1.0", observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cap-alert-test/1.0", r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "application/rss+xml")
		w.Header().Set(headerContentType, "application/rss+xml; charset=utf-8")
		_, _ = io.WriteString(w, "<rss/>")
	}))
	defer srv.Close()

	resp, err := testClient(5*time.Second).Fetch(context.Background(), srv.URL, "feed")
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", string(resp.Body))
	assert.Equal(t, "application/rss+xml; charset=utf-8", resp.ContentType)
}

func TestClient_Fetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(5*time.Second).Fetch(context.Background(), srv.URL, "alert")
	require.Error(t, err)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Equal(t, "fetch", domain.ErrorKind(err))
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := testClient(50*time.Millisecond).Fetch(context.Background(), srv.URL, "feed")
	require.Error(t, err)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
}

func TestClient_Fetch_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(5*time.Second).Fetch(ctx, "http://127.0.0.1:1/feed", "feed")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Fetch_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	c := testClient(5 * time.Second)
	c.maxBytes = 16
	_, err := c.Fetch(context.Background(), srv.URL, "alert")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBodyTooLarge)
}

func TestClient_Fetch_InvalidURL(t *testing.T) {
	_, err := testClient(time.Second).Fetch(context.Background(), "://bad", "feed")
	var fetchErr *domain.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}
