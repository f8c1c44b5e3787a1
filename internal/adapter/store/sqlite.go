// Package store persists dedup claims for alert GUIDs in SQLite.
//
// A claim is a one-shot "insert if absent": once a GUID is stored it is
// never overwritten, so each alert is processed at most once across runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/observability"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultKnownSize bounds the in-memory set of GUIDs known to be stored.
const DefaultKnownSize = 4096

const schema = `CREATE TABLE IF NOT EXISTS cache (
	guid BLOB PRIMARY KEY,
	link BLOB NOT NULL
) WITHOUT ROWID`

const (
	maxRetries  = 3
	busyTimeout = 10_000 // ms
)

// dsn applies the connection pragmas through the driver so every pooled
// connection gets them, not only the first.
func dsn(path string) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)", path, busyTimeout)
}

// Cache is the durable dedup store. It is safe for concurrent use.
type Cache struct {
	db      *sql.DB
	known   *lruSet
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Open opens or creates the cache database at path, creating parent
// directories as needed. knownSize bounds the in-memory set of GUIDs known
// to be claimed; zero disables it.
func Open(ctx context.Context, path string, knownSize int, metrics *observability.Metrics, logger *slog.Logger) (*Cache, error) {
	if path == "" {
		return nil, &domain.StoreError{Op: "open", Err: errors.New("empty path")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &domain.StoreError{Op: "mkdir", Err: err}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	// One connection serialises writers inside the process; busy_timeout
	// covers other processes sharing the file.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &domain.StoreError{Op: "init", Err: fmt.Errorf("%s: %w", firstLine(schema), err)}
	}

	logger.Debug("dedup cache opened", "path", path, "known_size", knownSize)
	return &Cache{
		db:      db,
		known:   newLRUSet(knownSize),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// TryClaim records guid → link if guid is absent and reports whether it did.
// true means the caller owns the alert and should process it; false means it
// was claimed before, by this or an earlier run.
func (c *Cache) TryClaim(ctx context.Context, guid, link string) (bool, error) {
	if c.known.contains(guid) {
		c.metrics.DedupCache.WithLabelValues("hit").Inc()
		c.metrics.DedupClaims.WithLabelValues("seen").Inc()
		return false, nil
	}
	c.metrics.DedupCache.WithLabelValues("miss").Inc()

	res, err := c.exec(ctx,
		`INSERT INTO cache (guid, link) VALUES (?, ?) ON CONFLICT(guid) DO NOTHING`,
		[]byte(guid), []byte(link))
	if err != nil {
		return false, &domain.StoreError{Op: "claim", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StoreError{Op: "claim", Err: err}
	}
	c.known.add(guid)

	if n == 1 {
		c.metrics.DedupClaims.WithLabelValues("new").Inc()
		return true, nil
	}
	c.metrics.DedupClaims.WithLabelValues("seen").Inc()
	return false, nil
}

// link returns the link stored for guid.
func (c *Cache) link(ctx context.Context, guid string) (string, bool, error) {
	var link []byte
	err := c.db.QueryRowContext(ctx, `SELECT link FROM cache WHERE guid = ?`, []byte(guid)).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &domain.StoreError{Op: "get", Err: err}
	}
	return string(link), true, nil
}

// Len returns the number of claimed GUIDs.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, &domain.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Ping checks the database is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &domain.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// exec retries on SQLITE_BUSY with 100/200/300 ms backoff.
func (c *Cache) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for i := range maxRetries {
		res, err := c.db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !isBusy(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("dedup cache busy, retrying", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
