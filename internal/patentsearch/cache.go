package patentsearch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/priorart-assistant/internal/logging"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS search_cache (
	query     TEXT NOT NULL,
	page      INTEGER NOT NULL,
	page_size INTEGER NOT NULL,
	response  TEXT NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (query, page, page_size)
);
`

// CachedSearcher answers repeated (query, page, pageSize) lookups from a
// SQLite table. Only successful responses are stored.
type CachedSearcher struct {
	next   Searcher
	db     *sqlx.DB
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewCachedSearcher(path string, ttl time.Duration, next Searcher, logger *zap.Logger) (*CachedSearcher, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	c := &CachedSearcher{next: next, db: db, ttl: ttl, logger: logging.OrNop(logger), now: time.Now}
	if n, err := c.Prune(context.Background()); err != nil {
		c.logger.Warn("search_cache_prune_failed", zap.Error(err))
	} else if n > 0 {
		c.logger.Info("search_cache_pruned", zap.Int64("rows", n))
	}
	return c, nil
}

func (c *CachedSearcher) Close() error {
	return c.db.Close()
}

func (c *CachedSearcher) Search(ctx context.Context, query string, page, pageSize int) (Response, error) {
	pageSize = ClampPageSize(pageSize)
	if resp, ok := c.lookup(ctx, query, page, pageSize); ok {
		return resp, nil
	}
	resp, err := c.next.Search(ctx, query, page, pageSize)
	if err != nil {
		return resp, err
	}
	if err := c.store(ctx, query, page, pageSize, resp); err != nil {
		c.logger.Warn("search_cache_store_failed", zap.String("query", query), zap.Error(err))
	}
	return resp, nil
}

func (c *CachedSearcher) lookup(ctx context.Context, query string, page, pageSize int) (Response, bool) {
	stmt, args, err := sq.Select("response").
		From("search_cache").
		Where(sq.Eq{"query": query, "page": page, "page_size": pageSize}).
		Where(sq.GtOrEq{"stored_at": c.cutoff()}).
		ToSql()
	if err != nil {
		return Response{}, false
	}
	var raw string
	if err := c.db.GetContext(ctx, &raw, stmt, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("search_cache_lookup_failed", zap.String("query", query), zap.Error(err))
		}
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Response{}, false
	}
	resp.Cached = true
	return resp, true
}

func (c *CachedSearcher) store(ctx context.Context, query string, page, pageSize int, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	stmt, args, err := sq.Insert("search_cache").
		Columns("query", "page", "page_size", "response", "stored_at").
		Values(query, page, pageSize, string(payload), c.now().Unix()).
		Suffix("ON CONFLICT(query, page, page_size) DO UPDATE SET response = excluded.response, stored_at = excluded.stored_at").
		ToSql()
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, stmt, args...)
	return err
}

// Prune deletes entries older than the TTL and reports how many went.
func (c *CachedSearcher) Prune(ctx context.Context) (int64, error) {
	stmt, args, err := sq.Delete("search_cache").Where(sq.Lt{"stored_at": c.cutoff()}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *CachedSearcher) cutoff() int64 {
	if c.ttl <= 0 {
		return 0
	}
	return c.now().Add(-c.ttl).Unix()
}
