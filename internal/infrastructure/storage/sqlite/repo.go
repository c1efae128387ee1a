package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_quotes (
  token TEXT PRIMARY KEY,
  price_usd REAL NOT NULL,
  prev_price_usd REAL NOT NULL,
  change_pct REAL NOT NULL,
  source TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_quotes_ts ON latest_quotes(ts_ms);
`)
	return err
}

// UpsertLatestQuote 每个代币一行，覆盖写入
func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_quotes(token, price_usd, prev_price_usd, change_pct, source, ts_ms, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
		price_usd=excluded.price_usd, prev_price_usd=excluded.prev_price_usd, change_pct=excluded.change_pct,
		source=excluded.source, ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, q.Token, q.PriceUSD, q.PreviousPriceUSD, q.ChangePercentInstant, q.Source, q.TimestampMs, now, now)
	return err
}

// LatestQuote 读取某个代币的最新报价
func (r *Repo) LatestQuote(ctx context.Context, token string) (model.PriceQuote, error) {
	q := model.PriceQuote{Token: token}
	err := r.db.QueryRowContext(ctx,
		`SELECT price_usd, prev_price_usd, change_pct, source, ts_ms FROM latest_quotes WHERE token=?`, token).
		Scan(&q.PriceUSD, &q.PreviousPriceUSD, &q.ChangePercentInstant, &q.Source, &q.TimestampMs)
	return q, err
}

// Count 行数
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM latest_quotes`).Scan(&n)
	return n, err
}

var _ port.QuoteRepository = (*Repo)(nil)
