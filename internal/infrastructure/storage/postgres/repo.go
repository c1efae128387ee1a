package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  price_usd DOUBLE PRECISION NOT NULL,
  prev_price_usd DOUBLE PRECISION NOT NULL,
  change_pct DOUBLE PRECISION NOT NULL,
  source TEXT NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_quotes_ts ON latest_quotes(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_quotes(token, price_usd, prev_price_usd, change_pct, source, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT(token) DO UPDATE SET
		price_usd=excluded.price_usd, prev_price_usd=excluded.prev_price_usd,
		change_pct=excluded.change_pct, source=excluded.source, ts_ms=excluded.ts_ms
	`, q.Token, q.PriceUSD, q.PreviousPriceUSD, q.ChangePercentInstant, q.Source, q.TimestampMs)
	return err
}

var _ port.QuoteRepository = (*Repo)(nil)
