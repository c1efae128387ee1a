package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

type Repo struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	keyLatest  string // prefix + ":latest"
	updateChan string
}

type LatestQuote struct {
	Token  string  `json:"token"`
	Price  float64 `json:"price"`
	Prev   float64 `json:"prev"`
	Change float64 `json:"change_pct"`
	Source string  `json:"source"`
	Ts     int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, updateChan string) *Repo {
	if strings.TrimSpace(updateChan) == "" {
		updateChan = prefix + ":quotes:pub"
	}
	return &Repo{
		rdb:        rdb,
		prefix:     prefix,
		ttl:        ttl,
		keyLatest:  prefix + ":latest",
		updateChan: updateChan,
	}
}

// UpsertLatestQuote HSET 最新报价并 PUBLISH 给外部消费者
func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	if !q.Valid() {
		return nil
	}
	b, err := json.Marshal(LatestQuote{
		Token:  q.Token,
		Price:  q.PriceUSD,
		Prev:   q.PreviousPriceUSD,
		Change: q.ChangePercentInstant,
		Source: q.Source,
		Ts:     q.TimestampMs,
	})
	if err != nil {
		return err
	}

	// Hash: field = token mint -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, q.Token, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.updateChan, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.QuoteRepository = (*Repo)(nil)
