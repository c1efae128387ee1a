package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

// Sink 把最新报价逐行打印到终端，调试用
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSink(w io.Writer) *Sink { return &Sink{w: w} }

func (s *Sink) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s %s price=%.10g change=%+.4f%% source=%s\n",
		time.UnixMilli(q.TimestampMs).Format("2006-01-02 15:04:05"),
		q.Token, q.PriceUSD, q.ChangePercentInstant, q.Source)
	return err
}

func (s *Sink) Close() error { return nil }

var _ port.QuoteRepository = (*Sink)(nil)
