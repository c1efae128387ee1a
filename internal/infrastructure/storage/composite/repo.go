package composite

import (
	"context"
	"errors"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

type Repo struct {
	repos []port.QuoteRepository
}

func New(repos ...port.QuoteRepository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.QuoteRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestQuote(ctx, q); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		errs = append(errs, repo.Close())
	}
	return errors.Join(errs...)
}

// Len 实际写入的后端数量
func (r *Repo) Len() int { return len(r.repos) }

var _ port.QuoteRepository = (*Repo)(nil)
