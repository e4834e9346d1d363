package swarm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirychukyurii/domain-search/internal/concurrent"
	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/provider"
)

// Evaluator scores a batch of candidates with a swarm of member evaluators
type Evaluator interface {
	// Evaluate returns one entry per name, in input order. A nil score marks
	// the name as unscored; the call itself never fails.
	Evaluate(ctx context.Context, brief model.Brief, names []string, members []provider.Evaluator) []*model.Score
}

// Options tunes the swarm fan-out
type Options struct {
	MaxConcurrent    int
	CandidateTimeout time.Duration
}

type swarmEvaluator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a swarm evaluator
func New(opts Options, logger *slog.Logger) Evaluator {
	return &swarmEvaluator{opts: opts, logger: logger}
}

type assignment struct {
	name   string
	member provider.Evaluator
	index  int
}

// Evaluate fans every (name, member) pair out concurrently. The step returns
// when all pairs finished or ctx is done, so its wall time is bounded by the
// slowest pair that did not time out. A name's score is the mean of its
// successful member scores.
func (s *swarmEvaluator) Evaluate(ctx context.Context, brief model.Brief, names []string, members []provider.Evaluator) []*model.Score {
	scores := make([]*model.Score, len(names))
	if len(names) == 0 || len(members) == 0 {
		return scores
	}

	work := make([]assignment, 0, len(names)*len(members))
	for i, name := range names {
		for _, m := range members {
			work = append(work, assignment{name: name, member: m, index: i})
		}
	}

	results := concurrent.ParallelMapUntil(ctx, work, func(ctx context.Context, a assignment) (*model.Score, error) {
		callCtx := ctx
		if s.opts.CandidateTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.opts.CandidateTimeout)
			defer cancel()
		}
		score, err := a.member.Evaluate(callCtx, provider.EvaluateRequest{Name: a.name, Brief: brief})
		if err == nil && score == nil {
			err = errors.New("evaluator returned no score")
		}
		return score, err
	}, s.opts.MaxConcurrent)

	sums := make([]model.Score, len(names))
	counts := make([]int, len(names))
	failures := 0

	for _, r := range results {
		idx := work[r.Index].index
		if r.Error != nil {
			failures++
			s.logger.Debug("candidate evaluation failed",
				slog.String("name", work[r.Index].name),
				slog.String("error", r.Error.Error()))
			continue
		}
		sums[idx].Overall += r.Value.Overall
		sums[idx].Pronounceability += r.Value.Pronounceability
		sums[idx].Memorability += r.Value.Memorability
		sums[idx].BrandFit += r.Value.BrandFit
		counts[idx]++
	}

	for i := range names {
		if counts[i] == 0 {
			continue
		}
		n := float64(counts[i])
		scores[i] = &model.Score{
			Overall:          sums[i].Overall / n,
			Pronounceability: sums[i].Pronounceability / n,
			Memorability:     sums[i].Memorability / n,
			BrandFit:         sums[i].BrandFit / n,
		}
	}

	if failures > 0 {
		s.logger.Info("swarm evaluation degraded",
			slog.Int("calls", len(work)),
			slog.Int("failed", failures))
	}

	return scores
}
