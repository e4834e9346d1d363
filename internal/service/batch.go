package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/observability"
	"github.com/kirychukyurii/domain-search/internal/provider"
)

// batchOutcome is what one generate, evaluate, check, price cycle produced
type batchOutcome struct {
	index      int
	candidates []*model.Candidate
	note       model.BatchNote
	aborted    bool
	duration   time.Duration
}

// runBatch works on a private snapshot of the job and never touches the
// runner's state. Provider failures degrade the batch, they never fail it.
func (o *orchestrator) runBatch(ctx context.Context, job *model.Job, backend provider.Backend, members []provider.Evaluator) batchOutcome {
	started := time.Now()
	index := job.BatchesRun + 1
	out := batchOutcome{
		index: index,
		note:  model.BatchNote{Index: index},
	}

	ctx, span := observability.Tracer().Start(ctx, "batch",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int("batch.index", index),
			attribute.String("backend", backend.Name()),
		),
	)
	defer span.End()

	degrade := func(step string, err error) {
		out.note.Degraded = true
		out.note.Notes = append(out.note.Notes, fmt.Sprintf("%s: %v", step, err))
	}

	names := o.generate(ctx, job, backend, degrade)
	out.note.Generated = len(names)
	if ctx.Err() != nil {
		return o.abortBatch(out, started, span)
	}

	scores := o.evaluate(ctx, job, names, members)
	candidates := make([]*model.Candidate, len(names))
	toCheck := make([]string, 0, len(names))
	for i, name := range names {
		candidates[i] = &model.Candidate{
			Name:         name,
			Score:        scores[i],
			Availability: model.AvailabilityUnknown,
			BatchIndex:   index,
		}
		if scores[i] != nil {
			out.note.Scored++
		}
		if scores[i] != nil || !o.opts.RequireScore {
			toCheck = append(toCheck, name)
		}
	}
	if len(names) > 0 && out.note.Scored == 0 {
		degrade("evaluate", errors.New("no candidate was scored"))
	}
	if ctx.Err() != nil {
		return o.abortBatch(out, started, span)
	}

	byName := make(map[string]*model.Candidate, len(candidates))
	for _, c := range candidates {
		byName[c.Name] = c
	}

	checkErrors := o.check(ctx, toCheck, byName, &out.note)
	if len(toCheck) > 0 && checkErrors == len(toCheck) {
		degrade("check", errors.New("every availability lookup failed"))
	}
	if ctx.Err() != nil {
		return o.abortBatch(out, started, span)
	}

	_, priceSpan := observability.Tracer().Start(ctx, "price")
	for _, c := range candidates {
		if c.Availability != model.AvailabilityAvailable {
			continue
		}
		tld, ok := job.Brief.MatchTLD(c.Name)
		if !ok {
			continue
		}
		if price, ok := o.deps.Prices.FetchPrice(tld); ok {
			c.Price = price
			out.note.Priced++
		}
	}
	priceSpan.SetAttributes(attribute.Int("priced", out.note.Priced))
	priceSpan.End()

	out.candidates = candidates
	out.duration = time.Since(started)
	out.note.At = time.Now().UTC()
	if out.note.Degraded {
		span.SetStatus(codes.Error, "degraded batch")
	}
	return out
}

func (o *orchestrator) abortBatch(out batchOutcome, started time.Time, span trace.Span) batchOutcome {
	out.aborted = true
	out.candidates = nil
	out.duration = time.Since(started)
	span.SetAttributes(attribute.Bool("batch.aborted", true))
	return out
}

// generate asks the backend for fresh names and drops anything already seen
func (o *orchestrator) generate(ctx context.Context, job *model.Job, backend provider.Backend, degrade func(string, error)) []string {
	ctx, span := observability.Tracer().Start(ctx, "generate")
	defer span.End()

	if o.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.GenerateTimeout)
		defer cancel()
	}

	req := provider.GenerateRequest{
		Brief:      job.Brief,
		Exclusions: job.Exclusions(),
		Count:      o.opts.BatchSize,
	}
	names, err := backend.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		degrade("generate", err)
		return nil
	}

	fresh := provider.FilterNames(names, req)
	span.SetAttributes(attribute.Int("generated", len(names)), attribute.Int("fresh", len(fresh)))
	return fresh
}

func (o *orchestrator) evaluate(ctx context.Context, job *model.Job, names []string, members []provider.Evaluator) []*model.Score {
	ctx, span := observability.Tracer().Start(ctx, "evaluate",
		trace.WithAttributes(attribute.Int("members", len(members))),
	)
	defer span.End()

	if o.opts.EvaluateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.EvaluateTimeout)
		defer cancel()
	}
	return o.deps.Swarm.Evaluate(ctx, job.Brief, names, members)
}

// check records availability on the candidates and returns the number of
// lookups that ended in error
func (o *orchestrator) check(ctx context.Context, names []string, byName map[string]*model.Candidate, note *model.BatchNote) int {
	ctx, span := observability.Tracer().Start(ctx, "check",
		trace.WithAttributes(attribute.Int("names", len(names))),
	)
	defer span.End()

	if len(names) == 0 {
		return 0
	}

	if o.opts.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.CheckTimeout)
		defer cancel()
	}

	failed := 0
	outcomes := make(map[model.Availability]int)
	for _, res := range o.deps.Checker.CheckAll(ctx, names) {
		c, ok := byName[res.Name]
		if !ok {
			continue
		}
		c.Availability = res.Availability
		c.Detail = res.Detail
		outcomes[res.Availability]++

		switch res.Availability {
		case model.AvailabilityAvailable:
			note.Available++
			note.Checked++
		case model.AvailabilityTaken:
			note.Checked++
		default:
			failed++
		}
	}

	for outcome, n := range outcomes {
		o.deps.Metrics.RecordCheck(ctx, string(outcome), n)
	}
	return failed
}

// merge folds a finished batch into the snapshot. Outcomes of batches that
// were cancelled, or that finish after a cancel was recorded, are dropped.
func (r *runner) merge(ctx context.Context, out batchOutcome) {
	if out.aborted || r.job.CancelRequested {
		r.logger.Info("discarding batch outcome",
			slog.Int("index", out.index),
			slog.Bool("cancel_requested", r.job.CancelRequested),
			slog.Bool("aborted", out.aborted),
		)
		return
	}

	added := 0
	err := r.persist(ctx, func(job *model.Job) error {
		if job.CancelRequested || job.State != model.JobStateRunning || job.BatchesExhausted() {
			return errNoChange
		}

		added = 0
		for _, c := range out.candidates {
			if _, seen := job.Candidates[c.Name]; seen {
				continue
			}
			candidate := *c
			job.Candidates[c.Name] = &candidate
			if candidate.Qualifies(r.o.opts.RequireScore) {
				job.Results = append(job.Results, c.Name)
				added++
			}
		}
		model.RankResults(job.Results, job.Candidates)

		job.BatchesRun++
		job.Batches = append(job.Batches, out.note)
		return nil
	})
	if errors.Is(err, errNoChange) {
		r.logger.Info("discarding batch outcome, job changed while it ran",
			slog.Int("index", out.index),
			slog.String("state", string(r.job.State)),
		)
		return
	}
	if err != nil {
		r.handlePersistError(ctx, err)
		return
	}

	r.o.deps.Metrics.RecordBatch(ctx, r.job.Backend, out.note.Degraded, out.duration.Seconds(), out.note.Generated)

	r.logger.Info("batch completed",
		slog.Int("index", out.index),
		slog.Int("generated", out.note.Generated),
		slog.Int("available", out.note.Available),
		slog.Int("added", added),
		slog.Int("results", len(r.job.Results)),
		slog.Bool("degraded", out.note.Degraded),
		slog.Duration("duration", out.duration),
	)
	r.publish(ctx, model.EventBatchCompleted, fmt.Sprintf("batch %d added %d results", out.index, added))
}
