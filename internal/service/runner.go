package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/notifier"
	"github.com/kirychukyurii/domain-search/internal/provider"
)

type requestKind int

const (
	requestResume requestKind = iota
	requestCancel
)

func (k requestKind) String() string {
	switch k {
	case requestResume:
		return "resume"
	case requestCancel:
		return "cancel"
	default:
		return fmt.Sprintf("request(%d)", int(k))
	}
}

type request struct {
	kind    requestKind
	answers map[string]string
	reply   chan error
}

// mutation is the snapshot change a request makes
func (r request) mutation() func(job *model.Job) error {
	if r.kind == requestResume {
		return resumeMutation(r.answers)
	}
	return cancelMutation
}

func cancelMutation(job *model.Job) error {
	if job.State.IsTerminal() {
		return model.ErrAlreadyTerminal
	}
	if job.CancelRequested {
		return errNoChange
	}
	job.CancelRequested = true
	return nil
}

func resumeMutation(answers map[string]string) func(job *model.Job) error {
	return func(job *model.Job) error {
		if job.State != model.JobStateAwaitingFollowup {
			return fmt.Errorf("%w: job is %s", model.ErrInvalidState, job.State)
		}
		if job.CancelRequested {
			return fmt.Errorf("%w: job is being cancelled", model.ErrInvalidState)
		}
		job.Brief = AmendBrief(job.Brief, answers)
		job.PendingFollowup = nil
		job.FollowupRounds++
		job.State = model.JobStateRunning
		return nil
	}
}

// rejectTerminal is the answer to a request for a job that already finished
func (r request) rejectTerminal(job *model.Job) error {
	if r.kind == requestCancel {
		return model.ErrAlreadyTerminal
	}
	return fmt.Errorf("%w: job is %s", model.ErrInvalidState, job.State)
}

// errNoChange aborts a mutation without saving
var errNoChange = errors.New("no change")

// runner owns one job: its snapshot, its store version and its batch loop
type runner struct {
	o       *orchestrator
	id      string
	job     *model.Job
	version int64
	seq     int64
	logger  *slog.Logger

	inbox chan request
	done  chan struct{}

	backend provider.Backend
	members []provider.Evaluator

	batchCancel context.CancelFunc
	batchDone   chan batchOutcome

	renewedAt time.Time
	halted    bool
}

func newRunner(o *orchestrator, job *model.Job, version int64) *runner {
	return &runner{
		o:       o,
		id:      job.ID,
		job:     job,
		version: version,
		logger:  o.logger.With(slog.String("job_id", job.ID)),
		inbox:   make(chan request),
		done:    make(chan struct{}),

		renewedAt: time.Now(),
	}
}

// heartbeatGap lets a lease survive two missed renewals
func (o *orchestrator) heartbeatGap() time.Duration {
	return max(o.opts.LeaseTTL/3, time.Millisecond)
}

func (r *runner) run(ctx context.Context) {
	defer r.o.wg.Done()
	defer close(r.done)
	defer r.o.removeRunner(r)
	defer r.o.releaseLease(r.id)

	heartbeat := time.NewTicker(r.o.heartbeatGap())
	defer heartbeat.Stop()

	r.logger.Debug("runner started", slog.String("state", string(r.job.State)))
	r.advance(ctx)

	for !r.halted && (!r.job.State.IsTerminal() || r.batchDone != nil) {
		select {
		case req := <-r.inbox:
			req.reply <- r.handle(ctx, req)
			r.advance(ctx)
		case out := <-r.batchDone:
			r.batchDone = nil
			r.batchCancel()
			r.merge(ctx, out)
			r.advance(ctx)
		case <-heartbeat.C:
			if !r.renew(ctx) {
				if r.batchDone != nil {
					r.batchCancel()
					<-r.batchDone
				}
				return
			}
			r.sync(ctx)
			r.advance(ctx)
		case <-ctx.Done():
			if r.batchDone != nil {
				r.batchCancel()
				<-r.batchDone
			}
			r.logger.Debug("runner stopped", slog.String("state", string(r.job.State)))
			return
		}
	}
}

func (r *runner) handle(ctx context.Context, req request) error {
	switch req.kind {
	case requestCancel:
		return r.cancel(ctx)
	case requestResume:
		return r.resume(ctx, req.answers)
	default:
		return fmt.Errorf("unknown request %d", req.kind)
	}
}

func (r *runner) cancel(ctx context.Context) error {
	err := r.persist(ctx, cancelMutation)
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	r.logger.Info("cancel requested", slog.Bool("batch_in_flight", r.batchDone != nil))
	r.publish(ctx, model.EventCancelRequested, "")

	if r.batchDone != nil {
		r.batchCancel()
	}
	return nil
}

func (r *runner) resume(ctx context.Context, answers map[string]string) error {
	if err := r.persist(ctx, resumeMutation(answers)); err != nil {
		return err
	}

	r.logger.Info("job resumed",
		slog.Int("round", r.job.FollowupRounds),
		slog.String("vibe", r.job.Brief.Vibe),
		slog.Any("keywords", r.job.Brief.Keywords),
	)
	r.publish(ctx, model.EventStateChanged, "resumed")
	return nil
}

// renew extends the job lease. The runner gives up the job when the lease is
// taken over or could not be renewed for a whole TTL.
func (r *runner) renew(ctx context.Context) bool {
	err := r.o.deps.Store.Renew(ctx, r.id, r.o.opts.InstanceID, r.o.opts.LeaseTTL)
	if err == nil {
		r.renewedAt = time.Now()
		return true
	}
	if ctx.Err() != nil {
		return true
	}

	if errors.Is(err, model.ErrLeaseLost) || time.Since(r.renewedAt) >= r.o.opts.LeaseTTL {
		r.logger.Warn("job ownership lost, stopping runner", slog.String("error", err.Error()))
		return false
	}
	r.logger.Warn("failed to renew job lease", slog.String("error", err.Error()))
	return true
}

// sync adopts snapshots saved by other instances since the runner's last
// write, such as a cancel or resume that reached a non-owning instance
func (r *runner) sync(ctx context.Context) {
	job, version, err := r.o.deps.Store.Load(ctx, r.id)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("failed to reload job", slog.String("error", err.Error()))
		}
		return
	}
	if version == r.version {
		return
	}

	prev := r.job
	r.job = job
	r.version = version
	r.logger.Debug("adopted external snapshot", slog.Int64("version", version))

	if job.CancelRequested && !prev.CancelRequested {
		r.logger.Info("cancel requested", slog.Bool("batch_in_flight", r.batchDone != nil))
		r.publish(ctx, model.EventCancelRequested, "")
		if r.batchDone != nil {
			r.batchCancel()
		}
	}
	if prev.State == model.JobStateAwaitingFollowup && job.State == model.JobStateRunning {
		r.logger.Info("job resumed", slog.Int("round", job.FollowupRounds))
		r.publish(ctx, model.EventStateChanged, "resumed")
	}
}

// maxAdvanceSteps bounds the transitions applied per wake-up; the longest
// legal chain is Created, Running, Finalizing, Completed
const maxAdvanceSteps = 16

// advance applies every transition that needs no waiting, and starts a batch
// when the job should keep running
func (r *runner) advance(ctx context.Context) {
	for step := 0; !r.halted && r.batchDone == nil && ctx.Err() == nil; step++ {
		if step == maxAdvanceSteps {
			r.logger.Warn("job is not settling, stopping runner until the next request",
				slog.String("state", string(r.job.State)),
			)
			r.halted = true
			return
		}

		job := r.job
		switch job.State {
		case model.JobStateCreated:
			if job.CancelRequested {
				r.terminate(ctx, model.JobStateCancelled, "")
				continue
			}
			r.transition(ctx, model.JobStateRunning, "")

		case model.JobStateRunning:
			switch {
			case job.CancelRequested:
				r.terminate(ctx, model.JobStateCancelled, "")
			case job.ShouldStop():
				r.transition(ctx, model.JobStateFinalizing, "")
			default:
				if followup := r.o.deps.Policy.Evaluate(job); followup != nil {
					r.awaitFollowup(ctx, followup)
					continue
				}
				r.startBatch(ctx)
				return
			}

		case model.JobStateAwaitingFollowup:
			if job.CancelRequested {
				r.terminate(ctx, model.JobStateCancelled, "")
				continue
			}
			return

		case model.JobStateFinalizing:
			if job.CancelRequested {
				r.terminate(ctx, model.JobStateCancelled, "")
				continue
			}
			r.terminate(ctx, model.JobStateCompleted, "")

		default:
			return
		}
	}
}

// transition persists a plain state change and publishes it
func (r *runner) transition(ctx context.Context, state model.JobState, message string) {
	from := r.job.State
	err := r.persist(ctx, func(job *model.Job) error {
		if job.State != from {
			return errNoChange
		}
		job.State = state
		return nil
	})
	if errors.Is(err, errNoChange) {
		return
	}
	if err != nil {
		r.handlePersistError(ctx, err)
		return
	}

	r.logger.Info("job state changed",
		slog.String("from", string(from)),
		slog.String("to", string(state)),
	)
	r.publish(ctx, model.EventStateChanged, message)
}

func (r *runner) awaitFollowup(ctx context.Context, followup *model.Followup) {
	err := r.persist(ctx, func(job *model.Job) error {
		if job.State != model.JobStateRunning || job.CancelRequested {
			return errNoChange
		}
		job.State = model.JobStateAwaitingFollowup
		job.PendingFollowup = followup
		return nil
	})
	if errors.Is(err, errNoChange) {
		return
	}
	if err != nil {
		r.handlePersistError(ctx, err)
		return
	}

	r.logger.Info("job awaiting follow-up",
		slog.String("reason", followup.Reason),
		slog.Int("results", len(r.job.Results)),
	)
	r.publish(ctx, model.EventFollowupRequested, followup.Reason)
}

// terminate moves the job into a terminal state. The summary goes out before
// the state is saved, so a durable terminal state implies a notify attempt.
func (r *runner) terminate(ctx context.Context, state model.JobState, reason string) {
	if r.job.State.IsTerminal() {
		return
	}

	final := r.job.Clone()
	final.State = state
	if reason != "" {
		final.FailureReason = reason
	}
	r.notify(ctx, final)

	err := r.persist(ctx, func(job *model.Job) error {
		if job.State.IsTerminal() {
			return errNoChange
		}
		job.State = state
		job.PendingFollowup = nil
		if reason != "" {
			job.FailureReason = reason
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return
	}
	if err != nil {
		if state == model.JobStateFailed {
			r.logger.Error("failed to persist job failure, stopping runner",
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			r.halted = true
			return
		}
		r.handlePersistError(ctx, err)
		return
	}

	r.logger.Info("job finished",
		slog.String("state", string(state)),
		slog.Int("batches", r.job.BatchesRun),
		slog.Int("results", len(r.job.Results)),
	)
	r.o.deps.Metrics.RecordTerminal(ctx, string(state))
	r.publish(ctx, model.EventStateChanged, reason)
	r.archive(ctx, r.job)
}

// handlePersistError escalates store failures. Contention surfaces as
// model.ErrBusy after the snapshot was reloaded, so the loop retries from the
// fresh state; anything else fails the job.
func (r *runner) handlePersistError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, model.ErrBusy) {
		r.logger.Warn("job store contention, retrying from reloaded snapshot",
			slog.String("error", err.Error()),
		)
		return
	}

	r.logger.Error("failed to persist job", slog.String("error", err.Error()))
	r.terminate(ctx, model.JobStateFailed, fmt.Sprintf("persistence error: %v", err))
	if !r.job.State.IsTerminal() {
		r.halted = true
	}
}

// persist applies mutate to a copy of the snapshot and saves it with CAS.
// On a version conflict the snapshot is reloaded and mutate reapplied, up to
// MaxSaveRetries times, after which model.ErrBusy is returned.
func (r *runner) persist(ctx context.Context, mutate func(job *model.Job) error) error {
	for attempt := 0; ; attempt++ {
		next := r.job.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		version, err := r.o.deps.Store.Save(ctx, next, r.version)
		if err == nil {
			r.job = next
			r.version = version
			return nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return err
		}

		r.logger.Debug("version conflict, reloading job",
			slog.Int("attempt", attempt+1),
			slog.Int64("version", r.version),
		)

		job, version, loadErr := r.o.deps.Store.Load(ctx, r.id)
		if loadErr != nil {
			return fmt.Errorf("reload after conflict: %w", loadErr)
		}
		r.job = job
		r.version = version

		if attempt >= r.o.opts.MaxSaveRetries {
			return model.ErrBusy
		}
	}
}

func (r *runner) publish(ctx context.Context, typ model.EventType, message string) {
	r.seq++
	event := model.Event{
		JobID:       r.id,
		Seq:         r.seq,
		Type:        typ,
		State:       r.job.State,
		BatchesRun:  r.job.BatchesRun,
		ResultCount: len(r.job.Results),
		Message:     message,
		At:          time.Now().UTC(),
	}
	if err := r.o.deps.Events.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish event",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}

// notify sends the summary to the brief's destination, if any. Failures are
// logged and never block the job.
func (r *runner) notify(ctx context.Context, job *model.Job) {
	destination := job.Brief.NotifyEmail
	if destination == "" || r.o.deps.Notifier == nil {
		return
	}

	notifyCtx := context.WithoutCancel(ctx)
	if r.o.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		notifyCtx, cancel = context.WithTimeout(notifyCtx, r.o.opts.NotifyTimeout)
		defer cancel()
	}

	summary := notifier.BuildSummary(job, r.o.opts.NotifyTopResults)
	if err := r.o.deps.Notifier.Notify(notifyCtx, destination, summary); err != nil {
		r.logger.Warn("notification failed",
			slog.String("destination", destination),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Info("notification sent", slog.String("destination", destination))
}

func (r *runner) archive(ctx context.Context, job *model.Job) {
	if err := r.o.deps.Archiver.Archive(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Warn("failed to archive job", slog.String("error", err.Error()))
	}
}

// resolveBackends binds the job backend and the swarm members once per runner
func (r *runner) resolveBackends() error {
	if r.backend != nil {
		return nil
	}

	backend, err := r.o.deps.Backends.Resolve(r.job.Backend)
	if err != nil {
		return fmt.Errorf("resolve backend: %w", err)
	}
	r.backend = backend

	for _, name := range r.o.opts.SwarmMembers {
		member, err := r.o.deps.Backends.Resolve(name)
		if err != nil {
			r.logger.Warn("skipping swarm member",
				slog.String("member", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.members = append(r.members, member)
	}
	if len(r.members) == 0 {
		r.members = []provider.Evaluator{backend}
	}
	return nil
}

func (r *runner) startBatch(ctx context.Context) {
	if err := r.resolveBackends(); err != nil {
		r.logger.Error("cannot run batch", slog.String("error", err.Error()))
		r.terminate(ctx, model.JobStateFailed, err.Error())
		return
	}

	snapshot := r.job.Clone()
	batchCtx, cancel := context.WithCancel(ctx)
	done := make(chan batchOutcome, 1)

	r.batchCancel = cancel
	r.batchDone = done

	r.logger.Debug("batch started", slog.Int("index", snapshot.BatchesRun+1))
	go func() {
		done <- r.o.runBatch(batchCtx, snapshot, r.backend, r.members)
	}()
}
