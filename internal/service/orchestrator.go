package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirychukyurii/domain-search/internal/archive"
	"github.com/kirychukyurii/domain-search/internal/checker"
	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/events"
	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/notifier"
	"github.com/kirychukyurii/domain-search/internal/observability"
	"github.com/kirychukyurii/domain-search/internal/pricing"
	"github.com/kirychukyurii/domain-search/internal/provider"
	"github.com/kirychukyurii/domain-search/internal/repository"
	"github.com/kirychukyurii/domain-search/internal/swarm"
)

// Orchestrator drives search jobs through their lifecycle
type Orchestrator interface {
	CreateJob(ctx context.Context, brief model.Brief) (string, error)
	GetStatus(ctx context.Context, jobID string) (*model.Status, error)
	GetResults(ctx context.Context, jobID string) ([]model.Candidate, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	Subscribe(ctx context.Context, jobID string) (*events.Subscription, *model.Status, error)
	GetFollowup(ctx context.Context, jobID string) (*model.Followup, error)
	Resume(ctx context.Context, jobID string, answers map[string]string) error
	Cancel(ctx context.Context, jobID string) error
	Recover(ctx context.Context) (int, error)
	Shutdown(ctx context.Context) error
	ActiveRunners() int
}

// BackendResolver maps a backend name to an AI backend
type BackendResolver interface {
	Resolve(name string) (provider.Backend, error)
}

// Dependencies are the collaborators of the orchestrator
type Dependencies struct {
	Store    repository.JobStore
	Events   events.Publisher
	Backends BackendResolver
	Swarm    swarm.Evaluator
	Checker  checker.Checker
	Prices   pricing.Lookup
	Notifier notifier.Notifier
	Archiver archive.Archiver
	Policy   FollowupPolicy
	Metrics  *observability.Metrics
}

// Options tunes the batch loop
type Options struct {
	BatchSize        int
	GenerateTimeout  time.Duration
	EvaluateTimeout  time.Duration
	CheckTimeout     time.Duration
	NotifyTimeout    time.Duration
	MaxSaveRetries   int
	RequireScore     bool
	DefaultBackend   string
	SwarmMembers     []string
	NotifyTopResults int

	// InstanceID is the lease owner name of this orchestrator
	InstanceID      string
	LeaseTTL        time.Duration
	RecoverInterval time.Duration
}

// OptionsFromConfig collects the orchestrator options from the service config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:        cfg.Orchestrator.BatchSize,
		GenerateTimeout:  cfg.Orchestrator.GenerateTimeout,
		EvaluateTimeout:  cfg.Orchestrator.EvaluateTimeout,
		CheckTimeout:     cfg.Orchestrator.CheckTimeout,
		NotifyTimeout:    cfg.Orchestrator.NotifyTimeout,
		MaxSaveRetries:   cfg.Orchestrator.MaxSaveRetries,
		RequireScore:     cfg.Orchestrator.RequireScore,
		DefaultBackend:   cfg.Orchestrator.DefaultBackend,
		SwarmMembers:     cfg.Swarm.Members,
		NotifyTopResults: cfg.Notifier.TopResults,
		InstanceID:       cfg.Orchestrator.InstanceID,
		LeaseTTL:         cfg.Orchestrator.LeaseTTL,
		RecoverInterval:  cfg.Orchestrator.RecoverInterval,
	}
}

const defaultLeaseTTL = 15 * time.Second

type orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	runners     map[string]*runner
	recoverLoop sync.Once
}

// New creates an orchestrator. Runners live until their job is terminal or
// Shutdown is called.
func New(deps Dependencies, opts Options, logger *slog.Logger) Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxSaveRetries < 0 {
		opts.MaxSaveRetries = 0
	}
	if deps.Policy == nil {
		deps.Policy = NoFollowup{}
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.Noop{}
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaultLeaseTTL
	}

	ctx, stop := context.WithCancel(context.Background())
	return &orchestrator{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		stop:    stop,
		runners: make(map[string]*runner),
	}
}

// CreateJob validates the brief, persists a new job and starts its runner
func (o *orchestrator) CreateJob(ctx context.Context, brief model.Brief) (string, error) {
	brief.Normalize()
	if err := brief.Validate(); err != nil {
		return "", err
	}

	name := brief.Backend
	if name == "" {
		name = o.opts.DefaultBackend
	}
	backend, err := o.deps.Backends.Resolve(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidBrief, err)
	}
	brief.Backend = backend.Name()

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return "", model.ErrShuttingDown
	}

	job := model.NewJob(uuid.NewString(), brief, backend.Name(), time.Now().UTC())
	if _, err := o.deps.Store.Save(ctx, job, 0); err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	o.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("business", brief.BusinessName),
		slog.String("backend", job.Backend),
		slog.Any("tlds", brief.TLDs),
	)

	if _, err := o.startRunner(ctx, job.ID); err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob returns the last durable snapshot
func (o *orchestrator) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, _, err := o.deps.Store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (o *orchestrator) GetStatus(ctx context.Context, jobID string) (*model.Status, error) {
	job, err := o.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status := job.Status()
	return &status, nil
}

// GetResults returns the ranked results, partial while the job runs
func (o *orchestrator) GetResults(ctx context.Context, jobID string) ([]model.Candidate, error) {
	job, err := o.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.ResultCandidates(), nil
}

func (o *orchestrator) GetFollowup(ctx context.Context, jobID string) (*model.Followup, error) {
	job, err := o.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != model.JobStateAwaitingFollowup || job.PendingFollowup == nil {
		return nil, model.ErrNotAwaiting
	}
	return job.PendingFollowup, nil
}

// Subscribe attaches a live listener and returns the current status. The
// listener is registered before the snapshot is read, so no transition falls
// between the two. The stream of an already terminal job is closed at once.
func (o *orchestrator) Subscribe(ctx context.Context, jobID string) (*events.Subscription, *model.Status, error) {
	sub, err := o.deps.Events.Subscribe(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	job, _, err := o.deps.Store.Load(ctx, jobID)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	if job.State.IsTerminal() {
		sub.Close()
	}

	status := job.Status()
	return sub, &status, nil
}

// Resume answers a pending follow-up and restarts the batch loop
func (o *orchestrator) Resume(ctx context.Context, jobID string, answers map[string]string) error {
	return o.send(ctx, jobID, request{kind: requestResume, answers: answers})
}

// Cancel requests cancellation. Repeating it while the job drains is a no-op;
// once the job is terminal it fails with model.ErrAlreadyTerminal.
func (o *orchestrator) Cancel(ctx context.Context, jobID string) error {
	return o.send(ctx, jobID, request{kind: requestCancel})
}

// Recover starts runners for every non-terminal job in the store that no
// other instance owns. With a RecoverInterval it keeps rescanning in the
// background, so jobs of a dead instance move over once its leases expire.
func (o *orchestrator) Recover(ctx context.Context) (int, error) {
	recovered, err := o.recoverActive(ctx)
	if err != nil {
		return recovered, err
	}

	if o.opts.RecoverInterval > 0 {
		o.recoverLoop.Do(func() {
			o.wg.Add(1)
			go o.rescan(o.opts.RecoverInterval)
		})
	}

	o.logger.Info("recovered active jobs", slog.Int("count", recovered))
	return recovered, nil
}

func (o *orchestrator) recoverActive(ctx context.Context) (int, error) {
	ids, err := o.deps.Store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		started, err := o.startRunner(ctx, id)
		switch {
		case errors.Is(err, model.ErrShuttingDown):
			return recovered, err
		case errors.Is(err, model.ErrLeaseHeld):
			o.logger.Debug("job owned by another instance", slog.String("job_id", id))
		case err != nil:
			o.logger.Error("failed to recover job",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		case started:
			recovered++
		}
	}
	return recovered, nil
}

func (o *orchestrator) rescan(interval time.Duration) {
	defer o.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			n, err := o.recoverActive(o.ctx)
			if err != nil && !errors.Is(err, model.ErrShuttingDown) {
				o.logger.Warn("periodic recovery failed", slog.String("error", err.Error()))
			}
			if n > 0 {
				o.logger.Info("took over orphaned jobs", slog.Int("count", n))
			}
		}
	}
}

// Shutdown stops every runner. In-flight batches are abandoned; their jobs
// stay in their last durable state and are picked up by Recover.
func (o *orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

// ActiveRunners returns the number of live job runners
func (o *orchestrator) ActiveRunners() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runners)
}

// startRunner claims the job lease and starts a runner for the job unless one
// is already live here. The snapshot is read after the claim, so the runner
// starts from whatever the previous owner last saved. It reports whether a
// new runner was started; model.ErrLeaseHeld means another instance owns it.
func (o *orchestrator) startRunner(ctx context.Context, jobID string) (bool, error) {
	o.mu.Lock()
	closed := o.closed
	_, live := o.runners[jobID]
	o.mu.Unlock()
	if closed {
		return false, model.ErrShuttingDown
	}
	if live {
		return false, nil
	}

	if err := o.deps.Store.Claim(ctx, jobID, o.opts.InstanceID, o.opts.LeaseTTL); err != nil {
		return false, err
	}

	job, version, err := o.deps.Store.Load(ctx, jobID)
	if err != nil {
		o.releaseLease(jobID)
		return false, err
	}
	if job.State.IsTerminal() {
		o.releaseLease(jobID)
		return false, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		go o.releaseLease(jobID)
		return false, model.ErrShuttingDown
	}
	if _, ok := o.runners[jobID]; ok {
		return false, nil
	}

	r := newRunner(o, job, version)
	o.runners[jobID] = r
	o.wg.Add(1)
	go r.run(o.ctx)
	return true, nil
}

func (o *orchestrator) releaseLease(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Store.Release(ctx, jobID, o.opts.InstanceID); err != nil {
		o.logger.Warn("failed to release job lease",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *orchestrator) removeRunner(r *runner) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runners[r.id] == r {
		delete(o.runners, r.id)
	}
}

// runnerFor returns the live runner of a job, starting one if the job is not
// terminal. A nil runner comes with the terminal snapshot. When another
// instance owns the job the error is model.ErrLeaseHeld.
func (o *orchestrator) runnerFor(ctx context.Context, jobID string) (*runner, *model.Job, error) {
	o.mu.Lock()
	r, ok := o.runners[jobID]
	o.mu.Unlock()
	if ok {
		return r, nil, nil
	}

	job, _, err := o.deps.Store.Load(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.State.IsTerminal() {
		return nil, job, nil
	}

	if _, err := o.startRunner(ctx, jobID); err != nil {
		return nil, nil, err
	}

	o.mu.Lock()
	r, ok = o.runners[jobID]
	o.mu.Unlock()
	if !ok {
		// finished between start and lookup; retried by send
		return nil, nil, errRunnerGone
	}
	return r, nil, nil
}

var errRunnerGone = errors.New("runner exited")

// send delivers a request to the job's runner and waits for its reply
func (o *orchestrator) send(ctx context.Context, jobID string, req request) error {
	for attempt := 0; attempt < 3; attempt++ {
		r, terminal, err := o.runnerFor(ctx, jobID)
		if errors.Is(err, errRunnerGone) {
			continue
		}
		if errors.Is(err, model.ErrLeaseHeld) {
			return o.applyStored(ctx, jobID, req)
		}
		if err != nil {
			return err
		}
		if r == nil {
			return req.rejectTerminal(terminal)
		}

		req.reply = make(chan error, 1)
		select {
		case r.inbox <- req:
		case <-r.done:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case err := <-req.reply:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return model.ErrBusy
}

// applyStored saves a request against a job owned by another instance. No
// runner starts here; the owner picks the change up on its next heartbeat.
func (o *orchestrator) applyStored(ctx context.Context, jobID string, req request) error {
	mutate := req.mutation()
	for attempt := 0; ; attempt++ {
		job, version, err := o.deps.Store.Load(ctx, jobID)
		if err != nil {
			return err
		}

		next := job.Clone()
		if err := mutate(next); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		_, err = o.deps.Store.Save(ctx, next, version)
		if err == nil {
			o.logger.Info("request saved for owning instance",
				slog.String("job_id", jobID),
				slog.String("request", req.kind.String()),
			)
			return nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return err
		}
		if attempt >= o.opts.MaxSaveRetries {
			return model.ErrBusy
		}
	}
}
