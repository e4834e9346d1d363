package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/provider"
	"github.com/kirychukyurii/domain-search/internal/repository"
)

// concurrencyGauge tracks how many generate calls overlap
type concurrencyGauge struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *concurrencyGauge) enter() {
	n := g.inFlight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (g *concurrencyGauge) leave() { g.inFlight.Add(-1) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestrator_OneOwnerAcrossInstances(t *testing.T) {
	f := newFixture()
	f.opts.LeaseTTL = 150 * time.Millisecond

	var gauge concurrencyGauge
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		gauge.enter()
		defer gauge.leave()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	a := f.startInstance(t, "instance-a")
	b := f.startInstance(t, "instance-b")

	id, err := a.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitFor(t, "first batch", func() bool { return gauge.inFlight.Load() == 1 })

	n, err := b.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 0 || b.ActiveRunners() != 0 {
		t.Errorf("second instance recovered %d jobs, %d runners", n, b.ActiveRunners())
	}

	// the owner keeps renewing past the lease TTL
	time.Sleep(3 * f.opts.LeaseTTL)
	if n, _ := b.Recover(context.Background()); n != 0 {
		t.Errorf("second instance took over a live job: recovered %d", n)
	}

	if err := b.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel through second instance: %v", err)
	}
	if b.ActiveRunners() != 0 {
		t.Errorf("cancel started a runner on the non-owner")
	}

	job := waitForState(t, a, id, model.JobStateCancelled)
	if job.BatchesRun != 0 {
		t.Errorf("batches run = %d, want 0", job.BatchesRun)
	}
	if calls, peak := f.backend.Calls(), gauge.peak.Load(); calls != 1 || peak != 1 {
		t.Errorf("generate calls = %d, concurrent batches = %d, want 1 and 1", calls, peak)
	}

	if err := b.Cancel(context.Background(), id); !errors.Is(err, model.ErrAlreadyTerminal) {
		t.Errorf("Cancel after terminal = %v, want ErrAlreadyTerminal", err)
	}
}

func TestOrchestrator_ResumeThroughNonOwner(t *testing.T) {
	f := newFixture()
	f.opts.LeaseTTL = 150 * time.Millisecond
	f.policy = ThresholdPolicy{AfterBatches: 1, MaxRounds: 1, MinYield: 0.5, MaxTakenRatio: 0.9}
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		return []string{fmt.Sprintf("name%d.com", call)}, nil
	}
	f.checker.availability = func(string) model.Availability { return model.AvailabilityTaken }

	a := f.startInstance(t, "instance-a")
	b := f.startInstance(t, "instance-b")

	brief := sunriseBrief()
	brief.TargetResults = 5
	brief.MaxBatches = 2
	id, err := a.CreateJob(context.Background(), brief)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitForState(t, a, id, model.JobStateAwaitingFollowup)

	if err := b.Resume(context.Background(), id, map[string]string{model.QuestionVibe: "warm"}); err != nil {
		t.Fatalf("Resume through second instance: %v", err)
	}
	if b.ActiveRunners() != 0 {
		t.Errorf("resume started a runner on the non-owner")
	}

	job := waitForState(t, a, id, model.JobStateCompleted)
	if job.FollowupRounds != 1 || job.BatchesRun != 2 {
		t.Errorf("rounds = %d, batches = %d", job.FollowupRounds, job.BatchesRun)
	}
	if requests := f.backend.Requests(); len(requests) != 2 || requests[1].Brief.Vibe != "warm" {
		t.Errorf("generate requests after resume = %+v", requests)
	}
}

func TestOrchestrator_TakeoverAfterOwnerStops(t *testing.T) {
	f := newFixture()
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		if call == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []string{fmt.Sprintf("sunrise%d.co", call)}, nil
	}

	a := f.startInstance(t, "instance-a")
	b := f.startInstance(t, "instance-b")

	id, err := a.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitFor(t, "first batch", func() bool { return f.backend.Calls() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	n, err := b.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}

	job := waitForState(t, b, id, model.JobStateCompleted)
	if len(job.Results) != 2 {
		t.Errorf("results = %v", job.Results)
	}
}

// stolenLeaseStore reports every renewal as lost once stolen is set
type stolenLeaseStore struct {
	repository.JobStore
	stolen atomic.Bool
}

func (s *stolenLeaseStore) Renew(ctx context.Context, jobID, owner string, ttl time.Duration) error {
	if s.stolen.Load() {
		return model.ErrLeaseLost
	}
	return s.JobStore.Renew(ctx, jobID, owner, ttl)
}

func TestOrchestrator_StopsOnLostLease(t *testing.T) {
	f := newFixture()
	store := &stolenLeaseStore{JobStore: f.store}
	f.store = store
	f.opts.LeaseTTL = 90 * time.Millisecond

	aborted := make(chan struct{})
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		<-ctx.Done()
		close(aborted)
		return nil, ctx.Err()
	}
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitFor(t, "first batch", func() bool { return f.backend.Calls() == 1 })

	store.stolen.Store(true)
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("batch kept running after the lease was lost")
	}
	waitFor(t, "runner exit", func() bool { return o.ActiveRunners() == 0 })

	job, err := o.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.State != model.JobStateRunning || job.BatchesRun != 0 {
		t.Errorf("job after losing the lease = %s, %d batches", job.State, job.BatchesRun)
	}
}
