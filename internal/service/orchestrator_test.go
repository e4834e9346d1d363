package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirychukyurii/domain-search/internal/checker"
	"github.com/kirychukyurii/domain-search/internal/events"
	"github.com/kirychukyurii/domain-search/internal/logger"
	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/notifier"
	"github.com/kirychukyurii/domain-search/internal/provider"
	"github.com/kirychukyurii/domain-search/internal/repository"
	"github.com/kirychukyurii/domain-search/internal/swarm"
)

type fakeBackend struct {
	name     string
	score    float64
	generate func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error)

	mu       sync.Mutex
	calls    int
	requests []provider.GenerateRequest
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Generate(ctx context.Context, req provider.GenerateRequest) ([]string, error) {
	b.mu.Lock()
	b.calls++
	call := b.calls
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.generate == nil {
		return nil, nil
	}
	return b.generate(ctx, call, req)
}

func (b *fakeBackend) Evaluate(ctx context.Context, req provider.EvaluateRequest) (*model.Score, error) {
	return &model.Score{Overall: b.score, Pronounceability: b.score, Memorability: b.score, BrandFit: b.score}, nil
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *fakeBackend) Requests() []provider.GenerateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]provider.GenerateRequest(nil), b.requests...)
}

type staticResolver map[string]provider.Backend

func (r staticResolver) Resolve(name string) (provider.Backend, error) {
	b, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("backend %q is not configured", name)
	}
	return b, nil
}

type fakeChecker struct {
	availability func(name string) model.Availability
}

func (c fakeChecker) Check(ctx context.Context, name string) (model.Availability, *model.Detail, error) {
	a := c.availability(name)
	if a == model.AvailabilityError {
		err := errors.New("lookup failed")
		return a, &model.Detail{Error: err.Error()}, &model.ProviderError{Provider: "fake", Op: "check", Err: err}
	}
	return a, nil, nil
}

func (c fakeChecker) CheckAll(ctx context.Context, names []string) []checker.Result {
	out := make([]checker.Result, len(names))
	for i, name := range names {
		a, detail, _ := c.Check(ctx, name)
		out[i] = checker.Result{Name: name, Availability: a, Detail: detail}
	}
	return out
}

type priceTable map[string]int64

func (p priceTable) FetchPrice(tld string) (*model.Price, bool) {
	cents, ok := p[tld]
	if !ok {
		return nil, false
	}
	return &model.Price{Cents: cents, Currency: "USD", Category: model.PriceCategoryRecommended}, true
}

type recordingNotifier struct {
	mu           sync.Mutex
	destinations []string
	summaries    []notifier.Summary
	err          error
}

func (n *recordingNotifier) Notify(ctx context.Context, destination string, summary notifier.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destinations = append(n.destinations, destination)
	n.summaries = append(n.summaries, summary)
	if n.err != nil {
		return &model.NotifyError{Destination: destination, Err: n.err}
	}
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) Summaries() []notifier.Summary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifier.Summary(nil), n.summaries...)
}

type policyFunc func(job *model.Job) *model.Followup

func (f policyFunc) Evaluate(job *model.Job) *model.Followup { return f(job) }

// conflictStore fails every save with a version conflict while conflict is set
type conflictStore struct {
	repository.JobStore
	conflict atomic.Bool
	rejected atomic.Int32
}

func (s *conflictStore) Save(ctx context.Context, job *model.Job, expectedVersion int64) (int64, error) {
	if s.conflict.Load() {
		s.rejected.Add(1)
		return 0, model.ErrVersionConflict
	}
	return s.JobStore.Save(ctx, job, expectedVersion)
}

type fixture struct {
	store    repository.JobStore
	events   *events.MemoryPublisher
	backend  *fakeBackend
	checker  fakeChecker
	prices   priceTable
	notifier *recordingNotifier
	policy   FollowupPolicy
	opts     Options
}

func newFixture() *fixture {
	return &fixture{
		store:   repository.NewMemoryStore(),
		events:  events.NewMemoryPublisher(64, logger.Discard()),
		backend: &fakeBackend{name: "fake", score: 8},
		checker: fakeChecker{availability: func(string) model.Availability {
			return model.AvailabilityAvailable
		}},
		prices:   priceTable{"com": 1044, "co": 1200},
		notifier: &recordingNotifier{},
		policy:   NoFollowup{},
		opts: Options{
			BatchSize:        10,
			MaxSaveRetries:   2,
			RequireScore:     true,
			DefaultBackend:   "fake",
			NotifyTopResults: 5,
		},
	}
}

func (f *fixture) start(t *testing.T) Orchestrator {
	t.Helper()
	return f.startInstance(t, f.opts.InstanceID)
}

// startInstance starts another orchestrator on the fixture's shared store
func (f *fixture) startInstance(t *testing.T, instanceID string) Orchestrator {
	t.Helper()
	opts := f.opts
	opts.InstanceID = instanceID
	o := New(Dependencies{
		Store:    f.store,
		Events:   f.events,
		Backends: staticResolver{"fake": f.backend},
		Swarm:    swarm.New(swarm.Options{MaxConcurrent: 4}, logger.Discard()),
		Checker:  f.checker,
		Prices:   f.prices,
		Notifier: f.notifier,
		Policy:   f.policy,
	}, opts, logger.Discard())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func sunriseBrief() model.Brief {
	return model.Brief{
		BusinessName:  "Sunrise Bakery",
		TLDs:          []string{"com", "co"},
		TargetResults: 2,
		MaxBatches:    2,
		NotifyEmail:   "owner@example.com",
	}
}

func waitForState(t *testing.T, o Orchestrator, jobID string, want model.JobState) *model.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		job, err := o.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.State == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, want %s", jobID, job.State, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestrator_SunriseBakery(t *testing.T) {
	f := newFixture()
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		switch call {
		case 1:
			return []string{"sunrisebakery.com", "sunrise.co"}, nil
		default:
			return []string{"sunrisebakes.co"}, nil
		}
	}
	f.checker.availability = func(name string) model.Availability {
		if name == "sunrisebakery.com" {
			return model.AvailabilityTaken
		}
		return model.AvailabilityAvailable
	}
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := waitForState(t, o, id, model.JobStateCompleted)
	if job.BatchesRun != 2 {
		t.Errorf("batches run = %d, want 2", job.BatchesRun)
	}
	if got := strings.Join(job.Results, ","); got != "sunrise.co,sunrisebakes.co" {
		t.Errorf("results = %s", got)
	}
	if job.Candidates["sunrisebakery.com"].Availability != model.AvailabilityTaken {
		t.Errorf("sunrisebakery.com = %+v", job.Candidates["sunrisebakery.com"])
	}
	if job.Batches[0].Available != 1 || job.Batches[0].Checked != 2 {
		t.Errorf("batch 1 note = %+v", job.Batches[0])
	}

	results, err := o.GetResults(context.Background(), id)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if results[0].Price == nil || results[0].Price.Cents != 1200 {
		t.Errorf("first result = %+v", results[0])
	}

	summaries := f.notifier.Summaries()
	if len(summaries) != 1 {
		t.Fatalf("notifications = %d, want 1", len(summaries))
	}
	if summaries[0].State != model.JobStateCompleted || summaries[0].ResultCount != 2 {
		t.Errorf("summary = %+v", summaries[0])
	}
}

func TestOrchestrator_MultiLabelTLD(t *testing.T) {
	f := newFixture()
	f.prices = priceTable{"co.uk": 899, "uk": 450}
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		return []string{"sunrise.co.uk", "sunrisebakes.co.uk"}, nil
	}
	o := f.start(t)

	brief := sunriseBrief()
	brief.TLDs = []string{"co.uk"}
	id, err := o.CreateJob(context.Background(), brief)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := waitForState(t, o, id, model.JobStateCompleted)
	if job.BatchesRun != 1 || len(job.Results) != 2 {
		t.Fatalf("batches = %d, results = %v", job.BatchesRun, job.Results)
	}
	for _, c := range job.ResultCandidates() {
		if c.Price == nil || c.Price.Cents != 899 {
			t.Errorf("%s priced %+v, want the co.uk price", c.Name, c.Price)
		}
	}
}

func TestOrchestrator_AllLookupsFailComplete(t *testing.T) {
	f := newFixture()
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		return []string{fmt.Sprintf("bakery%d.com", call)}, nil
	}
	f.checker.availability = func(string) model.Availability { return model.AvailabilityError }
	o := f.start(t)

	brief := sunriseBrief()
	brief.MaxBatches = 3
	id, err := o.CreateJob(context.Background(), brief)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := waitForState(t, o, id, model.JobStateCompleted)
	if len(job.Results) != 0 {
		t.Errorf("results = %v, want none", job.Results)
	}
	if job.BatchesRun != 3 {
		t.Errorf("batches run = %d, want 3", job.BatchesRun)
	}
	for _, note := range job.Batches {
		if !note.Degraded {
			t.Errorf("batch %d should be degraded", note.Index)
		}
	}
	if job.Candidates["bakery1.com"].Availability != model.AvailabilityError {
		t.Errorf("bakery1.com = %+v", job.Candidates["bakery1.com"])
	}
}

func TestOrchestrator_StopsExactlyAtMaxBatches(t *testing.T) {
	f := newFixture()
	o := f.start(t)

	brief := sunriseBrief()
	brief.MaxBatches = 2
	id, err := o.CreateJob(context.Background(), brief)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := waitForState(t, o, id, model.JobStateCompleted)
	if job.BatchesRun != 2 {
		t.Errorf("batches run = %d, want 2", job.BatchesRun)
	}
	if f.backend.Calls() != 2 {
		t.Errorf("generate calls = %d, want 2", f.backend.Calls())
	}
}

func TestOrchestrator_CancelMidBatch(t *testing.T) {
	f := newFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		if call == 1 {
			close(started)
		}
		// ignores ctx so the batch keeps draining after the cancel
		<-release
		return []string{"sunrise.co", "sunrisebakes.com"}, nil
	}
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	<-started

	before, _ := o.GetJob(context.Background(), id)

	if err := o.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := o.Cancel(context.Background(), id); err != nil {
		t.Fatalf("second Cancel while draining: %v", err)
	}

	status, err := o.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.CancelRequested || status.State.IsTerminal() {
		t.Errorf("status while draining = %+v", status)
	}

	close(release)
	job := waitForState(t, o, id, model.JobStateCancelled)

	if len(job.Results) != len(before.Results) || len(job.Candidates) != len(before.Candidates) {
		t.Errorf("results grew after cancel: before %v, after %v", before.Results, job.Results)
	}
	if job.BatchesRun != 0 {
		t.Errorf("batches run = %d, want 0", job.BatchesRun)
	}

	if err := o.Cancel(context.Background(), id); !errors.Is(err, model.ErrAlreadyTerminal) {
		t.Errorf("Cancel after terminal = %v, want ErrAlreadyTerminal", err)
	}

	summaries := f.notifier.Summaries()
	if len(summaries) != 1 || summaries[0].State != model.JobStateCancelled {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestOrchestrator_FollowupAndResume(t *testing.T) {
	f := newFixture()
	f.policy = ThresholdPolicy{AfterBatches: 1, MaxRounds: 1, MinYield: 0.5, MaxTakenRatio: 0.9}
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		return []string{fmt.Sprintf("name%d.com", call)}, nil
	}
	f.checker.availability = func(string) model.Availability { return model.AvailabilityTaken }
	o := f.start(t)

	brief := sunriseBrief()
	brief.TargetResults = 5
	brief.MaxBatches = 3
	id, err := o.CreateJob(context.Background(), brief)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	waitForState(t, o, id, model.JobStateAwaitingFollowup)

	followup, err := o.GetFollowup(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFollowup: %v", err)
	}
	if len(followup.Questions) != 3 {
		t.Errorf("questions = %+v", followup.Questions)
	}
	if !strings.Contains(followup.Reason, "low yield") {
		t.Errorf("reason = %q", followup.Reason)
	}

	err = o.Resume(context.Background(), id, map[string]string{
		model.QuestionVibe:     "warm and rustic",
		model.QuestionKeywords: "bread, oven",
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	job := waitForState(t, o, id, model.JobStateCompleted)
	if job.FollowupRounds != 1 || job.BatchesRun != 3 {
		t.Errorf("rounds = %d, batches = %d", job.FollowupRounds, job.BatchesRun)
	}
	if job.Brief.BusinessName != "Sunrise Bakery" || len(job.Brief.TLDs) != 2 {
		t.Errorf("resume changed the brief identity: %+v", job.Brief)
	}

	requests := f.backend.Requests()
	if len(requests) != 3 {
		t.Fatalf("generate requests = %d", len(requests))
	}
	second := requests[1]
	if second.Brief.Vibe != "warm and rustic" {
		t.Errorf("vibe = %q", second.Brief.Vibe)
	}
	if strings.Join(second.Brief.Keywords, ",") != "bread,oven" {
		t.Errorf("keywords = %v", second.Brief.Keywords)
	}
	if strings.Join(second.Exclusions, ",") != "name1.com" {
		t.Errorf("exclusions after resume = %v", second.Exclusions)
	}

	if err := o.Resume(context.Background(), id, nil); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("Resume on completed job = %v, want ErrInvalidState", err)
	}
	if _, err := o.GetFollowup(context.Background(), id); !errors.Is(err, model.ErrNotAwaiting) {
		t.Errorf("GetFollowup on completed job = %v, want ErrNotAwaiting", err)
	}
}

func TestOrchestrator_ResumeRequiresAwaiting(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		<-release
		return nil, nil
	}
	o := f.start(t)
	defer close(release)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitForState(t, o, id, model.JobStateRunning)

	if err := o.Resume(context.Background(), id, map[string]string{"vibe": "x"}); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("Resume while running = %v, want ErrInvalidState", err)
	}
}

func TestOrchestrator_ContentionSurfacesBusy(t *testing.T) {
	f := newFixture()
	store := &conflictStore{JobStore: f.store}
	f.store = store
	f.policy = policyFunc(func(job *model.Job) *model.Followup {
		if job.FollowupRounds > 0 {
			return nil
		}
		return &model.Followup{Questions: []model.Question{{ID: model.QuestionVibe, Text: "?"}}}
	})
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitForState(t, o, id, model.JobStateAwaitingFollowup)

	store.conflict.Store(true)
	if err := o.Cancel(context.Background(), id); !errors.Is(err, model.ErrBusy) {
		t.Fatalf("Cancel under contention = %v, want ErrBusy", err)
	}
	if got := store.rejected.Load(); got != 3 {
		t.Errorf("save attempts = %d, want 3", got)
	}

	store.conflict.Store(false)
	if err := o.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForState(t, o, id, model.JobStateCancelled)
}

func TestOrchestrator_Recover(t *testing.T) {
	f := newFixture()
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		return []string{fmt.Sprintf("sunrise%d.co", call)}, nil
	}

	brief := sunriseBrief()
	brief.Backend = "fake"
	job := model.NewJob("recovered-job", brief, "fake", time.Now())
	job.State = model.JobStateRunning
	if _, err := f.store.Save(context.Background(), job, 0); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	o := f.start(t)
	n, err := o.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Errorf("recovered = %d, want 1", n)
	}

	got := waitForState(t, o, "recovered-job", model.JobStateCompleted)
	if len(got.Results) != 2 {
		t.Errorf("results = %v", got.Results)
	}
}

func TestOrchestrator_CreateJobValidation(t *testing.T) {
	o := newFixture().start(t)

	if _, err := o.CreateJob(context.Background(), model.Brief{TLDs: []string{"com"}, TargetResults: 1, MaxBatches: 1}); !errors.Is(err, model.ErrInvalidBrief) {
		t.Errorf("missing name = %v", err)
	}

	brief := sunriseBrief()
	brief.Backend = "gpt-9"
	if _, err := o.CreateJob(context.Background(), brief); !errors.Is(err, model.ErrInvalidBrief) {
		t.Errorf("unknown backend = %v", err)
	}

	if _, err := o.GetStatus(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetStatus(missing) = %v", err)
	}
	if err := o.Cancel(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Cancel(missing) = %v", err)
	}
}

func TestOrchestrator_SubscribeStreamsUntilTerminal(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		if call == 1 {
			<-release
		}
		return []string{fmt.Sprintf("sunrise%d.co", call)}, nil
	}
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	sub, status, err := o.Subscribe(context.Background(), id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if status.JobID != id {
		t.Errorf("status = %+v", status)
	}
	close(release)

	var received []model.Event
	timeout := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				done = true
				break
			}
			received = append(received, ev)
		case <-timeout:
			t.Fatalf("stream did not end, got %+v", received)
		}
	}

	if len(received) == 0 {
		t.Fatal("no events received")
	}
	last := received[len(received)-1]
	if !last.Terminal() || last.State != model.JobStateCompleted {
		t.Errorf("last event = %+v", last)
	}
	batches := 0
	for i, ev := range received {
		if i > 0 && ev.Seq <= received[i-1].Seq {
			t.Errorf("events out of order: %d after %d", ev.Seq, received[i-1].Seq)
		}
		if ev.Type == model.EventBatchCompleted {
			batches++
		}
	}
	if batches != 2 {
		t.Errorf("batch events = %d, want 2", batches)
	}

	// a finished job yields a closed stream
	sub, _, err = o.Subscribe(context.Background(), id)
	if err != nil {
		t.Fatalf("Subscribe after completion: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("stream of a terminal job should be closed")
	}

	if _, _, err := o.Subscribe(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Subscribe(missing) = %v", err)
	}
}

func TestOrchestrator_NotifyFailureStillCompletes(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("relay down")
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		return []string{"sunrise.co", "sunrise.com"}, nil
	}
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitForState(t, o, id, model.JobStateCompleted)

	if len(f.notifier.Summaries()) != 1 {
		t.Errorf("notify attempts = %d", len(f.notifier.Summaries()))
	}
}

func TestOrchestrator_JobsAreIsolated(t *testing.T) {
	f := newFixture()
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		stem := strings.ToLower(strings.ReplaceAll(req.Brief.BusinessName, " ", ""))
		return []string{fmt.Sprintf("%s%d.com", stem, call)}, nil
	}
	o := f.start(t)

	briefA := sunriseBrief()
	briefA.BusinessName = "Alpha"
	briefB := sunriseBrief()
	briefB.BusinessName = "Beta"

	idA, err := o.CreateJob(context.Background(), briefA)
	if err != nil {
		t.Fatalf("CreateJob A: %v", err)
	}
	idB, err := o.CreateJob(context.Background(), briefB)
	if err != nil {
		t.Fatalf("CreateJob B: %v", err)
	}

	jobA := waitForState(t, o, idA, model.JobStateCompleted)
	jobB := waitForState(t, o, idB, model.JobStateCompleted)

	for name := range jobA.Candidates {
		if !strings.HasPrefix(name, "alpha") {
			t.Errorf("job A saw %s", name)
		}
	}
	for name := range jobB.Candidates {
		if !strings.HasPrefix(name, "beta") {
			t.Errorf("job B saw %s", name)
		}
	}
}

func TestOrchestrator_Shutdown(t *testing.T) {
	f := newFixture()
	f.backend.generate = func(ctx context.Context, call int, req provider.GenerateRequest) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	o := f.start(t)

	id, err := o.CreateJob(context.Background(), sunriseBrief())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitForState(t, o, id, model.JobStateRunning)
	if o.ActiveRunners() != 1 {
		t.Errorf("active runners = %d", o.ActiveRunners())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if o.ActiveRunners() != 0 {
		t.Errorf("active runners after shutdown = %d", o.ActiveRunners())
	}

	job, _ := o.GetJob(context.Background(), id)
	if job.State != model.JobStateRunning || job.BatchesRun != 0 {
		t.Errorf("job after shutdown = %s, %d batches", job.State, job.BatchesRun)
	}

	if _, err := o.CreateJob(context.Background(), sunriseBrief()); !errors.Is(err, model.ErrShuttingDown) {
		t.Errorf("CreateJob after shutdown = %v", err)
	}
}
