package service

import (
	"strings"
	"testing"
	"time"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

func jobWith(batches, rounds int, candidates ...*model.Candidate) *model.Job {
	job := model.NewJob("j", model.Brief{BusinessName: "Sunrise Bakery", TLDs: []string{"com"}, TargetResults: 5, MaxBatches: 10}, "fake", time.Now())
	job.State = model.JobStateRunning
	job.BatchesRun = batches
	job.FollowupRounds = rounds
	for _, c := range candidates {
		job.Candidates[c.Name] = c
	}
	return job
}

func candidate(name string, availability model.Availability, score float64) *model.Candidate {
	return &model.Candidate{Name: name, Availability: availability, Score: &model.Score{Overall: score}}
}

func TestThresholdPolicy(t *testing.T) {
	policy := ThresholdPolicy{AfterBatches: 2, MaxRounds: 1, MinYield: 0.2, MaxTakenRatio: 0.8, MinMeanScore: 5}

	taken := []*model.Candidate{
		candidate("a.com", model.AvailabilityTaken, 7),
		candidate("b.com", model.AvailabilityTaken, 7),
		candidate("c.com", model.AvailabilityTaken, 7),
		candidate("d.com", model.AvailabilityTaken, 7),
		candidate("e.com", model.AvailabilityTaken, 7),
	}
	healthy := []*model.Candidate{
		candidate("a.com", model.AvailabilityAvailable, 8),
		candidate("b.com", model.AvailabilityTaken, 8),
	}
	lowScore := []*model.Candidate{
		candidate("a.com", model.AvailabilityAvailable, 2),
		candidate("b.com", model.AvailabilityAvailable, 3),
	}
	errorsOnly := []*model.Candidate{
		{Name: "a.com", Availability: model.AvailabilityError},
	}

	tests := []struct {
		name       string
		job        *model.Job
		wantFire   bool
		wantReason string
	}{
		{"too early", jobWith(1, 0, taken...), false, ""},
		{"low yield", jobWith(2, 0, taken...), true, "low yield"},
		{"taken ratio", jobWith(2, 0, taken...), true, "taken ratio"},
		{"healthy brief", jobWith(2, 0, healthy...), false, ""},
		{"low mean score", jobWith(2, 0, lowScore...), true, "mean score"},
		{"rounds spent", jobWith(4, 1, taken...), false, ""},
		{"no outcomes to judge", jobWith(2, 0, errorsOnly...), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			followup := policy.Evaluate(tt.job)
			if (followup != nil) != tt.wantFire {
				t.Fatalf("fired = %v, want %v", followup != nil, tt.wantFire)
			}
			if followup == nil {
				return
			}
			if !strings.Contains(followup.Reason, tt.wantReason) {
				t.Errorf("reason = %q, want %q", followup.Reason, tt.wantReason)
			}
			if len(followup.Questions) != 3 || followup.Questions[0].ID != model.QuestionVibe {
				t.Errorf("questions = %+v", followup.Questions)
			}
		})
	}
}

func TestThresholdPolicy_TargetReached(t *testing.T) {
	policy := ThresholdPolicy{AfterBatches: 1, MaxRounds: 3, MinYield: 0.9}
	job := jobWith(3, 0, candidate("a.com", model.AvailabilityTaken, 9))
	job.Brief.TargetResults = 1
	job.Results = []string{"x.com"}

	if policy.Evaluate(job) != nil {
		t.Error("policy must not fire once the target is reached")
	}
}

func TestThresholdPolicy_SecondRoundWaitsForMoreBatches(t *testing.T) {
	policy := ThresholdPolicy{AfterBatches: 2, MaxRounds: 2, MinYield: 0.5}
	cands := []*model.Candidate{candidate("a.com", model.AvailabilityTaken, 9)}

	if policy.Evaluate(jobWith(3, 1, cands...)) != nil {
		t.Error("second round fired after one extra batch")
	}
	if policy.Evaluate(jobWith(4, 1, cands...)) == nil {
		t.Error("second round did not fire after two extra batches")
	}
}

func TestNewFollowupPolicy_Disabled(t *testing.T) {
	if _, ok := NewFollowupPolicy(config.FollowupConfig{Enabled: false}).(NoFollowup); !ok {
		t.Error("disabled config should yield NoFollowup")
	}
	if _, ok := NewFollowupPolicy(config.FollowupConfig{Enabled: true, AfterBatches: 1}).(ThresholdPolicy); !ok {
		t.Error("enabled config should yield ThresholdPolicy")
	}
}

func TestAmendBrief(t *testing.T) {
	brief := model.Brief{
		BusinessName: "Sunrise Bakery",
		Vibe:         "cozy",
		Keywords:     []string{"bread"},
		TLDs:         []string{"com", "co"},
	}

	got := AmendBrief(brief, map[string]string{
		"vibe":        "bold and modern",
		"keywords":    "oven, Bread, crust",
		"constraints": "no hyphens",
		"length":      "under 12 letters",
		"empty":       "   ",
	})

	if got.Vibe != "bold and modern" {
		t.Errorf("vibe = %q", got.Vibe)
	}
	if strings.Join(got.Keywords, ",") != "bread,oven,crust" {
		t.Errorf("keywords = %v", got.Keywords)
	}
	if strings.Join(got.Constraints, "|") != "no hyphens|under 12 letters" {
		t.Errorf("constraints = %v", got.Constraints)
	}
	if got.BusinessName != brief.BusinessName || strings.Join(got.TLDs, ",") != "com,co" {
		t.Errorf("identity changed: %+v", got)
	}
	if len(brief.Keywords) != 1 {
		t.Errorf("original brief mutated: %v", brief.Keywords)
	}
}
