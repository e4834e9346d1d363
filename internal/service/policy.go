package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// FollowupPolicy decides whether a running job should pause for clarification
type FollowupPolicy interface {
	// Evaluate returns a follow-up to ask, or nil to keep running
	Evaluate(job *model.Job) *model.Followup
}

// NoFollowup never pauses a job
type NoFollowup struct{}

func (NoFollowup) Evaluate(*model.Job) *model.Followup { return nil }

// ThresholdPolicy pauses a job that is short of its target after a number of
// batches and shows at least one sign of a weak brief
type ThresholdPolicy struct {
	AfterBatches  int
	MaxRounds     int
	MinYield      float64
	MaxTakenRatio float64
	MinMeanScore  float64
}

// NewFollowupPolicy builds the policy described by cfg
func NewFollowupPolicy(cfg config.FollowupConfig) FollowupPolicy {
	if !cfg.Enabled {
		return NoFollowup{}
	}
	return ThresholdPolicy{
		AfterBatches:  cfg.AfterBatches,
		MaxRounds:     cfg.MaxRounds,
		MinYield:      cfg.MinYield,
		MaxTakenRatio: cfg.MaxTakenRatio,
		MinMeanScore:  cfg.MinMeanScore,
	}
}

// Evaluate fires once per AfterBatches batches, at most MaxRounds times
func (p ThresholdPolicy) Evaluate(job *model.Job) *model.Followup {
	if p.AfterBatches <= 0 || job.FollowupRounds >= p.MaxRounds || job.TargetReached() {
		return nil
	}
	if job.BatchesRun < p.AfterBatches*(job.FollowupRounds+1) {
		return nil
	}

	signals := p.signals(job)
	if len(signals) == 0 {
		return nil
	}

	return &model.Followup{
		Questions: []model.Question{
			{ID: model.QuestionVibe, Text: fmt.Sprintf("How should %s feel? Describe the tone or style you want.", job.Brief.BusinessName)},
			{ID: model.QuestionKeywords, Text: "Which words or themes should the names draw from? Separate them with commas."},
			{ID: model.QuestionConstraints, Text: "Anything to avoid or require (length, spelling, hyphens)?"},
		},
		Reason:  strings.Join(signals, "; "),
		AskedAt: time.Now().UTC(),
	}
}

func (p ThresholdPolicy) signals(job *model.Job) []string {
	var (
		checked, available, taken, scored int
		scoreSum                          float64
	)
	for _, c := range job.Candidates {
		switch c.Availability {
		case model.AvailabilityAvailable:
			checked++
			available++
		case model.AvailabilityTaken:
			checked++
			taken++
		}
		if c.Score != nil {
			scored++
			scoreSum += c.Score.Overall
		}
	}

	var signals []string
	if checked > 0 {
		if yield := float64(available) / float64(checked); yield < p.MinYield {
			signals = append(signals, fmt.Sprintf("low yield %.2f", yield))
		}
		if ratio := float64(taken) / float64(checked); p.MaxTakenRatio > 0 && ratio > p.MaxTakenRatio {
			signals = append(signals, fmt.Sprintf("taken ratio %.2f", ratio))
		}
	}
	if scored > 0 {
		if mean := scoreSum / float64(scored); mean < p.MinMeanScore {
			signals = append(signals, fmt.Sprintf("mean score %.1f", mean))
		}
	}
	return signals
}

// AmendBrief applies follow-up answers. The vibe answer replaces the vibe,
// keywords are appended, anything else becomes a constraint. The business
// name and TLD set never change.
func AmendBrief(brief model.Brief, answers map[string]string) model.Brief {
	out := brief
	out.Keywords = append([]string(nil), brief.Keywords...)
	out.Constraints = append([]string(nil), brief.Constraints...)

	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		answer := strings.TrimSpace(answers[id])
		if answer == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(id)) {
		case model.QuestionVibe:
			out.Vibe = answer
		case model.QuestionKeywords:
			for _, kw := range strings.Split(answer, ",") {
				out.Keywords = append(out.Keywords, strings.TrimSpace(kw))
			}
		default:
			out.Constraints = append(out.Constraints, answer)
		}
	}

	out.BusinessName = brief.BusinessName
	out.TLDs = brief.TLDs
	out.Normalize()
	return out
}
