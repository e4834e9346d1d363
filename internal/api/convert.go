package api

import (
	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/pkg/api"
)

func briefFromRequest(req api.CreateJobRequest) model.Brief {
	return model.Brief{
		BusinessName:  req.BusinessName,
		Vibe:          req.Vibe,
		Keywords:      req.Keywords,
		Constraints:   req.Constraints,
		TLDs:          req.TLDs,
		TargetResults: req.TargetResults,
		MaxBatches:    req.MaxBatches,
		Backend:       req.Backend,
		NotifyEmail:   req.NotifyEmail,
	}
}

func toStatus(s *model.Status) api.StatusResponse {
	return api.StatusResponse{
		JobID:           s.JobID,
		State:           string(s.State),
		BatchesRun:      s.BatchesRun,
		ResultCount:     s.ResultCount,
		CancelRequested: s.CancelRequested,
		FailureReason:   s.FailureReason,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toResult(c model.Candidate) api.Result {
	out := api.Result{
		Domain:       c.Name,
		Availability: string(c.Availability),
		Batch:        c.BatchIndex,
	}
	if c.Score != nil {
		out.Score = &api.Score{
			Overall:          c.Score.Overall,
			Pronounceability: c.Score.Pronounceability,
			Memorability:     c.Score.Memorability,
			BrandFit:         c.Score.BrandFit,
		}
	}
	if c.Price != nil {
		out.Pricing = &api.Pricing{
			PriceCents:    c.Price.Cents,
			PriceDollars:  c.Price.Dollars(),
			RenewalCents:  c.Price.RenewalCents,
			Currency:      c.Price.Currency,
			Category:      c.Price.Category,
			IsBundled:     c.Price.Category == model.PriceCategoryBundled,
			IsRecommended: c.Price.Category == model.PriceCategoryRecommended,
			IsPremium:     c.Price.Category == model.PriceCategoryPremium,
		}
	}
	return out
}

func toFollowup(jobID string, f *model.Followup) api.FollowupResponse {
	questions := make([]api.Question, 0, len(f.Questions))
	for _, q := range f.Questions {
		questions = append(questions, api.Question{ID: q.ID, Text: q.Text})
	}
	return api.FollowupResponse{
		JobID:     jobID,
		Reason:    f.Reason,
		Questions: questions,
		AskedAt:   f.AskedAt,
	}
}

func toEvent(e model.Event) api.Event {
	return api.Event{
		JobID:       e.JobID,
		Seq:         e.Seq,
		Type:        string(e.Type),
		State:       string(e.State),
		BatchesRun:  e.BatchesRun,
		ResultCount: e.ResultCount,
		Message:     e.Message,
		At:          e.At,
	}
}
