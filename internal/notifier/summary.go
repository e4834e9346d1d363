package notifier

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirychukyurii/domain-search/internal/model"
)

// Summary is the terminal-state report sent to a destination
type Summary struct {
	JobID        string          `json:"job_id"`
	BusinessName string          `json:"business_name"`
	State        model.JobState  `json:"state"`
	Reason       string          `json:"reason,omitempty"`
	BatchesRun   int             `json:"batches_run"`
	ResultCount  int             `json:"result_count"`
	Top          []SummaryResult `json:"top"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// SummaryResult is one result line in a summary
type SummaryResult struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score,omitempty"`
	Price    string  `json:"price,omitempty"`
	Category string  `json:"category,omitempty"`
}

var titleCaser = cases.Title(language.English)

// BuildSummary builds a summary from a terminal job, keeping at most top results
func BuildSummary(job *model.Job, top int) Summary {
	s := Summary{
		JobID:        job.ID,
		BusinessName: titleCaser.String(strings.TrimSpace(job.Brief.BusinessName)),
		State:        job.State,
		Reason:       job.FailureReason,
		BatchesRun:   job.BatchesRun,
		ResultCount:  len(job.Results),
		FinishedAt:   job.UpdatedAt,
	}

	for _, c := range job.ResultCandidates() {
		if top > 0 && len(s.Top) >= top {
			break
		}
		line := SummaryResult{Name: c.Name}
		if c.Score != nil {
			line.Score = c.Score.Overall
		}
		if c.Price != nil {
			line.Price = fmt.Sprintf("%.2f %s", c.Price.Dollars(), c.Price.Currency)
			line.Category = c.Price.Category
		}
		s.Top = append(s.Top, line)
	}

	return s
}

// Subject returns a one-line subject for the summary
func (s Summary) Subject() string {
	name := s.BusinessName
	if name == "" {
		name = s.JobID
	}
	switch s.State {
	case model.JobStateCompleted:
		return fmt.Sprintf("%s: %d domain ideas ready", name, s.ResultCount)
	case model.JobStateCancelled:
		return fmt.Sprintf("%s: search cancelled", name)
	default:
		return fmt.Sprintf("%s: search %s", name, s.State)
	}
}

// Text renders the summary as a plain-text message body
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", s.Subject())
	fmt.Fprintf(&b, "Job: %s\nState: %s\nBatches: %d\n", s.JobID, s.State, s.BatchesRun)
	if s.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", s.Reason)
	}
	if len(s.Top) > 0 {
		b.WriteString("\nTop results:\n")
		for i, r := range s.Top {
			fmt.Fprintf(&b, "%2d. %s", i+1, r.Name)
			if r.Price != "" {
				fmt.Fprintf(&b, "  %s (%s)", r.Price, r.Category)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
