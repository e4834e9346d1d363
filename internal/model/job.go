package model

import (
	"encoding/json"
	"time"
)

// JobState represents a lifecycle state of a search job
type JobState string

const (
	JobStateCreated          JobState = "created"
	JobStateRunning          JobState = "running"
	JobStateAwaitingFollowup JobState = "awaiting_followup"
	JobStateFinalizing       JobState = "finalizing"
	JobStateCompleted        JobState = "completed"
	JobStateCancelled        JobState = "cancelled"
	JobStateFailed           JobState = "failed"
)

// IsTerminal returns true for states a job never leaves
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateCancelled, JobStateFailed:
		return true
	default:
		return false
	}
}

// Job is the unit of work: one domain discovery search
type Job struct {
	ID              string                `json:"id"`
	State           JobState              `json:"state"`
	Brief           Brief                 `json:"brief"`
	Backend         string                `json:"backend"` // resolved once at creation, never switched
	BatchesRun      int                   `json:"batches_run"`
	Candidates      map[string]*Candidate `json:"candidates"`
	Results         []string              `json:"results"`
	PendingFollowup *Followup             `json:"pending_followup,omitempty"`
	FollowupRounds  int                   `json:"followup_rounds"`
	CancelRequested bool                  `json:"cancel_requested"`
	FailureReason   string                `json:"failure_reason,omitempty"`
	Batches         []BatchNote           `json:"batches,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// BatchNote records what one batch produced, including degraded steps
type BatchNote struct {
	Index     int       `json:"index"`
	Generated int       `json:"generated"`
	Scored    int       `json:"scored"`
	Checked   int       `json:"checked"`
	Available int       `json:"available"`
	Priced    int       `json:"priced"`
	Degraded  bool      `json:"degraded"`
	Notes     []string  `json:"notes,omitempty"`
	At        time.Time `json:"at"`
}

// Status is the compact view returned to pollers
type Status struct {
	JobID           string    `json:"job_id"`
	State           JobState  `json:"state"`
	BatchesRun      int       `json:"batches_run"`
	ResultCount     int       `json:"result_count"`
	CancelRequested bool      `json:"cancel_requested"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewJob creates a job in the created state
func NewJob(id string, brief Brief, backend string, now time.Time) *Job {
	return &Job{
		ID:         id,
		State:      JobStateCreated,
		Brief:      brief,
		Backend:    backend,
		Candidates: make(map[string]*Candidate),
		Results:    []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Status returns the status view of the job
func (j *Job) Status() Status {
	return Status{
		JobID:           j.ID,
		State:           j.State,
		BatchesRun:      j.BatchesRun,
		ResultCount:     len(j.Results),
		CancelRequested: j.CancelRequested,
		FailureReason:   j.FailureReason,
		UpdatedAt:       j.UpdatedAt,
	}
}

// Exclusions returns every candidate name seen so far
func (j *Job) Exclusions() []string {
	names := make([]string, 0, len(j.Candidates))
	for name := range j.Candidates {
		names = append(names, name)
	}
	return names
}

// ResultCandidates returns the result candidates in result order
func (j *Job) ResultCandidates() []Candidate {
	out := make([]Candidate, 0, len(j.Results))
	for _, name := range j.Results {
		if c, ok := j.Candidates[name]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// TargetReached reports whether enough results were collected
func (j *Job) TargetReached() bool {
	return len(j.Results) >= j.Brief.TargetResults
}

// BatchesExhausted reports whether the batch budget is spent
func (j *Job) BatchesExhausted() bool {
	return j.BatchesRun >= j.Brief.MaxBatches
}

// ShouldStop evaluates the stopping condition checked after each batch
func (j *Job) ShouldStop() bool {
	return j.TargetReached() || j.BatchesExhausted() || j.CancelRequested
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	data, err := json.Marshal(j)
	if err != nil {
		// Job only holds JSON-safe values
		panic(err)
	}
	var out Job
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	if out.Candidates == nil {
		out.Candidates = make(map[string]*Candidate)
	}
	if out.Results == nil {
		out.Results = []string{}
	}
	return &out
}
