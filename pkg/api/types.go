// Package api defines the wire types of the domain search HTTP API.
package api

import "time"

// CreateJobRequest is the body of POST /api/jobs
type CreateJobRequest struct {
	BusinessName  string   `json:"business_name"`
	Vibe          string   `json:"vibe,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`
	TLDs          []string `json:"tlds"`
	TargetResults int      `json:"target_results"`
	MaxBatches    int      `json:"max_batches"`
	Backend       string   `json:"backend,omitempty"`
	NotifyEmail   string   `json:"notify_email,omitempty"`
}

// CreateJobResponse is returned when a job is accepted
type CreateJobResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// StatusResponse is the polling view of a job
type StatusResponse struct {
	JobID           string    `json:"job_id"`
	State           string    `json:"state"`
	BatchesRun      int       `json:"batches_run"`
	ResultCount     int       `json:"result_count"`
	CancelRequested bool      `json:"cancel_requested"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Result is one ranked domain
type Result struct {
	Domain       string   `json:"domain"`
	Score        *Score   `json:"score,omitempty"`
	Availability string   `json:"availability"`
	Pricing      *Pricing `json:"pricing,omitempty"`
	Batch        int      `json:"batch"`
}

// Score holds the evaluator signals, 0 to 10
type Score struct {
	Overall          float64 `json:"overall"`
	Pronounceability float64 `json:"pronounceability"`
	Memorability     float64 `json:"memorability"`
	BrandFit         float64 `json:"brand_fit"`
}

// Pricing is the registration price of a result
type Pricing struct {
	PriceCents    int64   `json:"price_cents"`
	PriceDollars  float64 `json:"price_dollars"`
	RenewalCents  int64   `json:"renewal_cents,omitempty"`
	Currency      string  `json:"currency"`
	Category      string  `json:"category"`
	IsBundled     bool    `json:"is_bundled"`
	IsRecommended bool    `json:"is_recommended"`
	IsPremium     bool    `json:"is_premium"`
}

// ResultsResponse is the body of GET /api/jobs/{id}/results
type ResultsResponse struct {
	JobID   string   `json:"job_id"`
	Results []Result `json:"results"`
}

// Question is a follow-up prompt
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// FollowupResponse is the body of GET /api/jobs/{id}/followup
type FollowupResponse struct {
	JobID     string     `json:"job_id"`
	Reason    string     `json:"reason,omitempty"`
	Questions []Question `json:"questions"`
	AskedAt   time.Time  `json:"asked_at"`
}

// ResumeRequest is the body of POST /api/jobs/{id}/resume, keyed by question id
type ResumeRequest struct {
	Answers map[string]string `json:"answers"`
}

// Event is one server-sent event payload
type Event struct {
	JobID       string    `json:"job_id"`
	Seq         int64     `json:"seq"`
	Type        string    `json:"type"`
	State       string    `json:"state"`
	BatchesRun  int       `json:"batches_run"`
	ResultCount int       `json:"result_count"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// HealthResponse is the body of GET /api/healthz
type HealthResponse struct {
	Status        string `json:"status"`
	ActiveRunners int    `json:"active_runners"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
