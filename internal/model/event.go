package model

import "time"

// EventType classifies state-change events
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventBatchCompleted    EventType = "batch_completed"
	EventFollowupRequested EventType = "followup_requested"
	EventCancelRequested   EventType = "cancel_requested"
)

// Event is published to live subscribers of a job
type Event struct {
	JobID       string    `json:"job_id"`
	Seq         int64     `json:"seq"`
	Type        EventType `json:"type"`
	State       JobState  `json:"state"`
	BatchesRun  int       `json:"batches_run"`
	ResultCount int       `json:"result_count"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// Terminal reports whether the event announces a terminal state
func (e Event) Terminal() bool {
	return e.Type == EventStateChanged && e.State.IsTerminal()
}
