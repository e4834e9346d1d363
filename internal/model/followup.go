package model

import "time"

// Follow-up question identifiers understood by the brief amendment
const (
	QuestionVibe        = "vibe"
	QuestionKeywords    = "keywords"
	QuestionConstraints = "constraints"
)

// Followup is a clarification round presented to the requester
type Followup struct {
	Questions []Question `json:"questions"`
	Reason    string     `json:"reason,omitempty"`
	AskedAt   time.Time  `json:"asked_at"`
}

// Question is a single clarification prompt
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
