package models

import "time"

type StepStatus string

const (
	StepDone   StepStatus = "done"
	StepFailed StepStatus = "failed"
)

// StepEntry is one attempt at a milestone, kept for auditing.
type StepEntry struct {
	QueueElementID string
	Reference      string
	Milestone      Milestone
	Status         StepStatus
	Errors         string
	StartedAt      time.Time
	Duration       time.Duration
}
