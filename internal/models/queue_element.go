package models

import (
	"encoding/json"
	"time"
)

type QueueStatus string

const (
	QueueStatusNew        QueueStatus = "NEW"
	QueueStatusInProgress QueueStatus = "IN_PROGRESS"
	QueueStatusDone       QueueStatus = "DONE"
	QueueStatusFailed     QueueStatus = "FAILED"
)

// QueueElement is one persisted unit of work. Data is written once at
// creation, Message is rewritten after every step.
type QueueElement struct {
	ID        string          `json:"id"`
	QueueName string          `json:"queue_name"`
	Reference string          `json:"reference"`
	Status    QueueStatus     `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   json.RawMessage `json:"message,omitempty"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
}

type QueueFilter struct {
	QueueName string
	Reference string
	Status    QueueStatus
	Limit     int
}
