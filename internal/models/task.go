package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskData is the identifying part of a task. It is read from one
// spreadsheet row and never changes afterwards.
type TaskData struct {
	TaskDate        time.Time `json:"task_date"`
	MoveDate        time.Time `json:"move_date"`
	RegisterDate    time.Time `json:"register_date"`
	EflytCaseNumber string    `json:"eflyt_case_number"`
	EflytCategories string    `json:"eflyt_categories"`
	EflytStatus     string    `json:"eflyt_status"`
	CPR             string    `json:"cpr"`
	Name            string    `json:"name"`
}

// Task is a fine case as seen by the robot: the immutable data, the
// progress made so far and the queue element it was loaded from.
type Task struct {
	TaskData
	Progress

	QueueElementID string
	Reference      string
	Status         QueueStatus
}

// Encode splits the task into the data and message parts of a queue element.
func (t Task) Encode() (data, message []byte, err error) {
	data, err = json.Marshal(t.TaskData)
	if err != nil {
		return nil, nil, fmt.Errorf("encode task data: %w", err)
	}
	message, err = json.Marshal(t.Progress)
	if err != nil {
		return nil, nil, fmt.Errorf("encode task progress: %w", err)
	}
	return data, message, nil
}

// TaskFromElement decodes a queue element. An empty message means no
// milestone has been reached yet.
func TaskFromElement(qe QueueElement) (Task, error) {
	t := Task{
		QueueElementID: qe.ID,
		Reference:      qe.Reference,
		Status:         qe.Status,
	}
	if err := json.Unmarshal(qe.Data, &t.TaskData); err != nil {
		return Task{}, fmt.Errorf("queue element %s: decode data: %w", qe.ID, err)
	}
	if len(qe.Message) > 0 && string(qe.Message) != "null" {
		if err := json.Unmarshal(qe.Message, &t.Progress); err != nil {
			return Task{}, fmt.Errorf("queue element %s: decode message: %w", qe.ID, err)
		}
	}
	if err := t.Progress.Validate(); err != nil {
		return Task{}, fmt.Errorf("queue element %s: %w", qe.ID, err)
	}
	return t, nil
}

// Terminal reports whether the last milestone is set.
func (t Task) Terminal() bool { return t.Stage() == StageDone }
