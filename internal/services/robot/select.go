package robot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"movefines/internal/models"
	"movefines/internal/ports"
)

// Session is the state a run carries between iterations and retried
// passes. The first selected task fixes Reference; later selections are
// limited to it.
type Session struct {
	Reference string
	Started   time.Time
}

type Selector struct {
	Queue     ports.Queue
	QueueName string
	// Cooldown is how long an invoiced task waits before its invoice is fetched.
	Cooldown time.Duration
	// Journal is optional.
	Journal ports.StepJournal
}

// Select picks the next task to advance:
//  1. an in-progress task invoiced at least Cooldown ago,
//  2. an in-progress task not yet invoiced,
//  3. the oldest new task.
//
// It returns nil when nothing is ready. Elements whose stored task cannot
// be read are marked failed and passed over.
func (s Selector) Select(ctx context.Context, sess *Session, now time.Time) (*models.Task, error) {
	elems, err := s.Queue.ListElements(ctx, models.QueueFilter{
		QueueName: s.QueueName,
		Reference: sess.Reference,
		Status:    models.QueueStatusInProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("list in-progress: %w", err)
	}

	tasks := make([]models.Task, 0, len(elems))
	for _, qe := range elems {
		t, ok, err := s.decode(ctx, qe, now)
		if err != nil {
			return nil, err
		}
		if !ok || t.Terminal() {
			continue
		}
		tasks = append(tasks, t)
	}

	cutoff := now.Add(-s.Cooldown)
	for _, t := range tasks {
		if t.InvoiceSettledBefore(cutoff) {
			return s.pick(sess, t), nil
		}
	}
	for _, t := range tasks {
		if t.InvoiceDate == nil {
			return s.pick(sess, t), nil
		}
	}

	for {
		elems, err = s.Queue.ListElements(ctx, models.QueueFilter{
			QueueName: s.QueueName,
			Reference: sess.Reference,
			Status:    models.QueueStatusNew,
			Limit:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("list new: %w", err)
		}
		if len(elems) == 0 {
			return nil, nil
		}
		t, ok, err := s.decode(ctx, elems[0], now)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.pick(sess, t), nil
		}
	}
}

// decode reads the task of qe. An unreadable element is set to FAILED so it
// no longer blocks its reference.
func (s Selector) decode(ctx context.Context, qe models.QueueElement, now time.Time) (models.Task, bool, error) {
	t, err := models.TaskFromElement(qe)
	if err == nil {
		return t, true, nil
	}
	log.Printf("[ROBOT][ERR] element=%s reference=%q unreadable, marking failed: %v", qe.ID, qe.Reference, err)
	if serr := s.Queue.SetStatus(ctx, qe.ID, models.QueueStatusFailed, nil); serr != nil {
		return models.Task{}, false, fmt.Errorf("mark element %s failed: %w", qe.ID, errors.Join(err, serr))
	}
	if s.Journal != nil {
		s.Journal.Record(ctx, models.StepEntry{
			QueueElementID: qe.ID,
			Reference:      qe.Reference,
			Status:         models.StepFailed,
			Errors:         err.Error(),
			StartedAt:      now,
		})
	}
	return models.Task{}, false, nil
}

func (s Selector) pick(sess *Session, t models.Task) *models.Task {
	if sess.Reference == "" {
		sess.Reference = t.Reference
	}
	return &t
}
