// Package robot advances fine tasks through their milestones, one step
// per iteration, until the queue is drained or the run budget is spent.
package robot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"movefines/internal/models"
	"movefines/internal/ports"
	"movefines/internal/utils"
)

var (
	ErrTerminal   = errors.New("task has no next milestone")
	ErrNoStep     = errors.New("no step for milestone")
	ErrStepFailed = errors.New("step failed")
)

type StopReason string

const (
	StopQueueEmpty StopReason = "queue_empty"
	StopLoopLimit  StopReason = "loop_limit"
	StopTimeBudget StopReason = "time_budget"
)

type Options struct {
	QueueName       string
	MaxIterations   int
	TimeBudget      time.Duration
	InvoiceCooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 1000
	}
	if o.TimeBudget <= 0 {
		o.TimeBudget = 60 * time.Minute
	}
	if o.InvoiceCooldown <= 0 {
		o.InvoiceCooldown = 10 * time.Minute
	}
	return o
}

type Result struct {
	Iterations int
	Stop       StopReason
}

type Robot struct {
	queue   ports.Queue
	journal ports.StepJournal
	steps   Steps
	opts    Options
	sel     Selector
	now     func() time.Time
}

// New returns a robot. journal may be nil.
func New(q ports.Queue, journal ports.StepJournal, steps Steps, opts Options) *Robot {
	opts = opts.withDefaults()
	return &Robot{
		queue:   q,
		journal: journal,
		steps:   steps,
		opts:    opts,
		sel:     Selector{Queue: q, QueueName: opts.QueueName, Cooldown: opts.InvoiceCooldown, Journal: journal},
		now:     time.Now,
	}
}

// Advance performs the next step of t and persists the result. On error
// the stored task is left as it was.
func (r *Robot) Advance(ctx context.Context, t models.Task) (models.Task, error) {
	next, ok := t.Stage().Next()
	if !ok {
		return t, fmt.Errorf("%w: %s", ErrTerminal, t.QueueElementID)
	}
	step, ok := r.steps[next]
	if !ok || step == nil {
		return t, fmt.Errorf("%w: %s", ErrNoStep, next)
	}

	started := r.now()
	log.Printf("[STEP][START] element=%s milestone=%s cpr=%s", t.QueueElementID, next, utils.MaskCPR(t.CPR))

	delta, err := step(ctx, t)
	if err == nil {
		t, err = r.persist(ctx, t, next, delta)
	}
	if err != nil {
		r.record(ctx, t, next, started, err)
		log.Printf("[STEP][ERR] element=%s milestone=%s: %v", t.QueueElementID, next, err)
		return t, fmt.Errorf("%w: %s on %s: %w", ErrStepFailed, next, t.QueueElementID, err)
	}

	r.record(ctx, t, next, started, nil)
	log.Printf("[STEP][DONE] element=%s milestone=%s stage=%s status=%s duration=%s", t.QueueElementID, next, t.Stage(), t.Status, r.now().Sub(started))
	return t, nil
}

func (r *Robot) persist(ctx context.Context, t models.Task, m models.Milestone, delta models.Progress) (models.Task, error) {
	progress, err := t.Progress.Apply(m, delta)
	if err != nil {
		return t, err
	}
	updated := t
	updated.Progress = progress
	updated.Status = models.QueueStatusInProgress
	if updated.Terminal() {
		updated.Status = models.QueueStatusDone
	}

	_, message, err := updated.Encode()
	if err != nil {
		return t, err
	}
	if err := r.queue.SetStatus(ctx, t.QueueElementID, updated.Status, message); err != nil {
		return t, fmt.Errorf("persist progress: %w", err)
	}
	return updated, nil
}

func (r *Robot) record(ctx context.Context, t models.Task, m models.Milestone, started time.Time, stepErr error) {
	if r.journal == nil {
		return
	}
	e := models.StepEntry{
		QueueElementID: t.QueueElementID,
		Reference:      t.Reference,
		Milestone:      m,
		Status:         models.StepDone,
		StartedAt:      started,
		Duration:       r.now().Sub(started),
	}
	if stepErr != nil {
		e.Status = models.StepFailed
		e.Errors = stepErr.Error()
	}
	r.journal.Record(ctx, e)
}

// Run advances tasks one step at a time until nothing is ready, the
// iteration cap is hit or the time budget measured from sess.Started is
// spent. A failed step ends the run with its error, and so does a
// cancelled ctx once the current step is persisted.
func (r *Robot) Run(ctx context.Context, sess *Session) (Result, error) {
	if sess.Started.IsZero() {
		sess.Started = r.now()
	}
	var res Result
	log.Printf("[ROBOT][START] queue=%q reference=%q max_iterations=%d budget=%s", r.opts.QueueName, sess.Reference, r.opts.MaxIterations, r.opts.TimeBudget)

	for i := 0; i < r.opts.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if r.now().Sub(sess.Started) >= r.opts.TimeBudget {
			res.Stop = StopTimeBudget
			log.Printf("[ROBOT] time budget of %s spent after %d iterations", r.opts.TimeBudget, res.Iterations)
			return res, nil
		}

		task, err := r.sel.Select(ctx, sess, r.now())
		if err != nil {
			return res, fmt.Errorf("select task: %w", err)
		}
		if task == nil {
			res.Stop = StopQueueEmpty
			log.Printf("[ROBOT] no more tasks ready, iterations=%d", res.Iterations)
			return res, nil
		}

		res.Iterations++
		// a started step always runs to its persist; cancellation takes
		// effect before the next one
		if _, err := r.Advance(context.WithoutCancel(ctx), *task); err != nil {
			return res, err
		}
	}

	res.Stop = StopLoopLimit
	log.Printf("[ROBOT] loop limit %d reached", r.opts.MaxIterations)
	return res, nil
}
