package robot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"movefines/internal/ports"
)

var ErrTooManyErrors = errors.New("robot gave up after repeated errors")

// Intake fills the queue from the inbox before a pass.
type Intake interface {
	CheckQueueAndEmail(ctx context.Context) error
}

// Reporter sends the status of a reference to its requester.
type Reporter interface {
	Report(ctx context.Context, reference string) error
}

type Runner struct {
	Robot    *Robot
	Intake   Intake
	Reporter Reporter

	Mailer     ports.Mailer
	ErrorEmail string
	MaxRetries int
}

// Run makes up to MaxRetries passes. Each pass checks the inbox, runs the
// robot and reports on the session reference. The session survives
// failed passes so the retry continues the same request.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	attempts := r.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	sess := &Session{}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := r.pass(ctx, sess)
		if err == nil {
			log.Printf("[ROBOT][DONE] attempt=%d iterations=%d stop=%s reference=%q", attempt, res.Iterations, res.Stop, sess.Reference)
			return res, nil
		}
		if ctx.Err() != nil {
			return res, err
		}
		lastErr = err
		log.Printf("[ROBOT][ERR] attempt %d/%d: %v", attempt, attempts, err)
	}

	r.sendErrorMail(ctx, sess, lastErr)
	return Result{}, fmt.Errorf("%w (%d attempts): %w", ErrTooManyErrors, attempts, lastErr)
}

func (r *Runner) pass(ctx context.Context, sess *Session) (Result, error) {
	if r.Intake != nil {
		if err := r.Intake.CheckQueueAndEmail(ctx); err != nil {
			return Result{}, fmt.Errorf("intake: %w", err)
		}
	}
	res, err := r.Robot.Run(ctx, sess)
	if err != nil {
		return res, err
	}
	if r.Reporter != nil && sess.Reference != "" {
		if err := r.Reporter.Report(ctx, sess.Reference); err != nil {
			return res, fmt.Errorf("report: %w", err)
		}
	}
	return res, nil
}

func (r *Runner) sendErrorMail(ctx context.Context, sess *Session, cause error) {
	if r.Mailer == nil || r.ErrorEmail == "" {
		return
	}
	body := fmt.Sprintf("Robotten til folkeregisterbøder stoppede efter gentagne fejl.\n\nReference: %s\nSidste fejl: %v\n", sess.Reference, cause)
	err := r.Mailer.Send(context.WithoutCancel(ctx), ports.OutgoingMail{
		To:      r.ErrorEmail,
		Subject: "Fejl i robot: Folkeregisterbøder",
		Body:    body,
	})
	if err != nil {
		log.Printf("[ROBOT][ERR] error mail: %v", err)
	}
}
