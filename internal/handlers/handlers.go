package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"movefines/internal/models"
	"movefines/internal/services/robot"
)

type Checker interface {
	CheckConnections(ctx context.Context) error
}

type RobotRunner interface {
	Run(ctx context.Context) (robot.Result, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, receiver string, xlsx []byte) (string, int, error)
	Tasks(ctx context.Context, reference string) ([]models.Task, error)
}

type Handlers struct {
	Checker  Checker
	Runner   RobotRunner
	Requests Enqueuer

	// BaseContext is the server lifetime; cancelling it stops a background
	// pass between steps.
	BaseContext context.Context
	// RunTimeout bounds one background pass started by /run.
	RunTimeout time.Duration

	Logger *log.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

func New(checker Checker, runner RobotRunner, intake Enqueuer) *Handlers {
	return &Handlers{
		Checker:     checker,
		Runner:      runner,
		Requests:    intake,
		BaseContext: context.Background(),
		RunTimeout:  4 * time.Hour,
		Logger:      log.Default(),
	}
}

// Wait blocks until a background pass started by /run has returned.
func (h *Handlers) Wait() { h.wg.Wait() }

func (h *Handlers) JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
