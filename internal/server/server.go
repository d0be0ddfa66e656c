package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"movefines/internal/handlers"
	auth "movefines/internal/transport/auth"
)

const (
	AbilityRun    = "robot:run"
	AbilityIntake = "robot:intake"
)

type Server struct {
	httpServer *http.Server
}

// NewServer wires the routes. Without a token repo the write routes are
// left unauthenticated.
func NewServer(port string, h *handlers.Handlers, tokens auth.TokenRepo) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%s", port),
			Handler:      Routes(h, tokens),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func Routes(h *handlers.Handlers, tokens auth.TokenRepo) http.Handler {
	mux := http.NewServeMux()
	if h == nil {
		return mux
	}

	protect := func(ability string, fn http.HandlerFunc) http.Handler {
		if tokens == nil {
			return fn
		}
		return auth.BearerMiddleware(tokens, ability)(fn)
	}

	mux.HandleFunc("/health", h.Health)
	mux.Handle("/run", protect(AbilityRun, h.Run))
	mux.Handle("/intake", protect(AbilityIntake, h.Intake))
	mux.HandleFunc("/status", h.Status)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
