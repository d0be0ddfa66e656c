package handlers

import (
	"context"
	"net/http"
	"time"

	auth "movefines/internal/transport/auth"
)

// Run starts one robot pass in the background. Only one pass runs at a time.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "use POST"})
		return
	}
	if h.Runner == nil {
		h.JSON(w, http.StatusServiceUnavailable, map[string]string{"error": "robot not configured"})
		return
	}
	if !h.running.CompareAndSwap(false, true) {
		h.JSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}

	by, _ := auth.GetTokenName(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.running.Store(false)

		start := time.Now()
		base := h.BaseContext
		if base == nil {
			base = context.Background()
		}
		ctx, cancel := context.WithTimeout(base, h.RunTimeout)
		defer cancel()

		res, err := h.Runner.Run(ctx)
		if err != nil {
			h.Logger.Printf("[RUN][ERR][BG] by=%q err=%v took=%s", by, err, time.Since(start))
			return
		}
		h.Logger.Printf("[RUN][OK][BG] by=%q iterations=%d stop=%s took=%s", by, res.Iterations, res.Stop, time.Since(start))
	}()

	h.JSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}
