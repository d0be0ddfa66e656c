package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type healthResp struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var errs []string
	if h.Checker == nil {
		errs = append(errs, "connections not initialized")
	} else if err := h.Checker.CheckConnections(ctx); err != nil {
		// errors.Join separates with newlines
		errs = strings.Split(err.Error(), "\n")
	}

	resp := healthResp{OK: len(errs) == 0, Errors: errs}
	if !resp.OK {
		h.JSON(w, http.StatusInternalServerError, resp)
		return
	}
	h.JSON(w, http.StatusOK, resp)
}
