package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/mail"

	"movefines/internal/services/intake"
)

const maxUpload = 32 << 20

// Intake accepts multipart/form-data with `file` and `receiver` fields and
// queues one task per spreadsheet row, bypassing the inbox.
func (h *Handlers) Intake(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		h.JSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "use POST"})
		return
	}

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		h.Logger.Printf("[INTAKE][ERR] parse multipart: %v", err)
		h.JSON(w, http.StatusBadRequest, map[string]any{"error": "bad multipart: " + err.Error()})
		return
	}

	receiver := r.FormValue("receiver")
	addr, err := mail.ParseAddress(receiver)
	if err != nil {
		h.JSON(w, http.StatusBadRequest, map[string]any{"error": "receiver must be an email address"})
		return
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		h.Logger.Printf("[INTAKE][ERR] missing file: %v", err)
		h.JSON(w, http.StatusBadRequest, map[string]any{"error": "file is required"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUpload))
	if err != nil {
		h.JSON(w, http.StatusBadRequest, map[string]any{"error": "read file: " + err.Error()})
		return
	}

	ref, n, err := h.Requests.Enqueue(r.Context(), addr.Address, content)
	switch {
	case errors.Is(err, intake.ErrInvalidSheet), errors.Is(err, intake.ErrEmptySheet):
		h.JSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	case err != nil:
		h.Logger.Printf("[INTAKE][ERR] enqueue: %v", err)
		h.JSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	h.JSON(w, http.StatusCreated, map[string]any{"reference": ref, "tasks": n})
}
