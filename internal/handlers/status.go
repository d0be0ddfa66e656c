package handlers

import (
	"net/http"
	"time"

	"movefines/internal/utils"
)

type taskView struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	EflytCaseNumber string     `json:"eflyt_case_number"`
	CPR             string     `json:"cpr"`
	MoveDate        time.Time  `json:"move_date"`
	CaseNumber      *string    `json:"case_number,omitempty"`
	LetterDate      *time.Time `json:"letter_date,omitempty"`
	InvoiceDate     *time.Time `json:"invoice_date,omitempty"`
	JournalDate     *time.Time `json:"journal_date,omitempty"`
}

// Status lists the tasks of ?reference=.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "use GET"})
		return
	}
	ref := r.URL.Query().Get("reference")
	if ref == "" {
		h.JSON(w, http.StatusBadRequest, map[string]string{"error": "reference is required"})
		return
	}

	tasks, err := h.Requests.Tasks(r.Context(), ref)
	if err != nil {
		h.Logger.Printf("[STATUS][ERR] reference=%q: %v", ref, err)
		h.JSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if len(tasks) == 0 {
		h.JSON(w, http.StatusNotFound, map[string]string{"error": "unknown reference"})
		return
	}

	views := make([]taskView, 0, len(tasks))
	done := 0
	for _, t := range tasks {
		if t.Terminal() {
			done++
		}
		views = append(views, taskView{
			ID:              t.QueueElementID,
			Status:          string(t.Status),
			Stage:           t.Stage().String(),
			EflytCaseNumber: t.EflytCaseNumber,
			CPR:             utils.MaskCPR(t.CPR),
			MoveDate:        t.MoveDate,
			CaseNumber:      t.CaseNumber,
			LetterDate:      t.LetterDate,
			InvoiceDate:     t.InvoiceDate,
			JournalDate:     t.JournalDate,
		})
	}
	h.JSON(w, http.StatusOK, map[string]any{"reference": ref, "done": done, "total": len(tasks), "tasks": views})
}
