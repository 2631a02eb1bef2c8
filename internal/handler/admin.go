package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
)

// AdminListRegistrations handles GET /admin/registrations?eventId=&status=
func (h *Handler) AdminListRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	regs, err := h.regs.List(r.Context(), model.RegistrationFilter{
		EventID: q.Get("eventId"),
		Status:  model.PaymentStatus(q.Get("status")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// AdminStats handles GET /admin/registrations/stats?eventId=
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.regs.Stats(r.Context(), r.URL.Query().Get("eventId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AdminSweep handles POST /admin/reminders/sweep
// Runs one reminder sweep now; an overlapping sweep reports skipped.
func (h *Handler) AdminSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
