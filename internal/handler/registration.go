package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/go-chi/chi/v5"
)

// CreateRegistration handles POST /registrations
// Returns 201 for a new registration and 200 when an existing PENDING
// registration is resumed.
func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRegistrationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	reg, err := h.regs.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if reg.IsResume {
		status = http.StatusOK
	}
	writeJSON(w, status, reg)
}

// GetRegistration handles GET /registrations/{id}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// RegistrationStatus handles GET /registrations/{id}/status
// Clients poll this after opening checkout.
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.regs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RegistrationsByEmail handles GET /registrations/by-email/{email}
func (h *Handler) RegistrationsByEmail(w http.ResponseWriter, r *http.Request) {
	regs, err := h.regs.ListByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}
