package handler

import (
	"io"
	"net/http"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/go-chi/chi/v5"
)

// CreateOrder handles POST /payments/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.payments.CreateOrder(r.Context(), req.RegistrationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Webhook handles POST /payments/webhook
// The signature is checked by VerifyWebhookSignature before this runs. The
// response is always 200 so the gateway does not retry on internal failures.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "outcome": string(model.WebhookFailed)})
		return
	}
	outcome := h.payments.ProcessWebhook(r.Context(), raw, r.Header.Get(SignatureHeader))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "outcome": string(outcome)})
}

// ConfirmPayment handles POST /payments/confirm
// Gateway outages are reported in the body, not as an error status.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.payments.ConfirmPayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyOrder handles GET /payments/verify/{orderId}
func (h *Handler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	st, err := h.payments.Verify(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
