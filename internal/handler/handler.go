// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// EventService is the event catalogue the handlers read.
type EventService interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, idOrSlug string) (*model.Event, error)
}

// RegistrationService is the registration intake and lookup API.
type RegistrationService interface {
	Create(ctx context.Context, req model.CreateRegistrationRequest) (*model.Registration, error)
	Get(ctx context.Context, id string) (*model.Registration, error)
	Status(ctx context.Context, id string) (*model.RegistrationStatus, error)
	ListByEmail(ctx context.Context, email string) ([]model.Registration, error)
	List(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, error)
	Stats(ctx context.Context, eventID string) (model.RegistrationStats, error)
}

// PaymentService issues orders and reconciles payments.
type PaymentService interface {
	CreateOrder(ctx context.Context, registrationID string) (*model.OrderResult, error)
	ProcessWebhook(ctx context.Context, raw []byte, signature string) model.WebhookOutcome
	ConfirmPayment(ctx context.Context, req model.ConfirmPaymentRequest) (*model.ConfirmResult, error)
	Verify(ctx context.Context, orderID string) (*model.RegistrationStatus, error)
}

// Sweeper runs one reminder sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (model.SweepResult, error)
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all HTTP handlers for the symposium API.
type Handler struct {
	events   EventService
	regs     RegistrationService
	payments PaymentService
	sweeper  Sweeper
	validate *validator.Validate
}

// New constructs a Handler.
func New(events EventService, regs RegistrationService, payments PaymentService, sweeper Sweeper) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{events: events, regs: regs, payments: payments, sweeper: sweeper, validate: v}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeAndValidate decodes the body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fieldMessage(fe)
	}
	writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{Error: "validation failed", Fields: fields})
	return false
}

// fieldPath drops the root struct name: "participants[0].email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	unit := "characters"
	if fe.Kind() == reflect.Slice {
		unit = "items"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "number":
		return "must contain digits only"
	case "len":
		return fmt.Sprintf("must be exactly %s %s", fe.Param(), unit)
	case "min":
		return fmt.Sprintf("must have at least %s %s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must have at most %s %s", fe.Param(), unit)
	default:
		return "is invalid"
	}
}

// writeServiceError maps service error kinds to HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrCapacity):
		status = http.StatusConflict
	case errors.Is(err, service.ErrTransient):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	default:
		log.Printf("[REQ] %s %s %s: %v", chimiddleware.GetReqID(r.Context()), r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// ─── Events ───────────────────────────────────────────────────────────────────

// ListEvents handles GET /events
// Returns live events with their confirmed registration counts.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
// Accepts either the event UUID or its slug.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health. db may be nil.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				log.Printf("[REQ] health check: database unreachable: %v", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
