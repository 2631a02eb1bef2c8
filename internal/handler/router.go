package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// RouterConfig holds the secrets and limits the router needs.
type RouterConfig struct {
	FrontendURL   string
	WebhookSecret string
	JWTSecret     string
	DB            Pinger

	// CreateLimit is the per-IP budget per minute for create endpoints.
	CreateLimit int
}

// NewRouter builds the full API route tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.CreateLimit <= 0 {
		cfg.CreateLimit = 20
	}
	createLimit := httprate.LimitByIP(cfg.CreateLimit, time.Minute)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)
	r.Use(CORS(cfg.FrontendURL))

	// Health
	r.Get("/health", HealthCheck(cfg.DB))

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.With(createLimit).Post("/", h.CreateRegistration)
		r.Get("/by-email/{email}", h.RegistrationsByEmail)
		r.Get("/{id}", h.GetRegistration)
		r.Get("/{id}/status", h.RegistrationStatus)
	})

	r.Route("/payments", func(r chi.Router) {
		r.With(createLimit).Post("/orders", h.CreateOrder)
		r.With(VerifyWebhookSignature(cfg.WebhookSecret)).Post("/webhook", h.Webhook)
		r.Post("/confirm", h.ConfirmPayment)
		r.Get("/verify/{orderId}", h.VerifyOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdmin(cfg.JWTSecret))
		r.Get("/registrations", h.AdminListRegistrations)
		r.Get("/registrations/stats", h.AdminStats)
		r.Post("/reminders/sweep", h.AdminSweep)
	})

	return r
}
