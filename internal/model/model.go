// Package model defines the core domain types for the symposium registration backend.
package model

import (
	"encoding/json"
	"time"
)

// PaymentStatus is the canonical payment state of a Registration.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Event represents a competition, workshop or talk teams register for.
type Event struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Fee         int       `json:"fee"`
	MinTeamSize int       `json:"minTeamSize"`
	MaxTeamSize int       `json:"maxTeamSize"`
	MaxSeats    *int      `json:"maxSeats"`
	IsLive      bool      `json:"isLive"`
	CreatedAt   time.Time `json:"createdAt"`

	// RegisteredCount is the number of SUCCESS registrations, filled by list queries.
	RegisteredCount int `json:"registeredCount"`
	// SeatsLeft is nil when capacity is unlimited.
	SeatsLeft *int `json:"seatsLeft"`
}

// IsFree returns true when the event costs nothing to enter.
func (e *Event) IsFree() bool {
	return e.Fee == 0
}

// FillSeatsLeft derives SeatsLeft from MaxSeats and RegisteredCount.
func (e *Event) FillSeatsLeft() {
	if e.MaxSeats == nil {
		e.SeatsLeft = nil
		return
	}
	left := max(*e.MaxSeats-e.RegisteredCount, 0)
	e.SeatsLeft = &left
}

// EventSummary is the trimmed event view embedded in registration responses.
type EventSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug,omitempty"`
}

// Registration is one team's attempt to register for exactly one event.
type Registration struct {
	ID                string        `json:"id"`
	EventID           string        `json:"eventId"`
	TeamName          string        `json:"teamName"`
	Amount            int           `json:"amount"`
	Status            PaymentStatus `json:"status"`
	RazorpayOrderID   *string       `json:"razorpayOrderId"`
	RazorpayPaymentID *string       `json:"razorpayPaymentId"`
	RazorpaySignature *string       `json:"-"`
	PaidAt            *time.Time    `json:"paidAt"`
	ReminderSent      bool          `json:"reminderSent"`
	CreatedByEmail    string        `json:"createdByEmail"`
	CreatedAt         time.Time     `json:"createdAt"`

	Event        *EventSummary `json:"event,omitempty"`
	Participants []Participant `json:"participants,omitempty"`

	// IsResume is set when intake returned an existing PENDING registration.
	IsResume bool `json:"isResume,omitempty"`
}

// Leader returns the leader participant, or nil when participants were not loaded.
func (r *Registration) Leader() *Participant {
	for i := range r.Participants {
		if r.Participants[i].IsLeader {
			return &r.Participants[i]
		}
	}
	return nil
}

// HasOrder returns true once a gateway order has been linked.
func (r *Registration) HasOrder() bool {
	return r.RazorpayOrderID != nil && *r.RazorpayOrderID != ""
}

// Participant is one person within a registration.
type Participant struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registrationId"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	College        string `json:"college"`
	IsLeader       bool   `json:"isLeader"`
}

// RegistrationStatus is the polling view of a registration.
type RegistrationStatus struct {
	ID       string        `json:"id"`
	Status   PaymentStatus `json:"status"`
	Amount   int           `json:"amount"`
	TeamName string        `json:"teamName"`
	OrderID  *string       `json:"razorpayOrderId"`
	PaidAt   *time.Time    `json:"paidAt"`
	Event    EventSummary  `json:"event"`
}

// RegistrationFilter narrows admin listings.
type RegistrationFilter struct {
	EventID string
	Status  PaymentStatus
}

// RegistrationStats aggregates registrations by status.
type RegistrationStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// NotificationKind selects the message template a notifier sends.
type NotificationKind string

const (
	NotifySuccess  NotificationKind = "success"
	NotifyFailed   NotificationKind = "failed"
	NotifyReminder NotificationKind = "reminder"
)

// EmailLog records one notification attempt. It is an audit trail only.
type EmailLog struct {
	ID             string    `json:"id"`
	RegistrationID *string   `json:"registrationId"`
	ToEmail        string    `json:"toEmail"`
	Type           string    `json:"type"`
	Subject        string    `json:"subject"`
	Status         string    `json:"status"`
	Error          *string   `json:"error"`
	CreatedAt      time.Time `json:"createdAt"`
}

// WebhookOutcome is the processing result stored with each webhook delivery.
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookFailed    WebhookOutcome = "failed"
)

// WebhookEvent is the audit row for one authenticated gateway callback.
type WebhookEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"eventType"`
	OrderID     *string         `json:"orderId"`
	PaymentID   *string         `json:"paymentId"`
	Payload     json.RawMessage `json:"payload"`
	Outcome     WebhookOutcome  `json:"outcome"`
	Error       *string         `json:"error"`
	ReceivedAt  time.Time       `json:"receivedAt"`
	ProcessedAt time.Time       `json:"processedAt"`
}

// ─── Requests & responses ────────────────────────────────────────────────────

// ParticipantInput is one participant in a registration request.
type ParticipantInput struct {
	FullName string `json:"fullName" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,number,len=10"`
	College  string `json:"college" validate:"required,min=2,max=200"`
	IsLeader bool   `json:"isLeader"`
}

// CreateRegistrationRequest is the payload for registering a team for an event.
type CreateRegistrationRequest struct {
	EventID      string             `json:"eventId" validate:"required"`
	TeamName     string             `json:"teamName" validate:"required,min=2,max=100"`
	Participants []ParticipantInput `json:"participants" validate:"required,min=1,max=10,dive"`
}

// CreateOrderRequest is the payload for issuing a gateway order.
type CreateOrderRequest struct {
	RegistrationID string `json:"registrationId" validate:"required"`
}

// OrderResult is returned by the order issuer.
type OrderResult struct {
	OrderID        *string `json:"orderId"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	RegistrationID string  `json:"registrationId"`
	KeyID          string  `json:"keyId,omitempty"`
	IsFree         bool    `json:"isFree,omitempty"`
}

// ConfirmPaymentRequest is sent by clients that saw a successful checkout locally.
type ConfirmPaymentRequest struct {
	OrderID        string `json:"orderId" validate:"required"`
	PaymentID      string `json:"paymentId" validate:"required"`
	RegistrationID string `json:"registrationId" validate:"required"`
}

// ConfirmStatus is the outcome reported by manual confirmation.
type ConfirmStatus string

const (
	ConfirmSuccess    ConfirmStatus = "SUCCESS"
	ConfirmFailed     ConfirmStatus = "FAILED"
	ConfirmProcessing ConfirmStatus = "PROCESSING"
	ConfirmPending    ConfirmStatus = "PENDING"
)

// ConfirmResult is the status object returned by manual confirmation.
type ConfirmResult struct {
	Status         ConfirmStatus `json:"status"`
	RegistrationID string        `json:"registrationId"`
	Event          *EventSummary `json:"event,omitempty"`
	TeamName       string        `json:"teamName,omitempty"`
	PaidAt         *time.Time    `json:"paidAt,omitempty"`
	GatewayStatus  string        `json:"razorpayStatus,omitempty"`

	// Unverified is set when the gateway could not be reached; Status is then
	// the last known local state.
	Unverified bool   `json:"unverified,omitempty"`
	Advisory   string `json:"error,omitempty"`
}

// WebhookPayload is the JSON body of a gateway callback.
type WebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity WebhookPayment `json:"entity"`
		} `json:"payment,omitempty"`
		Order *struct {
			Entity WebhookOrder `json:"entity"`
		} `json:"order,omitempty"`
	} `json:"payload"`
}

// WebhookPayment is the payment entity inside a webhook payload.
type WebhookPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

// WebhookOrder is the order entity inside a webhook payload.
type WebhookOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PaymentEntity returns the payment entity, or nil when absent.
func (p *WebhookPayload) PaymentEntity() *WebhookPayment {
	if p.Payload.Payment == nil {
		return nil
	}
	return &p.Payload.Payment.Entity
}

// OrderEntity returns the order entity, or nil when absent.
func (p *WebhookPayload) OrderEntity() *WebhookOrder {
	if p.Payload.Order == nil {
		return nil
	}
	return &p.Payload.Order.Entity
}

// SweepResult summarises one reminder sweep.
type SweepResult struct {
	Skipped    bool `json:"skipped"`
	Candidates int  `json:"candidates"`
	Sent       int  `json:"sent"`
	Failed     int  `json:"failed"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
