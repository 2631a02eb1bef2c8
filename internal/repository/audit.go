package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository writes the append-only email and webhook logs.
// Neither table is authoritative for registration state.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// LogEmail records one notification attempt.
func (r *AuditRepository) LogEmail(ctx context.Context, l *model.EmailLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO email_logs (id, registration_id, to_email, type, subject, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.RegistrationID, l.ToEmail, l.Type, l.Subject, l.Status, l.Error, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// RecordWebhook stores one processed webhook delivery.
func (r *AuditRepository) RecordWebhook(ctx context.Context, ev *model.WebhookEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO payment_webhook_events
		     (id, event_type, order_id, payment_id, payload, outcome, error, received_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.EventType, ev.OrderID, ev.PaymentID, string(payload), string(ev.Outcome), ev.Error,
		ev.ReceivedAt, ev.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}
