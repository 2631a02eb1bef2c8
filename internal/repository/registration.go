package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const successIndex = "uq_registrations_event_leader_success"

// RegistrationRepository handles persistence for registrations and their participants.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `r.id, r.event_id, r.team_name, r.amount, r.status, r.razorpay_order_id,
	r.razorpay_payment_id, r.razorpay_signature, r.paid_at, r.reminder_sent, r.created_by_email,
	r.created_at, e.title, e.slug`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		reg    model.Registration
		status string
		ev     model.EventSummary
	)
	err := row.Scan(&reg.ID, &reg.EventID, &reg.TeamName, &reg.Amount, &status, &reg.RazorpayOrderID,
		&reg.RazorpayPaymentID, &reg.RazorpaySignature, &reg.PaidAt, &reg.ReminderSent, &reg.CreatedByEmail,
		&reg.CreatedAt, &ev.Title, &ev.Slug)
	if err != nil {
		return nil, err
	}
	reg.Status = model.PaymentStatus(status)
	ev.ID = reg.EventID
	reg.Event = &ev
	return &reg, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()
	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// Create inserts a registration and its participants inside one transaction.
//
// The event row is locked with SELECT … FOR UPDATE first, so concurrent intakes
// for the same event serialise: the duplicate check, the resume lookup, the
// seat count and the insert all see a consistent view. The partial unique
// index on (event_id, created_by_email) WHERE status = 'SUCCESS' remains the
// last line of defence for transitions that happen outside this path.
//
// When a PENDING registration already exists for the leader it is returned
// unchanged with IsResume set and nothing is written.
func (r *RegistrationRepository) Create(ctx context.Context, reg *model.Registration) (*model.Registration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var maxSeats *int
	err = tx.QueryRow(ctx,
		`SELECT max_seats FROM events WHERE id = $1 FOR UPDATE`,
		reg.EventID,
	).Scan(&maxSeats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	var (
		existingID     string
		existingStatus string
	)
	err = tx.QueryRow(ctx,
		`SELECT id, status FROM registrations
		 WHERE event_id = $1 AND lower(created_by_email) = $2 AND status IN ('SUCCESS', 'PENDING')
		 ORDER BY (status = 'SUCCESS') DESC, created_at DESC
		 LIMIT 1`,
		reg.EventID, reg.CreatedByEmail,
	).Scan(&existingID, &existingStatus)
	switch {
	case err == nil && model.PaymentStatus(existingStatus) == model.StatusSuccess:
		return nil, ErrAlreadyRegistered
	case err == nil:
		_ = tx.Rollback(ctx)
		existing, err := r.GetByID(ctx, existingID)
		if err != nil {
			return nil, err
		}
		existing.IsResume = true
		return existing, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("check existing registration: %w", err)
	}

	if maxSeats != nil {
		var taken int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'SUCCESS'`,
			reg.EventID,
		).Scan(&taken)
		if err != nil {
			return nil, fmt.Errorf("count seats: %w", err)
		}
		if taken >= *maxSeats {
			return nil, ErrEventFull
		}
	}

	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO registrations (id, event_id, team_name, amount, status, paid_at, created_by_email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.EventID, reg.TeamName, reg.Amount, string(reg.Status), reg.PaidAt, reg.CreatedByEmail, reg.CreatedAt,
	)
	for i := range reg.Participants {
		p := &reg.Participants[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.RegistrationID = reg.ID
		batch.Queue(
			`INSERT INTO participants (id, registration_id, full_name, email, phone, college, is_leader)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.RegistrationID, p.FullName, p.Email, p.Phone, p.College, p.IsLeader,
		)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err, successIndex) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// GetByID returns a registration with its participants (leader first) or ErrNotFound.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r JOIN events e ON e.id = r.event_id
		 WHERE r.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	regs := []model.Registration{*reg}
	if err := r.loadParticipants(ctx, regs); err != nil {
		return nil, err
	}
	return &regs[0], nil
}

// GetByOrderID returns the registration linked to a gateway order or ErrNotFound.
// Participants are not loaded.
func (r *RegistrationRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r JOIN events e ON e.id = r.event_id
		 WHERE r.razorpay_order_id = $1`,
		orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration by order: %w", err)
	}
	return reg, nil
}

// ListByLeaderEmail returns registrations led by email, newest first.
func (r *RegistrationRepository) ListByLeaderEmail(ctx context.Context, email string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r JOIN events e ON e.id = r.event_id
		 WHERE lower(r.created_by_email) = lower($1)
		 ORDER BY r.created_at DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by email: %w", err)
	}
	regs, err := collectRegistrations(rows)
	if err != nil {
		return nil, err
	}
	return regs, r.loadParticipants(ctx, regs)
}

// List returns registrations matching the filter, newest first, with participants.
func (r *RegistrationRepository) List(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r JOIN events e ON e.id = r.event_id
		 WHERE ($1 = '' OR r.event_id::text = $1)
		   AND ($2 = '' OR r.status = $2)
		 ORDER BY r.created_at DESC`,
		f.EventID, string(f.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	regs, err := collectRegistrations(rows)
	if err != nil {
		return nil, err
	}
	return regs, r.loadParticipants(ctx, regs)
}

// Stats counts registrations by status, optionally for one event.
func (r *RegistrationRepository) Stats(ctx context.Context, eventID string) (model.RegistrationStats, error) {
	var s model.RegistrationStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'SUCCESS'),
		        COUNT(*) FILTER (WHERE status = 'PENDING'),
		        COUNT(*) FILTER (WHERE status = 'FAILED')
		 FROM registrations
		 WHERE ($1 = '' OR event_id::text = $1)`,
		eventID,
	).Scan(&s.Total, &s.Success, &s.Pending, &s.Failed)
	if err != nil {
		return s, fmt.Errorf("registration stats: %w", err)
	}
	return s, nil
}

func (r *RegistrationRepository) loadParticipants(ctx context.Context, regs []model.Registration) error {
	if len(regs) == 0 {
		return nil
	}
	ids := make([]string, len(regs))
	index := make(map[string]int, len(regs))
	for i, reg := range regs {
		ids[i] = reg.ID
		index[reg.ID] = i
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, registration_id, full_name, email, phone, college, is_leader
		 FROM participants
		 WHERE registration_id::text = ANY($1)
		 ORDER BY is_leader DESC, full_name ASC`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.RegistrationID, &p.FullName, &p.Email, &p.Phone, &p.College, &p.IsLeader); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		i := index[p.RegistrationID]
		regs[i].Participants = append(regs[i].Participants, p)
	}
	return rows.Err()
}

// LinkOrder stores the gateway order id on a registration that is not yet paid.
func (r *RegistrationRepository) LinkOrder(ctx context.Context, id, orderID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET razorpay_order_id = $2
		 WHERE id = $1 AND status <> 'SUCCESS'`,
		id, orderID,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("link order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// MarkSuccess moves a registration to SUCCESS unless it is already there.
// It reports whether this call performed the transition. paymentID and
// signature keep their stored values when nil.
func (r *RegistrationRepository) MarkSuccess(ctx context.Context, id string, paymentID, signature *string, paidAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET status = 'SUCCESS',
		     razorpay_payment_id = COALESCE($2, razorpay_payment_id),
		     razorpay_signature = COALESCE($3, razorpay_signature),
		     paid_at = $4
		 WHERE id = $1 AND status <> 'SUCCESS'`,
		id, paymentID, signature, paidAt,
	)
	if err != nil {
		if isUniqueViolation(err, successIndex) {
			return false, ErrSuccessExists
		}
		return false, fmt.Errorf("mark success: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves a PENDING registration to FAILED. It reports whether this
// call performed the transition; SUCCESS and FAILED rows are left untouched.
func (r *RegistrationRepository) MarkFailed(ctx context.Context, id, paymentID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET status = 'FAILED', razorpay_payment_id = NULLIF($2, '')
		 WHERE id = $1 AND status = 'PENDING'`,
		id, paymentID,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListReminderCandidates returns paid-event registrations that have had an
// order issued, are still PENDING at or before cutoff, and were never reminded.
func (r *RegistrationRepository) ListReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r JOIN events e ON e.id = r.event_id
		 WHERE r.status = 'PENDING'
		   AND r.reminder_sent = FALSE
		   AND r.created_at <= $1
		   AND r.amount > 0
		   AND r.razorpay_order_id IS NOT NULL
		 ORDER BY r.created_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	return collectRegistrations(rows)
}

// MarkReminderSent flags a registration so later sweeps skip it.
func (r *RegistrationRepository) MarkReminderSent(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET reminder_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
