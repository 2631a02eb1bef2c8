// Package repository implements all database queries for the symposium backend.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining seats.
var ErrEventFull = errors.New("event is fully booked")

// ErrAlreadyRegistered is returned when the leader already holds a SUCCESS
// registration for the event.
var ErrAlreadyRegistered = errors.New("leader already registered for this event")

// ErrDuplicateOrder is returned when a gateway order id is already linked elsewhere.
var ErrDuplicateOrder = errors.New("gateway order already linked to another registration")

// ErrSuccessExists is returned when a success transition would give the same
// (event, leader) pair a second SUCCESS registration.
var ErrSuccessExists = errors.New("another successful registration exists for this leader")

// ErrStale is returned when a conditional write found the row in an unexpected state.
var ErrStale = errors.New("registration state changed")

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// EventRepository handles persistence for events. The registration core only
// reads events; Upsert exists for the seed command.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `e.id, e.slug, e.title, e.description, e.fee, e.min_team_size, e.max_team_size,
	e.max_seats, e.is_live, e.created_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id AND r.status = 'SUCCESS')`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.Fee, &e.MinTeamSize, &e.MaxTeamSize,
		&e.MaxSeats, &e.IsLive, &e.CreatedAt, &e.RegisteredCount)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns events ordered by title. When liveOnly is set, closed events are skipped.
func (r *EventRepository) List(ctx context.Context, liveOnly bool) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 WHERE ($1 = FALSE OR e.is_live)
		 ORDER BY e.title ASC`,
		liveOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// GetBySlug returns a single event by its slug or ErrNotFound.
func (r *EventRepository) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event by slug: %w", err)
	}
	return e, nil
}

// Upsert inserts an event or updates the one sharing its slug. The stored id
// is written back into e.
func (r *EventRepository) Upsert(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO events (id, slug, title, description, fee, min_team_size, max_team_size, max_seats, is_live, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (slug) DO UPDATE SET
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     fee = EXCLUDED.fee,
		     min_team_size = EXCLUDED.min_team_size,
		     max_team_size = EXCLUDED.max_team_size,
		     max_seats = EXCLUDED.max_seats,
		     is_live = EXCLUDED.is_live
		 RETURNING id`,
		e.ID, e.Slug, e.Title, e.Description, e.Fee, e.MinTeamSize, e.MaxTeamSize, e.MaxSeats, e.IsLive, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.Slug, err)
	}
	return nil
}
