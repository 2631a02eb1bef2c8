// Package service implements business logic, validation, and orchestration
// between HTTP handlers, the repository layer and the payment gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/gateway"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
	"github.com/google/uuid"
)

// EventStore reads events.
type EventStore interface {
	List(ctx context.Context, liveOnly bool) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
}

// RegistrationStore persists registrations. Every status write is a
// conditional update that reports whether it changed the row.
type RegistrationStore interface {
	Create(ctx context.Context, reg *model.Registration) (*model.Registration, error)
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Registration, error)
	ListByLeaderEmail(ctx context.Context, email string) ([]model.Registration, error)
	List(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, error)
	Stats(ctx context.Context, eventID string) (model.RegistrationStats, error)
	LinkOrder(ctx context.Context, id, orderID string) error
	MarkSuccess(ctx context.Context, id string, paymentID, signature *string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, paymentID string) (bool, error)
}

// Gateway is the payment provider contract the core consumes.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

// Dispatcher fires notifications without waiting for them.
type Dispatcher interface {
	Go(kind model.NotificationKind, registrationID string)
}

// validID reports whether id is a well-formed UUID. Malformed ids are
// answered with NotFound without touching the database.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// EventService exposes the read-only event catalogue.
type EventService struct {
	events EventStore
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore) *EventService {
	return &EventService{events: events}
}

// ListEvents returns all live events with their SUCCESS registration counts.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.List(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].FillSeatsLeft()
	}
	return events, nil
}

// GetEvent returns an event by id, falling back to slug lookup.
func (s *EventService) GetEvent(ctx context.Context, idOrSlug string) (*model.Event, error) {
	if idOrSlug == "" {
		return nil, newError(ErrInvalidInput, "event id is required")
	}
	if validID(idOrSlug) {
		event, err := s.events.GetByID(ctx, idOrSlug)
		if err == nil {
			event.FillSeatsLeft()
			return event, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("get event: %w", err)
		}
	}
	event, err := s.events.GetBySlug(ctx, idOrSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Event not found")
		}
		return nil, fmt.Errorf("get event by slug: %w", err)
	}
	event.FillSeatsLeft()
	return event, nil
}
