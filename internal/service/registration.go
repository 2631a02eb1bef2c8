package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
)

// RegistrationService handles team registration intake and lookups.
type RegistrationService struct {
	events   EventStore
	regs     RegistrationStore
	notifier Dispatcher
	now      func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(events EventStore, regs RegistrationStore, notifier Dispatcher) *RegistrationService {
	return &RegistrationService{
		events:   events,
		regs:     regs,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates a team registration and persists it. Rules are checked in
// a fixed order and the first violation wins. A PENDING registration for the
// same leader is returned as a resume instead of creating a second row.
func (s *RegistrationService) Create(ctx context.Context, req model.CreateRegistrationRequest) (*model.Registration, error) {
	if !validID(req.EventID) {
		return nil, newError(ErrNotFound, "Event not found")
	}
	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Event not found")
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !event.IsLive {
		return nil, newError(ErrInvalidState, "Registration for this event is not open")
	}

	n := len(req.Participants)
	if n < event.MinTeamSize {
		return nil, newError(ErrInvalidInput, "Minimum team size is %d. You provided %d.", event.MinTeamSize, n)
	}
	if n > event.MaxTeamSize {
		return nil, newError(ErrInvalidInput, "Maximum team size is %d. You provided %d.", event.MaxTeamSize, n)
	}

	leaders := 0
	for _, p := range req.Participants {
		if p.IsLeader {
			leaders++
		}
	}
	if leaders != 1 {
		return nil, newError(ErrInvalidInput, "Exactly one participant must be marked as team leader")
	}

	seen := make(map[string]bool, n)
	participants := make([]model.Participant, 0, n)
	var leaderEmail string
	for _, p := range req.Participants {
		email := strings.ToLower(strings.TrimSpace(p.Email))
		if seen[email] {
			return nil, newError(ErrInvalidInput, "Duplicate emails are not allowed within a team")
		}
		seen[email] = true
		if p.IsLeader {
			leaderEmail = email
		}
		participants = append(participants, model.Participant{
			FullName: strings.TrimSpace(p.FullName),
			Email:    email,
			Phone:    strings.TrimSpace(p.Phone),
			College:  strings.TrimSpace(p.College),
			IsLeader: p.IsLeader,
		})
	}

	reg := &model.Registration{
		EventID:        event.ID,
		TeamName:       strings.TrimSpace(req.TeamName),
		CreatedByEmail: leaderEmail,
		Participants:   participants,
		Event:          &model.EventSummary{ID: event.ID, Title: event.Title, Slug: event.Slug},
	}
	if event.IsFree() {
		paidAt := s.now()
		reg.Status = model.StatusSuccess
		reg.PaidAt = &paidAt
	} else {
		reg.Status = model.StatusPending
		reg.Amount = event.Fee
	}

	created, err := s.regs.Create(ctx, reg)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyRegistered):
			return nil, wrapError(ErrConflict, err, "This team leader is already registered for this event")
		case errors.Is(err, repository.ErrEventFull):
			return nil, wrapError(ErrCapacity, err, "Event is fully booked")
		case errors.Is(err, repository.ErrNotFound):
			return nil, wrapError(ErrNotFound, err, "Event not found")
		}
		return nil, fmt.Errorf("create registration: %w", err)
	}

	if created.IsResume {
		log.Printf("[REG] resume pending registration %s for event %s", created.ID, event.ID)
		return created, nil
	}
	log.Printf("[REG] created registration %s for event %s status=%s", created.ID, event.ID, created.Status)
	if created.Status == model.StatusSuccess {
		s.notifier.Go(model.NotifySuccess, created.ID)
	}
	return created, nil
}

// Get returns a registration with its participants.
func (s *RegistrationService) Get(ctx context.Context, id string) (*model.Registration, error) {
	if !validID(id) {
		return nil, newError(ErrNotFound, "Registration not found")
	}
	reg, err := s.regs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Registration not found")
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// Status returns the polling view of a registration.
func (s *RegistrationService) Status(ctx context.Context, id string) (*model.RegistrationStatus, error) {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return statusOf(reg), nil
}

// ListByEmail returns every registration led by email.
func (s *RegistrationService) ListByEmail(ctx context.Context, email string) ([]model.Registration, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, newError(ErrInvalidInput, "email is required")
	}
	regs, err := s.regs.ListByLeaderEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list registrations by email: %w", err)
	}
	return regs, nil
}

// List returns registrations for the admin view.
func (s *RegistrationService) List(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, error) {
	if f.EventID != "" && !validID(f.EventID) {
		return nil, newError(ErrInvalidInput, "invalid eventId")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, newError(ErrInvalidInput, "invalid status %q", f.Status)
	}
	regs, err := s.regs.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// Stats returns registration counts per status, optionally for one event.
func (s *RegistrationService) Stats(ctx context.Context, eventID string) (model.RegistrationStats, error) {
	if eventID != "" && !validID(eventID) {
		return model.RegistrationStats{}, newError(ErrInvalidInput, "invalid eventId")
	}
	stats, err := s.regs.Stats(ctx, eventID)
	if err != nil {
		return model.RegistrationStats{}, fmt.Errorf("registration stats: %w", err)
	}
	return stats, nil
}

func statusOf(reg *model.Registration) *model.RegistrationStatus {
	st := &model.RegistrationStatus{
		ID:       reg.ID,
		Status:   reg.Status,
		Amount:   reg.Amount,
		TeamName: reg.TeamName,
		OrderID:  reg.RazorpayOrderID,
		PaidAt:   reg.PaidAt,
	}
	if reg.Event != nil {
		st.Event = *reg.Event
	}
	return st
}
