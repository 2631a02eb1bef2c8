package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/gateway"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
	"golang.org/x/sync/singleflight"
)

// WebhookRecorder stores the audit row for each processed webhook.
type WebhookRecorder interface {
	RecordWebhook(ctx context.Context, ev *model.WebhookEvent) error
}

// PaymentService issues gateway orders and reconciles payment outcomes
// reported by webhooks and by clients. All status writes go through markPaid
// and markFailed, which are compare-and-set updates against the stored row.
type PaymentService struct {
	regs     RegistrationStore
	gw       Gateway
	notifier Dispatcher
	audit    WebhookRecorder
	currency string
	now      func() time.Time

	// orders collapses concurrent CreateOrder calls for one registration.
	orders singleflight.Group
}

// NewPaymentService constructs a PaymentService. audit may be nil.
func NewPaymentService(regs RegistrationStore, gw Gateway, notifier Dispatcher, audit WebhookRecorder, currency string) *PaymentService {
	if currency == "" {
		currency = "INR"
	}
	return &PaymentService{
		regs:     regs,
		gw:       gw,
		notifier: notifier,
		audit:    audit,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder returns a gateway order for a PENDING registration. An unpaid
// order already linked to the registration is reused. Concurrent calls for
// one registration share a single flight, which outlives any one caller's
// cancellation; the gateway client bounds it with its own timeout.
func (s *PaymentService) CreateOrder(ctx context.Context, registrationID string) (*model.OrderResult, error) {
	if !validID(registrationID) {
		return nil, newError(ErrNotFound, "Registration not found")
	}
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.orders.Do(registrationID, func() (interface{}, error) {
		return s.createOrder(flightCtx, registrationID)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*model.OrderResult)
	return &res, nil
}

func (s *PaymentService) createOrder(ctx context.Context, registrationID string) (*model.OrderResult, error) {
	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Registration not found")
		}
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg.Status == model.StatusSuccess {
		return nil, newError(ErrInvalidState, "Payment already completed")
	}

	if reg.HasOrder() {
		existing, err := s.gw.FetchOrder(ctx, *reg.RazorpayOrderID)
		switch {
		case err != nil:
			log.Printf("[ORDER] existing order %s for %s could not be fetched, creating a new one: %v",
				*reg.RazorpayOrderID, reg.ID, err)
		case existing.Paid():
			// Paid remotely but the callback has not landed yet.
			if _, err := s.markPaid(ctx, reg, nil, nil, "ORDER"); err != nil {
				return nil, err
			}
			return nil, newError(ErrInvalidState, "Payment already completed")
		default:
			id := existing.ID
			return &model.OrderResult{
				OrderID:        &id,
				Amount:         existing.Amount,
				Currency:       existing.Currency,
				RegistrationID: reg.ID,
				KeyID:          s.gw.KeyID(),
			}, nil
		}
	}

	if reg.Amount == 0 {
		if _, err := s.markPaid(ctx, reg, nil, nil, "ORDER"); err != nil {
			return nil, err
		}
		return &model.OrderResult{Currency: s.currency, RegistrationID: reg.ID, IsFree: true}, nil
	}

	notes := map[string]string{
		"registrationId": reg.ID,
		"eventId":        reg.EventID,
		"teamName":       reg.TeamName,
	}
	if reg.Event != nil {
		notes["eventTitle"] = reg.Event.Title
	}
	if leader := reg.Leader(); leader != nil {
		notes["leaderName"] = leader.FullName
		notes["leaderEmail"] = leader.Email
	}

	order, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   int64(reg.Amount) * 100,
		Currency: s.currency,
		Receipt:  reg.ID,
		Notes:    notes,
	})
	if err != nil {
		log.Printf("[ORDER] create failed for %s: %v", reg.ID, err)
		return nil, wrapError(ErrTransient, err, "Could not create payment order, please try again")
	}

	if err := s.regs.LinkOrder(ctx, reg.ID, order.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrStale):
			return nil, wrapError(ErrInvalidState, err, "Payment already completed")
		case errors.Is(err, repository.ErrDuplicateOrder):
			return nil, wrapError(ErrConflict, err, "Payment order is linked to another registration")
		}
		return nil, fmt.Errorf("link order: %w", err)
	}
	log.Printf("[ORDER] created %s for registration %s amount=%d %s", order.ID, reg.ID, order.Amount, order.Currency)

	id := order.ID
	return &model.OrderResult{
		OrderID:        &id,
		Amount:         order.Amount,
		Currency:       order.Currency,
		RegistrationID: reg.ID,
		KeyID:          s.gw.KeyID(),
	}, nil
}

// Verify returns the polling view of the registration linked to orderID.
func (s *PaymentService) Verify(ctx context.Context, orderID string) (*model.RegistrationStatus, error) {
	if orderID == "" {
		return nil, newError(ErrInvalidInput, "orderId is required")
	}
	reg, err := s.regs.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Order not found")
		}
		return nil, fmt.Errorf("verify order: %w", err)
	}
	return statusOf(reg), nil
}

// markPaid upgrades reg to SUCCESS unless it already is, and sends the
// success notification only when this call made the transition.
func (s *PaymentService) markPaid(ctx context.Context, reg *model.Registration, paymentID, signature *string, source string) (bool, error) {
	changed, err := s.regs.MarkSuccess(ctx, reg.ID, paymentID, signature, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrSuccessExists) {
			log.Printf("[%s] registration %s not upgraded: leader already has a successful registration", source, reg.ID)
			return false, wrapError(ErrConflict, err, "This team leader is already registered for this event")
		}
		return false, fmt.Errorf("mark registration paid: %w", err)
	}
	if changed {
		log.Printf("[%s] registration %s marked SUCCESS", source, reg.ID)
		s.notifier.Go(model.NotifySuccess, reg.ID)
	}
	return changed, nil
}

// markFailed moves a PENDING reg to FAILED and sends the failure
// notification only when this call made the transition.
func (s *PaymentService) markFailed(ctx context.Context, reg *model.Registration, paymentID string, source string) (bool, error) {
	changed, err := s.regs.MarkFailed(ctx, reg.ID, paymentID)
	if err != nil {
		return false, fmt.Errorf("mark registration failed: %w", err)
	}
	if changed {
		log.Printf("[%s] registration %s marked FAILED", source, reg.ID)
		s.notifier.Go(model.NotifyFailed, reg.ID)
	}
	return changed, nil
}
