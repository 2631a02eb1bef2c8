package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
)

// Gateway webhook event types the reconciler acts on.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
)

// ProcessWebhook applies an authenticated gateway callback. signature is the
// verified header value and is stored with a resulting SUCCESS. It never
// returns an error: the outcome is logged and stored in the webhook audit
// table, and the caller always acknowledges the delivery.
func (s *PaymentService) ProcessWebhook(ctx context.Context, raw []byte, signature string) (outcome model.WebhookOutcome) {
	ev := &model.WebhookEvent{Payload: json.RawMessage(raw), ReceivedAt: s.now()}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WEBHOOK] panic processing %q: %v\n%s", ev.EventType, r, debug.Stack())
			outcome = model.WebhookFailed
			msg := fmt.Sprint(r)
			ev.Error = &msg
		}
		ev.Outcome = outcome
		ev.ProcessedAt = s.now()
		s.record(ctx, ev)
	}()

	var p model.WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("[WEBHOOK] malformed payload: %v", err)
		msg := err.Error()
		ev.Error = &msg
		ev.Payload = nil
		return model.WebhookFailed
	}
	ev.EventType = p.Event

	var sig *string
	if signature != "" {
		sig = &signature
	}
	outcome, err := s.reconcile(ctx, &p, ev, sig)
	if err != nil {
		log.Printf("[WEBHOOK] %s: %v", p.Event, err)
		msg := err.Error()
		ev.Error = &msg
		return model.WebhookFailed
	}
	return outcome
}

func (s *PaymentService) reconcile(ctx context.Context, p *model.WebhookPayload, ev *model.WebhookEvent, signature *string) (model.WebhookOutcome, error) {
	switch p.Event {
	case EventPaymentCaptured, EventPaymentAuthorized, EventPaymentFailed:
		pay := p.PaymentEntity()
		if pay == nil || pay.OrderID == "" {
			log.Printf("[WEBHOOK] %s without payment entity, ignored", p.Event)
			return model.WebhookIgnored, nil
		}
		ev.OrderID = &pay.OrderID
		if pay.ID != "" {
			ev.PaymentID = &pay.ID
		}
		reg, ok, err := s.lookupOrder(ctx, pay.OrderID, p.Event)
		if !ok {
			return model.WebhookIgnored, err
		}
		var changed bool
		if p.Event == EventPaymentFailed {
			changed, err = s.markFailed(ctx, reg, pay.ID, "WEBHOOK")
		} else {
			changed, err = s.markPaid(ctx, reg, ev.PaymentID, signature, "WEBHOOK")
		}
		if err != nil {
			return model.WebhookFailed, err
		}
		return outcomeOf(changed, reg, p.Event), nil

	case EventOrderPaid:
		order := p.OrderEntity()
		if order == nil || order.ID == "" {
			log.Printf("[WEBHOOK] %s without order entity, ignored", p.Event)
			return model.WebhookIgnored, nil
		}
		ev.OrderID = &order.ID
		if pay := p.PaymentEntity(); pay != nil && pay.ID != "" {
			ev.PaymentID = &pay.ID
		}
		reg, ok, err := s.lookupOrder(ctx, order.ID, p.Event)
		if !ok {
			return model.WebhookIgnored, err
		}
		changed, err := s.markPaid(ctx, reg, ev.PaymentID, signature, "WEBHOOK")
		if err != nil {
			return model.WebhookFailed, err
		}
		return outcomeOf(changed, reg, p.Event), nil

	default:
		log.Printf("[WEBHOOK] unhandled event type %q", p.Event)
		return model.WebhookIgnored, nil
	}
}

// lookupOrder finds the registration for orderID. ok is false when there is
// nothing to reconcile; err is set only for store failures.
func (s *PaymentService) lookupOrder(ctx context.Context, orderID, event string) (*model.Registration, bool, error) {
	reg, err := s.regs.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[WEBHOOK] %s for unknown order %s, dropped", event, orderID)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup order %s: %w", orderID, err)
	}
	return reg, true, nil
}

func outcomeOf(changed bool, reg *model.Registration, event string) model.WebhookOutcome {
	if changed {
		return model.WebhookProcessed
	}
	log.Printf("[WEBHOOK] %s for registration %s is a no-op", event, reg.ID)
	return model.WebhookIgnored
}

func (s *PaymentService) record(ctx context.Context, ev *model.WebhookEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordWebhook(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("[WEBHOOK] failed to record %q delivery: %v", ev.EventType, err)
	}
}
