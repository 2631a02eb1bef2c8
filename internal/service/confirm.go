package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
)

// Gateway payment statuses.
const (
	paymentCaptured   = "captured"
	paymentAuthorized = "authorized"
	paymentFailed     = "failed"
)

const advisoryUnverified = "Could not verify payment with the gateway. Please check again shortly."

// ConfirmPayment re-verifies a payment the client reports as complete. The
// gateway is always asked for the payment; the client's claim is never
// trusted on its own. Gateway failures leave local state untouched and are
// reported as an advisory on the last known status.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req model.ConfirmPaymentRequest) (*model.ConfirmResult, error) {
	if !validID(req.RegistrationID) {
		return nil, newError(ErrNotFound, "Registration not found")
	}
	reg, err := s.regs.GetByID(ctx, req.RegistrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Registration not found")
		}
		return nil, fmt.Errorf("load registration: %w", err)
	}

	if reg.Status == model.StatusSuccess {
		return confirmResult(reg, model.ConfirmSuccess), nil
	}
	if !reg.HasOrder() || *reg.RazorpayOrderID != req.OrderID {
		log.Printf("[CONFIRM] order mismatch for registration %s", reg.ID)
		return nil, newError(ErrConflict, "Order ID mismatch")
	}

	payment, err := s.gw.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		log.Printf("[CONFIRM] could not verify payment %s for %s: %v", req.PaymentID, reg.ID, err)
		res := confirmResult(reg, model.ConfirmStatus(reg.Status))
		res.Unverified = true
		res.Advisory = advisoryUnverified
		return res, nil
	}
	if payment.OrderID != req.OrderID {
		log.Printf("[CONFIRM] payment %s belongs to order %s, not %s", payment.ID, payment.OrderID, req.OrderID)
		return nil, newError(ErrConflict, "Payment does not belong to this order")
	}

	switch payment.Status {
	case paymentCaptured, paymentAuthorized:
		paymentID := payment.ID
		if _, err := s.markPaid(ctx, reg, &paymentID, nil, "CONFIRM"); err != nil {
			return nil, err
		}
	case paymentFailed:
		if _, err := s.markFailed(ctx, reg, payment.ID, "CONFIRM"); err != nil {
			return nil, err
		}
	default:
		res := confirmResult(reg, model.ConfirmProcessing)
		res.GatewayStatus = payment.Status
		return res, nil
	}

	// Report what is stored, which may differ from the gateway's view when
	// a concurrent path already settled the registration.
	current, err := s.regs.GetByID(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}
	res := confirmResult(current, model.ConfirmStatus(current.Status))
	res.GatewayStatus = payment.Status
	return res, nil
}

func confirmResult(reg *model.Registration, status model.ConfirmStatus) *model.ConfirmResult {
	return &model.ConfirmResult{
		Status:         status,
		RegistrationID: reg.ID,
		Event:          reg.Event,
		TeamName:       reg.TeamName,
		PaidAt:         reg.PaidAt,
	}
}
