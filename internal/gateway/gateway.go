// Package gateway adapts the Razorpay orders and payments API to the small
// contract the payment core consumes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// ErrUnavailable wraps every failure talking to the gateway: network errors,
// timeouts and 4xx/5xx responses alike. Callers treat it as transient.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Order is the subset of a gateway order the core reads.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
	Receipt  string
}

// Paid reports whether the gateway considers the order fully paid.
func (o *Order) Paid() bool {
	return o.Status == "paid"
}

// Payment is the subset of a gateway payment the core reads.
type Payment struct {
	ID      string
	OrderID string
	Status  string
	Amount  int64
}

// OrderRequest describes a new order. Amount is in minor currency units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Razorpay is the production gateway client. It is created once per process
// and shared by every component that needs it.
type Razorpay struct {
	client  *razorpay.Client
	keyID   string
	timeout time.Duration
}

// NewRazorpay constructs a client for the given key pair.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Razorpay{
		client:  razorpay.NewClient(keyID, keySecret),
		keyID:   keyID,
		timeout: timeout,
	}
}

// KeyID returns the publishable key clients need to open checkout.
func (g *Razorpay) KeyID() string {
	return g.keyID
}

// CreateOrder creates a new gateway order.
func (g *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}
	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Order.Create(data, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return orderFromMap(body)
}

// FetchOrder loads an existing order.
func (g *Razorpay) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Order.Fetch(orderID, nil, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return orderFromMap(body)
}

// FetchPayment loads a payment by id.
func (g *Razorpay) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Payment.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	return paymentFromMap(body)
}

type result struct {
	body map[string]interface{}
	err  error
}

// call runs fn bounded by both ctx and the client timeout. The SDK has no
// context support, so a timed-out call is abandoned rather than cancelled.
func (g *Razorpay) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, res.err)
		}
		return res.body, nil
	}
}

func orderFromMap(m map[string]interface{}) (*Order, error) {
	o := &Order{
		ID:       str(m, "id"),
		Amount:   num(m, "amount"),
		Currency: str(m, "currency"),
		Status:   str(m, "status"),
		Receipt:  str(m, "receipt"),
	}
	if o.ID == "" {
		return nil, fmt.Errorf("%w: order response without id", ErrUnavailable)
	}
	return o, nil
}

func paymentFromMap(m map[string]interface{}) (*Payment, error) {
	p := &Payment{
		ID:      str(m, "id"),
		OrderID: str(m, "order_id"),
		Status:  str(m, "status"),
		Amount:  num(m, "amount"),
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: payment response without id", ErrUnavailable)
	}
	return p, nil
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func num(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
