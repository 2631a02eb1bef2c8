package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/gateway"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
	"github.com/google/uuid"
)

// memStore is an in-memory RegistrationStore and EventStore with the same
// conditional-write semantics as the Postgres repository.
type memStore struct {
	mu     sync.Mutex
	events map[string]model.Event
	regs   map[string]*model.Registration
	order  []string
}

func newMemStore(events ...model.Event) *memStore {
	s := &memStore{events: make(map[string]model.Event), regs: make(map[string]*model.Registration)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *memStore) listEvents(liveOnly bool) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, e := range s.events {
		if liveOnly && !e.IsLive {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *memStore) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Slug == slug {
			e := e
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

// eventStore exposes the event half of memStore, since both halves define
// GetByID and List.
type eventStore struct{ *memStore }

func (s eventStore) List(ctx context.Context, liveOnly bool) ([]model.Event, error) {
	return s.listEvents(liveOnly)
}

func (s eventStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func clone(r *model.Registration) *model.Registration {
	c := *r
	c.Participants = append([]model.Participant(nil), r.Participants...)
	if r.Event != nil {
		ev := *r.Event
		c.Event = &ev
	}
	return &c
}

func (s *memStore) Create(ctx context.Context, reg *model.Registration) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[reg.EventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var pending *model.Registration
	taken := 0
	for _, id := range s.order {
		r := s.regs[id]
		if r.EventID != reg.EventID {
			continue
		}
		if r.Status == model.StatusSuccess {
			taken++
		}
		if !strings.EqualFold(r.CreatedByEmail, reg.CreatedByEmail) {
			continue
		}
		switch r.Status {
		case model.StatusSuccess:
			return nil, repository.ErrAlreadyRegistered
		case model.StatusPending:
			pending = r
		}
	}
	if pending != nil {
		c := clone(pending)
		c.IsResume = true
		return c, nil
	}
	if event.MaxSeats != nil && taken >= *event.MaxSeats {
		return nil, repository.ErrEventFull
	}
	reg.ID = uuid.New().String()
	reg.CreatedAt = time.Now().UTC()
	for i := range reg.Participants {
		reg.Participants[i].ID = uuid.New().String()
		reg.Participants[i].RegistrationID = reg.ID
	}
	s.regs[reg.ID] = clone(reg)
	s.order = append(s.order, reg.ID)
	return reg, nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(r), nil
}

func (s *memStore) GetByOrderID(ctx context.Context, orderID string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.regs {
		if r.RazorpayOrderID != nil && *r.RazorpayOrderID == orderID {
			return clone(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListByLeaderEmail(ctx context.Context, email string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, id := range s.order {
		if r := s.regs[id]; r.CreatedByEmail == email {
			out = append(out, *clone(r))
		}
	}
	return out, nil
}

func (s *memStore) List(ctx context.Context, f model.RegistrationFilter) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, id := range s.order {
		r := s.regs[id]
		if f.EventID != "" && r.EventID != f.EventID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *clone(r))
	}
	return out, nil
}

func (s *memStore) Stats(ctx context.Context, eventID string) (model.RegistrationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.RegistrationStats
	for _, r := range s.regs {
		if eventID != "" && r.EventID != eventID {
			continue
		}
		st.Total++
		switch r.Status {
		case model.StatusSuccess:
			st.Success++
		case model.StatusPending:
			st.Pending++
		case model.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (s *memStore) LinkOrder(ctx context.Context, id, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.regs {
		if r.ID != id && r.RazorpayOrderID != nil && *r.RazorpayOrderID == orderID {
			return repository.ErrDuplicateOrder
		}
	}
	r, ok := s.regs[id]
	if !ok || r.Status == model.StatusSuccess {
		return repository.ErrStale
	}
	r.RazorpayOrderID = &orderID
	return nil
}

func (s *memStore) MarkSuccess(ctx context.Context, id string, paymentID, signature *string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok || r.Status == model.StatusSuccess {
		return false, nil
	}
	for _, other := range s.regs {
		if other.ID != id && other.EventID == r.EventID && other.Status == model.StatusSuccess &&
			strings.EqualFold(other.CreatedByEmail, r.CreatedByEmail) {
			return false, repository.ErrSuccessExists
		}
	}
	r.Status = model.StatusSuccess
	if paymentID != nil {
		r.RazorpayPaymentID = paymentID
	}
	if signature != nil {
		r.RazorpaySignature = signature
	}
	r.PaidAt = &paidAt
	return true, nil
}

func (s *memStore) MarkFailed(ctx context.Context, id, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok || r.Status != model.StatusPending {
		return false, nil
	}
	r.Status = model.StatusFailed
	if paymentID != "" {
		r.RazorpayPaymentID = &paymentID
	}
	return true, nil
}

func (s *memStore) ListReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, id := range s.order {
		r := s.regs[id]
		if r.Status == model.StatusPending && !r.ReminderSent && !r.CreatedAt.After(cutoff) &&
			r.Amount > 0 && r.RazorpayOrderID != nil {
			out = append(out, *clone(r))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MarkReminderSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.ReminderSent = true
	return nil
}

// put inserts a registration directly, bypassing intake.
func (s *memStore) put(r *model.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	s.regs[r.ID] = clone(r)
	s.order = append(s.order, r.ID)
}

func (s *memStore) get(id string) *model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.regs[id])
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

// mockGateway records calls and delegates to optional Func fields.
type mockGateway struct {
	mu                sync.Mutex
	CreateOrderFunc   func(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error)
	FetchOrderFunc    func(ctx context.Context, id string) (*gateway.Order, error)
	FetchPaymentFunc  func(ctx context.Context, id string) (*gateway.Payment, error)
	createCalls       int
	fetchPaymentCalls int
	lastRequest       gateway.OrderRequest
}

func (m *mockGateway) KeyID() string { return "rzp_test_key" }

func (m *mockGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	m.mu.Lock()
	m.createCalls++
	m.lastRequest = req
	n := m.createCalls
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, req)
	}
	return &gateway.Order{
		ID:       "order_" + string(rune('A'-1+n)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
		Receipt:  req.Receipt,
	}, nil
}

func (m *mockGateway) FetchOrder(ctx context.Context, id string) (*gateway.Order, error) {
	if m.FetchOrderFunc != nil {
		return m.FetchOrderFunc(ctx, id)
	}
	return &gateway.Order{ID: id, Amount: 10000, Currency: "INR", Status: "created"}, nil
}

func (m *mockGateway) FetchPayment(ctx context.Context, id string) (*gateway.Payment, error) {
	m.mu.Lock()
	m.fetchPaymentCalls++
	m.mu.Unlock()
	if m.FetchPaymentFunc != nil {
		return m.FetchPaymentFunc(ctx, id)
	}
	return nil, gateway.ErrUnavailable
}

func (m *mockGateway) creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// recordingDispatcher collects notifications synchronously.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	kind model.NotificationKind
	id   string
}

func (d *recordingDispatcher) Go(kind model.NotificationKind, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentNotification{kind, id})
}

func (d *recordingDispatcher) count(kind model.NotificationKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type memAudit struct {
	mu     sync.Mutex
	events []model.WebhookEvent
}

func (a *memAudit) RecordWebhook(ctx context.Context, ev *model.WebhookEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *ev)
	return nil
}

func (a *memAudit) last() model.WebhookEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events[len(a.events)-1]
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func paidEvent() model.Event {
	return model.Event{
		ID:          uuid.New().String(),
		Slug:        "code-relay",
		Title:       "Code Relay",
		Fee:         100,
		MinTeamSize: 2,
		MaxTeamSize: 4,
		MaxSeats:    intPtr(1),
		IsLive:      true,
	}
}

func freeEvent() model.Event {
	return model.Event{
		ID:          uuid.New().String(),
		Slug:        "open-quiz",
		Title:       "Open Quiz",
		Fee:         0,
		MinTeamSize: 1,
		MaxTeamSize: 3,
		IsLive:      true,
	}
}

// team builds n participants; the first is the leader with leaderEmail.
func team(leaderEmail string, n int) []model.ParticipantInput {
	out := make([]model.ParticipantInput, 0, n)
	for i := 0; i < n; i++ {
		email := leaderEmail
		if i > 0 {
			email = "member" + string(rune('0'+i)) + "@example.com"
		}
		out = append(out, model.ParticipantInput{
			FullName: "Participant " + string(rune('A'+i)),
			Email:    email,
			Phone:    "9876543210",
			College:  "City College",
			IsLeader: i == 0,
		})
	}
	return out
}

type fixture struct {
	store    *memStore
	gw       *mockGateway
	notes    *recordingDispatcher
	audit    *memAudit
	regs     *RegistrationService
	payments *PaymentService
	now      time.Time
}

func newFixture(events ...model.Event) *fixture {
	f := &fixture{
		store: newMemStore(events...),
		gw:    &mockGateway{},
		notes: &recordingDispatcher{},
		audit: &memAudit{},
		now:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.regs = NewRegistrationService(eventStore{f.store}, f.store, f.notes)
	f.regs.now = clock
	f.payments = NewPaymentService(f.store, f.gw, f.notes, f.audit, "INR")
	f.payments.now = clock
	return f
}
