package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/database"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testPool connects to TEST_DATABASE_URL and applies the schema.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return pool
}

func testEvent(t *testing.T, pool *pgxpool.Pool, fee int, maxSeats *int) *model.Event {
	t.Helper()
	e := &model.Event{
		Slug:        "test-" + uuid.New().String()[:8],
		Title:       "Integration Event",
		Fee:         fee,
		MinTeamSize: 1,
		MaxTeamSize: 4,
		MaxSeats:    maxSeats,
		IsLive:      true,
	}
	if err := NewEventRepository(pool).Upsert(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1`, e.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, e.ID)
	})
	return e
}

func newRegistration(eventID, leader string, status model.PaymentStatus, amount int) *model.Registration {
	return &model.Registration{
		EventID:        eventID,
		TeamName:       "Team " + leader,
		Amount:         amount,
		Status:         status,
		CreatedByEmail: leader,
		Participants: []model.Participant{
			{FullName: "Leader", Email: leader, Phone: "9876543210", College: "City College", IsLeader: true},
		},
	}
}

func TestEventUpsertBySlug(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewEventRepository(pool)
	e := testEvent(t, pool, 100, nil)

	again := *e
	again.ID = ""
	again.Title = "Renamed"
	if err := repo.Upsert(ctx, &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != e.ID {
		t.Errorf("upsert created a second event: %s vs %s", again.ID, e.ID)
	}

	got, err := repo.GetBySlug(ctx, e.Slug)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Renamed" {
		t.Errorf("Title = %q", got.Title)
	}
	if _, err := repo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateResumeAndDuplicate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(pool)
	e := testEvent(t, pool, 100, nil)

	first, err := repo.Create(ctx, newRegistration(e.ID, "lead@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.Create(ctx, newRegistration(e.ID, "lead@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || !second.IsResume {
		t.Errorf("second create = %s resume=%v, want resume of %s", second.ID, second.IsResume, first.ID)
	}

	changed, err := repo.MarkSuccess(ctx, first.ID, nil, nil, time.Now())
	if err != nil || !changed {
		t.Fatalf("MarkSuccess = %v, %v", changed, err)
	}
	if _, err := repo.Create(ctx, newRegistration(e.ID, "lead@x.com", model.StatusPending, 100)); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestCreateRespectsCapacity(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(pool)
	one := 1
	e := testEvent(t, pool, 0, &one)

	if _, err := repo.Create(ctx, newRegistration(e.ID, "a@x.com", model.StatusSuccess, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, newRegistration(e.ID, "b@x.com", model.StatusSuccess, 0)); !errors.Is(err, ErrEventFull) {
		t.Errorf("err = %v, want ErrEventFull", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(pool)
	e := testEvent(t, pool, 100, nil)
	reg, err := repo.Create(ctx, newRegistration(e.ID, "t@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name string
		run  func() (bool, error)
		want bool
		then model.PaymentStatus
	}{
		{"pending to failed", func() (bool, error) { return repo.MarkFailed(ctx, reg.ID, "pay_1") }, true, model.StatusFailed},
		{"failed again", func() (bool, error) { return repo.MarkFailed(ctx, reg.ID, "pay_1") }, false, model.StatusFailed},
		{"failed to success", func() (bool, error) {
			p := "pay_2"
			return repo.MarkSuccess(ctx, reg.ID, &p, nil, time.Now())
		}, true, model.StatusSuccess},
		{"success replay", func() (bool, error) { return repo.MarkSuccess(ctx, reg.ID, nil, nil, time.Now()) }, false, model.StatusSuccess},
		{"failed after success", func() (bool, error) { return repo.MarkFailed(ctx, reg.ID, "pay_3") }, false, model.StatusSuccess},
	}
	for _, step := range steps {
		changed, err := step.run()
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if changed != step.want {
			t.Errorf("%s: changed = %v, want %v", step.name, changed, step.want)
		}
		got, err := repo.GetByID(ctx, reg.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != step.then {
			t.Errorf("%s: status = %s, want %s", step.name, got.Status, step.then)
		}
	}

	got, _ := repo.GetByID(ctx, reg.ID)
	if got.RazorpayPaymentID == nil || *got.RazorpayPaymentID != "pay_2" {
		t.Errorf("payment id = %v, want pay_2", got.RazorpayPaymentID)
	}
}

func TestSuccessIndexBlocksSecondSuccess(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(pool)
	e := testEvent(t, pool, 100, nil)

	a, err := repo.Create(ctx, newRegistration(e.ID, "dup@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}
	// A FAILED attempt lets the leader start a second registration.
	if _, err := repo.MarkFailed(ctx, a.ID, ""); err != nil {
		t.Fatal(err)
	}
	b, err := repo.Create(ctx, newRegistration(e.ID, "dup@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := repo.MarkSuccess(ctx, b.ID, nil, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.MarkSuccess(ctx, a.ID, nil, nil, time.Now()); !errors.Is(err, ErrSuccessExists) {
		t.Errorf("err = %v, want ErrSuccessExists", err)
	}
}

func TestLinkOrderAndReminderCandidates(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(pool)
	e := testEvent(t, pool, 100, nil)

	reg := newRegistration(e.ID, "r@x.com", model.StatusPending, 100)
	reg.CreatedAt = time.Now().Add(-time.Hour)
	if _, err := repo.Create(ctx, reg); err != nil {
		t.Fatal(err)
	}

	orderID := "order_" + uuid.New().String()[:12]
	cutoff := time.Now().Add(-30 * time.Minute)
	if c := candidateIDs(t, repo, cutoff); c[reg.ID] {
		t.Error("registration without an order is a reminder candidate")
	}

	if err := repo.LinkOrder(ctx, reg.ID, orderID); err != nil {
		t.Fatal(err)
	}
	byOrder, err := repo.GetByOrderID(ctx, orderID)
	if err != nil || byOrder.ID != reg.ID {
		t.Fatalf("GetByOrderID = %v, %v", byOrder, err)
	}
	if c := candidateIDs(t, repo, cutoff); !c[reg.ID] {
		t.Error("registration with an order is not a reminder candidate")
	}

	if err := repo.MarkReminderSent(ctx, reg.ID); err != nil {
		t.Fatal(err)
	}
	if c := candidateIDs(t, repo, cutoff); c[reg.ID] {
		t.Error("reminded registration is still a candidate")
	}

	other, err := repo.Create(ctx, newRegistration(e.ID, "o@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.LinkOrder(ctx, other.ID, orderID); !errors.Is(err, ErrDuplicateOrder) {
		t.Errorf("err = %v, want ErrDuplicateOrder", err)
	}
}

func TestAuditInserts(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	audit := NewAuditRepository(pool)
	regs := NewRegistrationRepository(pool)
	e := testEvent(t, pool, 100, nil)
	reg, err := regs.Create(ctx, newRegistration(e.ID, "audit@x.com", model.StatusPending, 100))
	if err != nil {
		t.Fatal(err)
	}

	l := &model.EmailLog{
		RegistrationID: &reg.ID,
		ToEmail:        "audit@x.com",
		Type:           string(model.NotifyReminder),
		Subject:        "Complete your payment",
		Status:         "SENT",
	}
	if err := audit.LogEmail(ctx, l); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM email_logs WHERE id = $1`, l.ID) })

	orderID := "order_audit"
	now := time.Now().UTC()
	ev := &model.WebhookEvent{
		EventType:   "payment.captured",
		OrderID:     &orderID,
		Outcome:     model.WebhookIgnored,
		ReceivedAt:  now,
		ProcessedAt: now,
	}
	if err := audit.RecordWebhook(ctx, ev); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM payment_webhook_events WHERE id = $1`, ev.ID)
	})

	var payload, outcome string
	err = pool.QueryRow(ctx,
		`SELECT payload::text, outcome FROM payment_webhook_events WHERE id = $1`, ev.ID,
	).Scan(&payload, &outcome)
	if err != nil {
		t.Fatal(err)
	}
	if payload != "{}" || outcome != "ignored" {
		t.Errorf("stored payload=%s outcome=%s", payload, outcome)
	}
}

func candidateIDs(t *testing.T, repo *RegistrationRepository, cutoff time.Time) map[string]bool {
	t.Helper()
	regs, err := repo.ListReminderCandidates(context.Background(), cutoff, 1000)
	if err != nil {
		t.Fatal(err)
	}
	ids := make(map[string]bool, len(regs))
	for _, r := range regs {
		ids[r.ID] = true
	}
	return ids
}
