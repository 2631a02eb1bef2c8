package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/lock"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/notify"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
	ok    bool
}

func (n *countingNotifier) Send(ctx context.Context, kind model.NotificationKind, id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[id]++
	return n.ok
}

func (n *countingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

func newTestSweeper(store *memStore, n notify.Notifier, now time.Time) *Sweeper {
	s := NewSweeper(store, n, lock.NewLocal(), SweeperConfig{})
	s.now = func() time.Time { return now }
	return s
}

func seedReminderCandidates(store *memStore, now time.Time) (due *model.Registration) {
	order := "order_due"
	due = &model.Registration{
		Status: model.StatusPending, Amount: 100, RazorpayOrderID: &order,
		CreatedAt: now.Add(-31 * time.Minute), CreatedByEmail: "due@x.com",
	}
	store.put(due)

	other := "order_other"
	store.put(&model.Registration{ // too recent
		Status: model.StatusPending, Amount: 100, RazorpayOrderID: &other,
		CreatedAt: now.Add(-10 * time.Minute), CreatedByEmail: "recent@x.com",
	})
	store.put(&model.Registration{ // no order issued
		Status: model.StatusPending, Amount: 100,
		CreatedAt: now.Add(-2 * time.Hour), CreatedByEmail: "noorder@x.com",
	})
	paid := "order_paid"
	store.put(&model.Registration{ // already paid
		Status: model.StatusSuccess, Amount: 100, RazorpayOrderID: &paid,
		CreatedAt: now.Add(-2 * time.Hour), CreatedByEmail: "paid@x.com",
	})
	return due
}

func TestSweepRemindsOnlyEligibleOnce(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	due := seedReminderCandidates(store, now)
	n := &countingNotifier{ok: true}
	s := newTestSweeper(store, n, now)

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Candidates != 1 || res.Sent != 1 || res.Failed != 0 {
		t.Errorf("first sweep = %+v", res)
	}
	if n.calls[due.ID] != 1 {
		t.Errorf("due registration reminded %d times", n.calls[due.ID])
	}
	if !store.get(due.ID).ReminderSent {
		t.Error("reminderSent not set after successful send")
	}

	res, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Candidates != 0 || n.total() != 1 {
		t.Errorf("second sweep re-notified: %+v, total calls %d", res, n.total())
	}
}

func TestSweepRetriesFailedDelivery(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	due := seedReminderCandidates(store, now)
	n := &countingNotifier{ok: false}
	s := newTestSweeper(store, n, now)

	for i := 0; i < 2; i++ {
		res, err := s.Sweep(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Failed != 1 {
			t.Errorf("sweep %d = %+v, want one failure", i, res)
		}
	}
	if store.get(due.ID).ReminderSent {
		t.Error("reminderSent set after failed delivery")
	}
	if n.calls[due.ID] != 2 {
		t.Errorf("calls = %d, want a retry on each sweep", n.calls[due.ID])
	}

	n.ok = true
	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !store.get(due.ID).ReminderSent {
		t.Error("reminderSent not set once delivery recovered")
	}
}

func TestSweepTreatsPanicAsFailure(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	due := seedReminderCandidates(store, now)
	n := notify.NotifierFunc(func(ctx context.Context, kind model.NotificationKind, id string) bool {
		panic("smtp exploded")
	})
	s := newTestSweeper(store, n, now)

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || store.get(due.ID).ReminderSent {
		t.Errorf("res = %+v, reminderSent = %v", res, store.get(due.ID).ReminderSent)
	}
}

func TestSweepSkipsWhileRunning(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedReminderCandidates(store, now)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	n := notify.NotifierFunc(func(ctx context.Context, kind model.NotificationKind, id string) bool {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
		}
		<-release
		return true
	})
	s := newTestSweeper(store, n, now)

	done := make(chan model.SweepResult)
	go func() {
		res, _ := s.Sweep(context.Background())
		done <- res
	}()
	<-entered

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("overlapping sweep was not skipped")
	}

	close(release)
	if first := <-done; first.Sent != 1 {
		t.Errorf("first sweep = %+v", first)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("notifier calls = %d, want 1", got)
	}
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedReminderCandidates(store, now)
	locker := lock.NewLocal()
	release, ok, _ := locker.TryLock(context.Background(), sweepLockKey, time.Minute)
	if !ok {
		t.Fatal("could not take lock")
	}
	defer release()

	n := &countingNotifier{ok: true}
	s := NewSweeper(store, n, locker, SweeperConfig{})
	s.now = func() time.Time { return now }

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || n.total() != 0 {
		t.Errorf("res = %+v, calls = %d", res, n.total())
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	due := seedReminderCandidates(store, now)
	n := &countingNotifier{ok: true}
	s := NewSweeper(store, n, nil, SweeperConfig{Interval: 10 * time.Millisecond, StartDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for !store.get(due.ID).ReminderSent {
		select {
		case <-deadline:
			t.Fatal("Run never swept")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// cancelAwareStore fails writes made on a cancelled context, as pgx does.
type cancelAwareStore struct{ *memStore }

func (s cancelAwareStore) MarkReminderSent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.MarkReminderSent(ctx, id)
}

func TestSweepFlagsReminderSentDuringShutdown(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	due := seedReminderCandidates(store, now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := notify.NotifierFunc(func(ctx context.Context, kind model.NotificationKind, id string) bool {
		cancel()
		return true
	})
	s := NewSweeper(cancelAwareStore{store}, n, nil, SweeperConfig{})
	s.now = func() time.Time { return now }

	res, _ := s.Sweep(ctx)
	if res.Sent != 1 {
		t.Fatalf("sent = %d, want 1", res.Sent)
	}
	if !store.get(due.ID).ReminderSent {
		t.Error("reminder delivered but not flagged after cancellation")
	}
}

type ttlLocker struct{ ttl time.Duration }

func (l *ttlLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.ttl = ttl
	return func() {}, true, nil
}

func TestSweepLockCoversWholeBatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  SweeperConfig
		want time.Duration
	}{
		{"batch dominates", SweeperConfig{Interval: time.Minute, Batch: 10, SendTimeout: 30 * time.Second}, 5 * time.Minute},
		{"interval dominates", SweeperConfig{Interval: time.Hour, Batch: 2, SendTimeout: time.Second}, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locker := &ttlLocker{}
			s := NewSweeper(newMemStore(), &countingNotifier{ok: true}, locker, tt.cfg)
			if _, err := s.Sweep(context.Background()); err != nil {
				t.Fatal(err)
			}
			if locker.ttl != tt.want {
				t.Errorf("lock ttl = %v, want %v", locker.ttl, tt.want)
			}
		})
	}
}
