package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/lock"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/notify"
)

const sweepLockKey = "reminder-sweep"

// ReminderStore is the slice of the registration store the sweeper needs.
type ReminderStore interface {
	ListReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.Registration, error)
	MarkReminderSent(ctx context.Context, id string) error
}

// SweeperConfig tunes the reminder sweep.
type SweeperConfig struct {
	Interval   time.Duration
	Threshold  time.Duration
	StartDelay time.Duration
	Batch      int
	// SendTimeout bounds each notification.
	SendTimeout time.Duration
}

// Sweeper reminds leaders of registrations left PENDING after an order was
// issued. A reminder failure leaves the flag clear so the next sweep retries.
type Sweeper struct {
	regs     ReminderStore
	notifier notify.Notifier
	locker   lock.Locker
	cfg      SweeperConfig
	now      func() time.Time

	running atomic.Bool
}

// NewSweeper constructs a Sweeper. locker may be nil, in which case only the
// in-process overlap guard applies.
func NewSweeper(regs ReminderStore, n notify.Notifier, locker lock.Locker, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 30 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Sweeper{
		regs:     regs,
		notifier: n,
		locker:   locker,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one reminder pass. It is skipped when another pass is still in
// flight in this process or, with a shared locker, on another replica.
func (s *Sweeper) Sweep(ctx context.Context) (model.SweepResult, error) {
	var res model.SweepResult
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("[REMINDER] previous sweep still running, skipping")
		res.Skipped = true
		return res, nil
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL())
		if err != nil {
			return res, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			log.Printf("[REMINDER] sweep held by another instance, skipping")
			res.Skipped = true
			return res, nil
		}
		defer release()
	}

	cutoff := s.now().Add(-s.cfg.Threshold)
	candidates, err := s.regs.ListReminderCandidates(ctx, cutoff, s.cfg.Batch)
	if err != nil {
		return res, fmt.Errorf("list reminder candidates: %w", err)
	}
	res.Candidates = len(candidates)

	for _, reg := range candidates {
		if ctx.Err() != nil {
			break
		}
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		ok := notify.Safe(sendCtx, s.notifier, model.NotifyReminder, reg.ID)
		cancel()
		if !ok {
			res.Failed++
			log.Printf("[REMINDER] reminder for %s not delivered, will retry next sweep", reg.ID)
			continue
		}
		res.Sent++
		// The reminder is out; a shutdown now must not leave it unflagged.
		if err := s.regs.MarkReminderSent(context.WithoutCancel(ctx), reg.ID); err != nil {
			log.Printf("[REMINDER] sent reminder for %s but could not flag it: %v", reg.ID, err)
		}
	}

	if res.Candidates > 0 {
		log.Printf("[REMINDER] sweep done: candidates=%d sent=%d failed=%d", res.Candidates, res.Sent, res.Failed)
	}
	return res, ctx.Err()
}

// lockTTL covers a full batch of sends at their timeout, and never less than
// one interval.
func (s *Sweeper) lockTTL() time.Duration {
	return max(s.cfg.Interval, time.Duration(s.cfg.Batch)*s.cfg.SendTimeout)
}

// Run sweeps on a fixed interval, starting after StartDelay, until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[REMINDER] scheduler started (interval %s, first run in %s)", s.cfg.Interval, s.cfg.StartDelay)
	timer := time.NewTimer(s.cfg.StartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[REMINDER] sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Printf("[REMINDER] scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
