package main

import (
	"context"
	"log"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/config"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/database"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/lock"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/notify"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/repository"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	events *repository.EventRepository
	regs   *repository.RegistrationRepository
	audit  *repository.AuditRepository

	notifier notify.Notifier
	locker   lock.Locker
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Println("✓ Connected to PostgreSQL")

	a := &app{
		cfg:     cfg,
		pool:    pool,
		events:  repository.NewEventRepository(pool),
		regs:    repository.NewRegistrationRepository(pool),
		audit:   repository.NewAuditRepository(pool),
		closers: []func(){pool.Close},
	}

	var sender notify.Sender
	if cfg.ResendAPIKey != "" {
		sender = notify.NewResendSender(cfg.ResendAPIKey)
	} else {
		log.Println("[EMAIL] RESEND_API_KEY not set, email notifications disabled")
	}
	a.notifier = notify.NewEmailNotifier(a.regs, a.audit, sender, cfg.EmailFrom, cfg.FrontendURL)

	a.locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		r, err := lock.NewRedis(cfg.RedisURL)
		if err == nil {
			err = r.Ping(ctx)
		}
		if err != nil {
			log.Printf("[REMINDER] redis unavailable, sweep lock is process-local: %v", err)
		} else {
			log.Println("✓ Connected to Redis for sweep locking")
			a.locker = r
			a.closers = append(a.closers, func() { _ = r.Close() })
		}
	}
	return a, nil
}

func (a *app) sweeper() *service.Sweeper {
	return service.NewSweeper(a.regs, a.notifier, a.locker, service.SweeperConfig{
		Interval:   a.cfg.ReminderInterval,
		Threshold:  a.cfg.ReminderThreshold,
		StartDelay: a.cfg.ReminderStartDelay,
		Batch:      a.cfg.ReminderBatch,
	})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
