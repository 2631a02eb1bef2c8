package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/config"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/database"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/gateway"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/handler"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/notify"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/service"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	a, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer a.close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, a.pool); err != nil {
			return err
		}
		log.Println("✓ Schema migrated")
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	gw := gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
	dispatcher := notify.NewDispatcher(a.notifier, 30*time.Second)

	eventSvc := service.NewEventService(a.events)
	regSvc := service.NewRegistrationService(a.events, a.regs, dispatcher)
	paymentSvc := service.NewPaymentService(a.regs, gw, dispatcher, a.audit, cfg.Currency)
	sweeper := a.sweeper()

	h := handler.New(eventSvc, regSvc, paymentSvc, sweeper)

	// ── 3. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(h, handler.RouterConfig{
		FrontendURL:   cfg.FrontendURL,
		WebhookSecret: cfg.RazorpayWebhookSecret,
		JWTSecret:     cfg.JWTAccessSecret,
		DB:            a.pool,
	})

	// ── 4. Start the sweeper and the server ───────────────────────────────
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("✓ Server listening on http://localhost:%s (%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		stopSweeper()
		<-sweepDone
		return fmt.Errorf("server error: %w", err)
	}

	log.Println("shutting down server…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	stopSweeper()
	<-sweepDone
	dispatcher.Wait()
	log.Println("server stopped")
	return nil
}
