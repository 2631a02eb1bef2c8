// Package notify delivers registration notifications. Callers only ever learn
// a boolean outcome; delivery errors and panics never propagate.
package notify

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
)

// Notifier sends one templated message about a registration.
type Notifier interface {
	Send(ctx context.Context, kind model.NotificationKind, registrationID string) bool
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, kind model.NotificationKind, registrationID string) bool

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, kind model.NotificationKind, registrationID string) bool {
	return f(ctx, kind, registrationID)
}

// Safe calls n.Send and reports a panic as a failed delivery.
func Safe(ctx context.Context, n Notifier, kind model.NotificationKind, registrationID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[NOTIFY] panic sending %s for %s: %v\n%s", kind, registrationID, r, debug.Stack())
			ok = false
		}
	}()
	return n.Send(ctx, kind, registrationID)
}

// Dispatcher runs fire-and-forget notifications in their own goroutines.
// The spawning request never waits on them; Wait lets shutdown drain them.
type Dispatcher struct {
	n       Notifier
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wraps n. Each send gets its own context bounded by timeout.
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{n: n, timeout: timeout}
}

// Go sends kind for registrationID in the background.
func (d *Dispatcher) Go(kind model.NotificationKind, registrationID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if !Safe(ctx, d.n, kind, registrationID) {
			log.Printf("[NOTIFY] %s notification for %s was not delivered", kind, registrationID)
		}
	}()
}

// Wait blocks until every notification started with Go has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
