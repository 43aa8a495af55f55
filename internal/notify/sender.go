// Package notify wraps outbound SMS/push providers with timeouts, bounded
// retries, and a circuit breaker. Delivery failures never reach callers:
// the worst case is a durable outbox entry for operations tooling to
// replay.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/store"
)

// Sender is a single outbound channel (SMS or push).
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, recipient, body string) error

func (f SenderFunc) Send(ctx context.Context, recipient, body string) error {
	return f(ctx, recipient, body)
}

var errAttemptTimeout = errors.New("send attempt timed out")

// Breaker counts consecutive provider failures and opens for a cooldown
// window once the threshold is hit. One success closes it again.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	now       func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether the provider may be attempted. After the cooldown
// elapses the breaker lets the next call through to probe the provider.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	return b.now().Sub(b.openedAt) >= b.cooldown
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	// A failure at or past the threshold restarts the cooldown, so a
	// failed post-cooldown probe re-opens the breaker.
	if b.failures >= b.threshold {
		b.openedAt = b.now()
	}
}

// ResilientSender delivers through one channel with per-attempt timeouts,
// linear backoff between attempts, and a breaker shared across calls.
type ResilientSender struct {
	kind    string
	sender  Sender
	outbox  store.OutboxStore
	breaker *Breaker

	attemptTimeout time.Duration
	maxAttempts    int
	backoffBase    time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

func NewResilientSender(kind string, sender Sender, outbox store.OutboxStore, cfg config.NotifyConfig) *ResilientSender {
	return &ResilientSender{
		kind:           kind,
		sender:         sender,
		outbox:         outbox,
		breaker:        NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		attemptTimeout: cfg.AttemptTimeout,
		maxAttempts:    cfg.MaxAttempts,
		backoffBase:    cfg.BackoffBase,
		sleep:          time.Sleep,
		now:            time.Now,
	}
}

// Send delivers best-effort. It never returns an error: a message that
// cannot be delivered is queued in the outbox instead.
func (r *ResilientSender) Send(ctx context.Context, recipient, body, jobID string) {
	if recipient == "" {
		return
	}

	if !r.breaker.Allow() {
		slog.WarnContext(ctx, "notification skipped, breaker open",
			"kind", r.kind, "job_id", jobID)
		r.queue(ctx, recipient, body, jobID, "breaker_open")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.attempt(ctx, recipient, body)
		if err == nil {
			r.breaker.Success()
			return
		}
		lastErr = err
		r.breaker.Failure()
		slog.WarnContext(ctx, "notification attempt failed",
			"kind", r.kind, "job_id", jobID, "attempt", attempt, "error", err)
		if !r.breaker.Allow() {
			break
		}
		if attempt < r.maxAttempts {
			r.sleep(time.Duration(attempt) * r.backoffBase)
		}
	}

	r.queue(ctx, recipient, body, jobID, lastErr.Error())
}

// attempt races the provider call against a timer. The provider's own
// timeout behavior is not trusted; a slow call is abandoned (it runs to
// completion in the background, mid-send cancellation is not supported).
func (r *ResilientSender) attempt(ctx context.Context, recipient, body string) error {
	done := make(chan error, 1)
	go func() {
		done <- r.sender.Send(ctx, recipient, body)
	}()

	timer := time.NewTimer(r.attemptTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", errAttemptTimeout, r.attemptTimeout)
	}
}

func (r *ResilientSender) queue(ctx context.Context, recipient, body, jobID, reason string) {
	entry := model.OutboxEntry{
		ID:        generateID("obx"),
		Kind:      r.kind,
		Recipient: recipient,
		Body:      body,
		JobID:     jobID,
		Status:    model.OutboxQueued,
		Error:     reason,
		CreatedAt: r.now().UTC(),
	}
	if err := r.outbox.AppendOutbox(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to queue outbox entry",
			"kind", r.kind, "job_id", jobID, "error", err)
	}
}

func generateID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}
