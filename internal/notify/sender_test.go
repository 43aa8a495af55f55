package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/model"
	"github.com/torqueops/dispatch/internal/store"
)

type flakySender struct {
	calls int
	errs  []error
	delay time.Duration
}

func (f *flakySender) Send(ctx context.Context, recipient, body string) error {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

func testConfig() config.NotifyConfig {
	return config.NotifyConfig{
		AttemptTimeout:   100 * time.Millisecond,
		MaxAttempts:      1,
		BackoffBase:      time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  time.Hour,
	}
}

func newTestSender(provider Sender, outbox store.OutboxStore, cfg config.NotifyConfig) *ResilientSender {
	rs := NewResilientSender("sms", provider, outbox, cfg)
	rs.sleep = func(time.Duration) {}
	return rs
}

func TestRetriesThenQueues(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	provider := &flakySender{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}

	cfg := testConfig()
	cfg.MaxAttempts = 3
	rs := newTestSender(provider, outbox, cfg)

	rs.Send(ctx, "+15550001111", "hello", "job_1")

	assert.Equal(t, 3, provider.calls)
	entries, err := outbox.ListOutbox(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.OutboxQueued, entries[0].Status)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, "job_1", entries[0].JobID)
}

func TestSuccessAfterRetryLeavesNoOutboxEntry(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	provider := &flakySender{errs: []error{errors.New("boom")}}

	cfg := testConfig()
	cfg.MaxAttempts = 3
	rs := newTestSender(provider, outbox, cfg)

	rs.Send(ctx, "+15550001111", "hello", "job_1")

	assert.Equal(t, 2, provider.calls)
	entries, _ := outbox.ListOutbox(ctx, 0)
	assert.Empty(t, entries)
}

func TestBreakerOpensAfterThresholdAndSkipsProvider(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	fail := errors.New("provider down")
	provider := &flakySender{errs: []error{fail, fail, fail, fail, fail, fail, fail}}

	rs := newTestSender(provider, outbox, testConfig())

	// Five consecutive failed calls trip the breaker.
	for i := 0; i < 5; i++ {
		rs.Send(ctx, "+15550001111", "hello", "job_1")
	}
	assert.Equal(t, 5, provider.calls)

	// The sixth call must not touch the provider and lands in the outbox
	// with the breaker reason.
	rs.Send(ctx, "+15550001111", "hello", "job_1")
	assert.Equal(t, 5, provider.calls)

	entries, err := outbox.ListOutbox(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "breaker_open", entries[0].Error)
	assert.Equal(t, model.OutboxQueued, entries[0].Status)
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	fail := errors.New("provider down")
	provider := &flakySender{errs: []error{fail, fail, fail, fail, fail}}

	cfg := testConfig()
	rs := newTestSender(provider, outbox, cfg)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rs.breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		rs.Send(ctx, "+15550001111", "hello", "job_1")
	}
	assert.Equal(t, 5, provider.calls)
	assert.False(t, rs.breaker.Allow())

	// Cooldown elapses: the next call probes the provider again, and a
	// single success resets the failure count.
	now = now.Add(cfg.BreakerCooldown)
	rs.Send(ctx, "+15550001111", "hello", "job_1")
	assert.Equal(t, 6, provider.calls)
	assert.True(t, rs.breaker.Allow())
}

func TestBreakerReopensAfterFailedProbe(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	fail := errors.New("provider down")
	provider := &flakySender{errs: []error{fail, fail, fail, fail, fail, fail}}

	cfg := testConfig()
	rs := newTestSender(provider, outbox, cfg)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rs.breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		rs.Send(ctx, "+15550001111", "hello", "job_1")
	}
	assert.Equal(t, 5, provider.calls)

	// Cooldown elapses and the probe fails too: the breaker must open for
	// a fresh cooldown window, not stay closed on the stale timestamp.
	now = now.Add(cfg.BreakerCooldown)
	rs.Send(ctx, "+15550001111", "hello", "job_1")
	assert.Equal(t, 6, provider.calls)
	assert.False(t, rs.breaker.Allow())

	now = now.Add(time.Second)
	rs.Send(ctx, "+15550001111", "hello", "job_1")
	assert.Equal(t, 6, provider.calls, "provider must not be attempted while re-opened")

	entries, err := outbox.ListOutbox(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "breaker_open", entries[0].Error)
}

func TestAttemptTimeoutIsEnforced(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	provider := &flakySender{delay: 300 * time.Millisecond}

	cfg := testConfig()
	cfg.AttemptTimeout = 20 * time.Millisecond
	rs := newTestSender(provider, outbox, cfg)

	start := time.Now()
	rs.Send(ctx, "+15550001111", "hello", "job_1")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 250*time.Millisecond, "caller must not block past the attempt timeout")
	entries, _ := outbox.ListOutbox(ctx, 0)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "timed out")
}

func TestEmptyRecipientIsDropped(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryStore()
	provider := &flakySender{}
	rs := newTestSender(provider, outbox, testConfig())

	rs.Send(ctx, "", "hello", "job_1")
	assert.Zero(t, provider.calls)
	entries, _ := outbox.ListOutbox(ctx, 0)
	assert.Empty(t, entries)
}
