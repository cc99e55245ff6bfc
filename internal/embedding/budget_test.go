package embedding

import (
	"context"
	"testing"
	"time"

	"jobmatch-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockBudget pins the tracker to a controllable clock.
func clockBudget(limit int, cooldown time.Duration, at *time.Time) *TokenBudget {
	b := NewTokenBudget(limit, cooldown)
	b.now = func() time.Time { return *at }
	b.windowStart = at.Truncate(24 * time.Hour)
	return b
}

func TestBudgetDisabledAllowsEverything(t *testing.T) {
	b := NewTokenBudget(0, time.Minute)
	require.NoError(t, b.Allow(context.Background(), 1_000_000))
	b.Record(1_000_000)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBudgetAllowsWithinLimit(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	b := clockBudget(100, time.Minute, &at)

	require.NoError(t, b.Allow(context.Background(), 60))
	b.Record(60)
	require.NoError(t, b.Allow(context.Background(), 40))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerOpensWhenSpendWouldExceedLimit(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	b := clockBudget(100, time.Minute, &at)
	b.Record(90)

	err := b.Allow(context.Background(), 20)
	var capacity *domain.CapacityExceededError
	require.ErrorAs(t, err, &capacity)
	assert.Equal(t, "embedding_budget", capacity.Resource)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerRejectsDuringCooldown(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	b := clockBudget(100, time.Minute, &at)
	b.Record(90)
	require.Error(t, b.Allow(context.Background(), 20))

	// While open, even a request that would fit is rejected.
	at = at.Add(30 * time.Second)
	var capacity *domain.CapacityExceededError
	require.ErrorAs(t, b.Allow(context.Background(), 5), &capacity)
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	b := clockBudget(100, time.Minute, &at)
	b.Record(90)
	require.Error(t, b.Allow(context.Background(), 20))

	at = at.Add(2 * time.Minute)
	assert.Equal(t, BreakerClosed, b.State())
	require.NoError(t, b.Allow(context.Background(), 5), "remaining budget is usable again")
	require.Error(t, b.Allow(context.Background(), 20), "the limit itself still holds")
}

func TestDayRolloverResetsSpend(t *testing.T) {
	at := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	b := clockBudget(100, time.Hour, &at)
	b.Record(90)
	require.Error(t, b.Allow(context.Background(), 50))

	at = time.Date(2026, 8, 30, 0, 30, 0, 0, time.UTC)
	require.NoError(t, b.Allow(context.Background(), 50), "fresh day, fresh budget")
	assert.Equal(t, BreakerClosed, b.State())
}

func TestAllowRespectsContext(t *testing.T) {
	b := NewTokenBudget(100, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Allow(ctx, 1), context.Canceled)
}
