package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobmatch-go/internal/domain"
)

// BreakerState is the circuit-breaker state of the budget tracker.
type BreakerState string

const (
	BreakerClosed BreakerState = "CLOSED"
	BreakerOpen   BreakerState = "OPEN"
)

// BudgetTracker is consulted before every embedding batch. Allow rejects
// the batch when the spend budget is exhausted; Record feeds back the
// actual token usage the provider reported.
type BudgetTracker interface {
	Allow(ctx context.Context, estimatedTokens int) error
	Record(tokens int)
	State() BreakerState
}

// TokenBudget is a daily token budget with a circuit breaker. Once spend
// would exceed the daily limit the breaker opens; it closes again after
// the cooldown or when the day rolls over, whichever comes first.
type TokenBudget struct {
	mu          sync.Mutex
	dailyLimit  int
	cooldown    time.Duration
	used        int
	windowStart time.Time
	openedAt    time.Time
	open        bool
	now         func() time.Time
}

var _ BudgetTracker = (*TokenBudget)(nil)

// NewTokenBudget creates a tracker. A zero dailyLimit disables budgeting
// entirely; Allow always succeeds.
func NewTokenBudget(dailyLimit int, cooldown time.Duration) *TokenBudget {
	b := &TokenBudget{
		dailyLimit: dailyLimit,
		cooldown:   cooldown,
		now:        time.Now,
	}
	b.windowStart = b.now().Truncate(24 * time.Hour)
	return b
}

// Allow implements BudgetTracker.
func (b *TokenBudget) Allow(ctx context.Context, estimatedTokens int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.dailyLimit <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindowLocked()

	if b.open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return &domain.CapacityExceededError{
				Resource: "embedding_budget",
				Reason:   fmt.Sprintf("breaker open, %d/%d tokens used today", b.used, b.dailyLimit),
			}
		}
		b.open = false
	}

	if b.used+estimatedTokens > b.dailyLimit {
		b.open = true
		b.openedAt = b.now()
		return &domain.CapacityExceededError{
			Resource: "embedding_budget",
			Reason:   fmt.Sprintf("daily token limit %d would be exceeded (%d used, %d requested)", b.dailyLimit, b.used, estimatedTokens),
		}
	}
	return nil
}

// Record implements BudgetTracker.
func (b *TokenBudget) Record(tokens int) {
	if b.dailyLimit <= 0 || tokens <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindowLocked()
	b.used += tokens
}

// State implements BudgetTracker.
func (b *TokenBudget) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open && b.now().Sub(b.openedAt) < b.cooldown {
		return BreakerOpen
	}
	return BreakerClosed
}

// rollWindowLocked resets spend when the daily window has rolled over.
func (b *TokenBudget) rollWindowLocked() {
	today := b.now().Truncate(24 * time.Hour)
	if today.After(b.windowStart) {
		b.windowStart = today
		b.used = 0
		b.open = false
	}
}
