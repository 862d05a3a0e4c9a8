package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/store"
)

// ErrWaitForAnotherDay is returned while a request's counter sits at the cap
// and the cooldown has not yet elapsed.
var ErrWaitForAnotherDay = errors.New("attempt limit reached, wait for cooldown")

// AttemptConfig holds the cap and the cooldown window.
type AttemptConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Attempt is the counter state after a successful Register.
type Attempt struct {
	Count int
	// CooldownActive is true when this call reset an exhausted counter.
	CooldownActive bool
}

// AttemptLimiter counts sends per self-service request. The read and the
// write happen through the context's transaction, so concurrent registers
// serialise on the parent request row.
type AttemptLimiter struct {
	counts store.AttemptCounts
	config AttemptConfig
	now    func() time.Time
}

func NewAttemptLimiter(counts store.AttemptCounts, cfg AttemptConfig, now func() time.Time) *AttemptLimiter {
	if now == nil {
		now = time.Now
	}
	return &AttemptLimiter{counts: counts, config: cfg, now: now}
}

// Register records one attempt against requestID:
//
//   - no counter: create it at 1;
//   - below the cap: increment and restamp;
//   - at the cap within the cooldown: ErrWaitForAnotherDay, nothing written;
//   - at the cap after the cooldown: reset to 0 and restamp.
//
// A soft-deleted counter is revived by the write.
func (l *AttemptLimiter) Register(ctx context.Context, requestID string) (Attempt, error) {
	now := l.now()

	current, err := l.counts.FindByRequest(ctx, requestID, true)
	if err != nil {
		return Attempt{}, fmt.Errorf("load attempt count: %w", err)
	}

	if current == nil {
		c := store.AttemptCount{RequestID: requestID, Count: 1, LastUpdatedAt: now}
		if err := l.counts.Create(ctx, c); err != nil {
			return Attempt{}, err
		}
		return Attempt{Count: 1}, nil
	}

	next := store.AttemptCount{RequestID: requestID, LastUpdatedAt: now}
	var attempt Attempt
	switch {
	case current.Count < l.config.MaxAttempts:
		next.Count = current.Count + 1
		attempt = Attempt{Count: next.Count}
	case now.Sub(current.LastUpdatedAt) <= l.config.Cooldown:
		return Attempt{Count: current.Count}, ErrWaitForAnotherDay
	default:
		next.Count = 0
		attempt = Attempt{Count: 0, CooldownActive: true}
	}

	if err := l.counts.Update(ctx, next); err != nil {
		return Attempt{}, err
	}
	return attempt, nil
}
