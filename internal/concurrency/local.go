package concurrency

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalLimiter is an in-process SlotLimiter for single-instance deployments
// and tests.
type LocalLimiter struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

// NewLocalLimiter constructs an in-process limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{counts: make(map[uuid.UUID]int)}
}

// Acquire reserves a slot when the campaign is under its limit.
func (l *LocalLimiter) Acquire(ctx context.Context, campaignID uuid.UUID, limit int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit > 0 && l.counts[campaignID] >= limit {
		return false, nil
	}
	l.counts[campaignID]++
	return true, nil
}

// Release frees a slot.
func (l *LocalLimiter) Release(ctx context.Context, campaignID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[campaignID] > 0 {
		l.counts[campaignID]--
	}
	return nil
}

// InUse reports the current slot count for a campaign.
func (l *LocalLimiter) InUse(campaignID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[campaignID]
}
