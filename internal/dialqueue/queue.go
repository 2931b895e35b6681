package dialqueue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/domain"
)

var (
	// ErrExhausted signals that no items remain anywhere in the queue. It
	// triggers normal campaign completion, not an error path.
	ErrExhausted = errors.New("call queue exhausted")
	// ErrNoneEligible signals that items exist but none may be dialed yet.
	ErrNoneEligible = errors.New("no queue item currently eligible")
)

// Queue holds a campaign's live dialing state: an ordered ready list, a
// time-ordered heap of deferred items (retries and closed-window holds), and
// the set of items currently being dialed. An item lives in exactly one of
// the three at any moment, which makes the item the unit of mutual
// exclusion across concurrent predictive batch members.
type Queue struct {
	mu       sync.Mutex
	now      func() time.Time
	ready    []*domain.CallQueueItem
	deferred deferredHeap
	inflight map[uuid.UUID]*domain.CallQueueItem
}

// New builds a queue from an ordered item list. Items whose EligibleAt lies
// after the build time go straight to the deferred heap.
func New(items []*domain.CallQueueItem, now time.Time) *Queue {
	q := &Queue{
		now:      time.Now,
		inflight: make(map[uuid.UUID]*domain.CallQueueItem),
	}
	for _, item := range items {
		if item.EligibleAt.After(now) {
			heap.Push(&q.deferred, item)
			continue
		}
		q.ready = append(q.ready, item)
	}
	return q
}

// SetClock overrides the queue's time source. Tests use this to exercise
// retry eligibility without sleeping.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Next returns the next item with no pending outcome whose eligible time has
// passed, and marks it in flight. Returns ErrNoneEligible when everything is
// deferred or dialing, ErrExhausted when the queue is empty for good.
func (q *Queue) Next() (*domain.CallQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promote()

	if len(q.ready) == 0 {
		if q.deferred.Len() == 0 && len(q.inflight) == 0 {
			return nil, ErrExhausted
		}
		return nil, ErrNoneEligible
	}

	item := q.ready[0]
	q.ready = q.ready[1:]
	q.inflight[item.ID] = item
	return item, nil
}

// NextEligibleAt reports the earliest deferred eligibility time, if any.
func (q *Queue) NextEligibleAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deferred.Len() == 0 {
		return time.Time{}, false
	}
	return q.deferred[0].EligibleAt, true
}

// Requeue returns an in-flight item to the back of the ready list. Used by
// preview-mode skip, which retries without bound and without counting as an
// attempt.
func (q *Queue) Requeue(item *domain.CallQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[item.ID]; !ok {
		return
	}
	delete(q.inflight, item.ID)
	q.ready = append(q.ready, item)
}

// Defer reschedules an in-flight item for a later attempt. The item's
// outcome is cleared so the retry starts fresh.
func (q *Queue) Defer(item *domain.CallQueueItem, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[item.ID]; !ok {
		return
	}
	delete(q.inflight, item.ID)
	item.Outcome = nil
	item.EligibleAt = at
	heap.Push(&q.deferred, item)
}

// Remove drops an in-flight item permanently.
func (q *Queue) Remove(item *domain.CallQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, item.ID)
}

// Size reports how many items remain anywhere in the queue.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + q.deferred.Len() + len(q.inflight)
}

// promote moves deferred items whose time has come onto the ready list.
// Caller holds the lock.
func (q *Queue) promote() {
	now := q.now()
	for q.deferred.Len() > 0 && !q.deferred[0].EligibleAt.After(now) {
		item := heap.Pop(&q.deferred).(*domain.CallQueueItem)
		q.ready = append(q.ready, item)
	}
}

// deferredHeap is a min-heap ordered by EligibleAt. Decoupling retries from
// wall-clock timers keeps redial logic deterministic under test.
type deferredHeap []*domain.CallQueueItem

func (h deferredHeap) Len() int           { return len(h) }
func (h deferredHeap) Less(i, j int) bool { return h[i].EligibleAt.Before(h[j].EligibleAt) }
func (h deferredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *deferredHeap) Push(x any)        { *h = append(*h, x.(*domain.CallQueueItem)) }
func (h *deferredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
