package dialer

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/outcome"
	"github.com/acme/powerdialer/internal/pacing"
)

// predictiveStrategy over-dials based on the observed connect rate. One
// batch per ready agent; the first human answer is bridged, every other
// answer is hung up and counted abandoned. The pacing controller feeds the
// batch results back into the next ratio.
type predictiveStrategy struct {
	pacer *pacing.Controller
}

func (s *predictiveStrategy) Step(ctx context.Context, r *runner) error {
	if err := r.eng.agents.WaitReady(ctx, r.id); err != nil {
		return err
	}

	stats := r.st.Snapshot().Statistics
	k := int(math.Ceil(s.pacer.DialRatio(stats)))
	if k < 1 {
		k = 1
	}

	batch, nextErr := s.gather(ctx, r, k)
	if len(batch) == 0 {
		if nextErr != nil {
			return nextErr
		}
		// Limiter saturated; back off briefly before the next batch.
		r.sleep(ctx, 200*time.Millisecond)
		return nil
	}

	results := s.place(ctx, r, batch)

	answered, abandoned, bridged := 0, 0, false
	for i := range results {
		if results[i].res.Outcome == domain.OutcomeAnswered {
			answered++
			if results[i].res.Abandoned {
				abandoned++
			} else {
				bridged = true
			}
		}
		r.finalize(ctx, results[i].item, results[i].res)
	}

	s.pacer.Adjust(pacing.BatchResult{
		Size:      len(batch),
		Answered:  answered,
		Abandoned: abandoned,
	})

	if bridged {
		r.sleep(ctx, r.eng.cfg.WrapUpDelay)
	}
	return nil
}

// gather pulls up to k compliant items and reserves a placement slot for
// each. It stops early when the queue or the limiter runs dry.
func (s *predictiveStrategy) gather(ctx context.Context, r *runner, k int) ([]*domain.CallQueueItem, error) {
	batch := make([]*domain.CallQueueItem, 0, k)
	for len(batch) < k {
		item, err := r.st.Queue.Next()
		if err != nil {
			if len(batch) > 0 {
				return batch, nil
			}
			return nil, err
		}
		if !r.checkCompliance(ctx, item) {
			continue
		}

		ok, err := r.eng.limiter.Acquire(ctx, r.id, k)
		if err != nil {
			r.eng.log.Warn("slot acquire failed",
				zap.String("campaign_id", r.id.String()),
				zap.Error(err),
			)
			r.st.Queue.Requeue(item)
			break
		}
		if !ok {
			r.st.Queue.Requeue(item)
			break
		}
		batch = append(batch, item)
	}
	return batch, nil
}

type placedAttempt struct {
	item   *domain.CallQueueItem
	callID string
	res    outcome.Result
}

// place dials the whole batch concurrently. The first human answer wins the
// agent; later answers are marked abandoned.
func (s *predictiveStrategy) place(ctx context.Context, r *runner, batch []*domain.CallQueueItem) []placedAttempt {
	results := make([]placedAttempt, len(batch))

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := false

	for i, item := range batch {
		wg.Add(1)
		go func(i int, item *domain.CallQueueItem) {
			defer wg.Done()
			defer func() {
				if err := r.eng.limiter.Release(ctx, r.id); err != nil {
					r.eng.log.Warn("slot release failed",
						zap.String("campaign_id", r.id.String()),
						zap.Error(err),
					)
				}
			}()

			callID, res := r.placeAndAwait(ctx, item)
			if res.Outcome == domain.OutcomeAnswered {
				mu.Lock()
				first := !claimed
				if first {
					claimed = true
				}
				mu.Unlock()

				if first {
					r.connectAgent(ctx, callID, item, &res)
				} else {
					res.Abandoned = true
				}
			}
			if res.Outcome == domain.OutcomeVoicemail {
				r.maybeDropVoicemail(ctx, callID)
			}
			results[i] = placedAttempt{item: item, callID: callID, res: res}
		}(i, item)
	}
	wg.Wait()

	return results
}
