package dialer

import (
	"context"

	"github.com/acme/powerdialer/internal/domain"
)

// powerStrategy dials back to back on a single line without waiting for an
// agent ready signal. A short fixed pause follows every non-connect.
type powerStrategy struct{}

func (s *powerStrategy) Step(ctx context.Context, r *runner) error {
	item, err := r.st.Queue.Next()
	if err != nil {
		return err
	}
	if !r.checkCompliance(ctx, item) {
		return nil
	}

	callID, res := r.placeAndAwait(ctx, item)
	if res.Outcome == domain.OutcomeAnswered {
		r.connectAgent(ctx, callID, item, &res)
	}
	if res.Outcome == domain.OutcomeVoicemail {
		r.maybeDropVoicemail(ctx, callID)
	}
	r.finalize(ctx, item, res)

	if res.Outcome == domain.OutcomeAnswered && !res.Abandoned {
		r.sleep(ctx, r.eng.cfg.WrapUpDelay)
	} else {
		r.sleep(ctx, r.eng.cfg.PowerPause)
	}
	return nil
}
