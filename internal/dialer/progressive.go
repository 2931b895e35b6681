package dialer

import (
	"context"

	"github.com/acme/powerdialer/internal/domain"
)

// progressiveStrategy dials exactly one call per ready agent. The next
// contact is not touched until the agent signals availability.
type progressiveStrategy struct{}

func (s *progressiveStrategy) Step(ctx context.Context, r *runner) error {
	if err := r.eng.agents.WaitReady(ctx, r.id); err != nil {
		return err
	}

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
	}
	return nil
}
