package dialer

import (
	"context"

	"github.com/acme/powerdialer/internal/agent"
	"github.com/acme/powerdialer/internal/domain"
)

// previewStrategy shows the agent a contact card and dials only on their
// say-so. One contact per step.
type previewStrategy struct{}

func (s *previewStrategy) Step(ctx context.Context, r *runner) error {
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

	snapshot := r.st.Snapshot()
	card := agent.PreviewCard{
		CampaignID:  r.id,
		Contact:     item.Contact,
		Script:      snapshot.Script,
		Attempts:    item.Attempts,
		LastOutcome: item.Outcome,
	}
	decision, err := r.eng.agents.Decide(ctx, card)
	if err != nil {
		r.st.Queue.Requeue(item)
		return err
	}

	switch decision {
	case agent.DecisionSkip:
		r.st.Queue.Requeue(item)
		return nil
	case agent.DecisionRemove:
		// Dropped on agent judgment; never dialed, so no attempt is recorded.
		r.st.Queue.Remove(item)
		return nil
	}

	// The agent can sit on the card long enough for the calling window to
	// close, so re-check right before placing.
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
