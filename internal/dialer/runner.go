package dialer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/powerdialer/internal/campaign"
	"github.com/acme/powerdialer/internal/dialqueue"
	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/events"
	"github.com/acme/powerdialer/internal/outcome"
	"github.com/acme/powerdialer/internal/repository"
	"github.com/acme/powerdialer/internal/telephony"
	apperrors "github.com/acme/powerdialer/pkg/errors"
)

type command int

const (
	cmdPause command = iota
	cmdResume
	cmdStop
)

// strategy performs one unit of dialing work. A step typically dials one
// contact; predictive mode dials a batch.
type strategy interface {
	Step(ctx context.Context, r *runner) error
}

// eligibilityRecheck caps how long a runner sleeps when the queue has only
// deferred items, so control commands and clock drift are observed promptly.
const eligibilityRecheck = 30 * time.Second

// runner is the single goroutine that drives one campaign's dialing loop.
// All queue and state mutations for the campaign funnel through it; the API
// influences it only via control commands and the campaign status.
type runner struct {
	eng    *Engine
	st     *campaign.State
	strat  strategy
	id     uuid.UUID
	ctrl   chan command
	paused bool
}

func newRunner(e *Engine, st *campaign.State, strat strategy) *runner {
	return &runner{
		eng:   e,
		st:    st,
		strat: strat,
		id:    st.ID(),
		ctrl:  make(chan command, 8),
	}
}

func (r *runner) send(c command) {
	select {
	case r.ctrl <- c:
	default:
		r.eng.log.Warn("dialer control channel full, dropping command",
			zap.String("campaign_id", r.id.String()),
			zap.Int("command", int(c)),
		)
	}
}

func (r *runner) run(ctx context.Context) {
	defer r.eng.remove(r.id)

	for {
		if !r.awaitRunnable(ctx) {
			return
		}

		err := r.strat.Step(ctx, r)
		switch {
		case err == nil:
		case errors.Is(err, dialqueue.ErrExhausted):
			r.eng.log.Info("dial queue exhausted", zap.String("campaign_id", r.id.String()))
			r.eng.exhausted(r.id)
			return
		case errors.Is(err, dialqueue.ErrNoneEligible):
			r.waitEligible(ctx)
		case ctx.Err() != nil:
			return
		default:
			r.eng.log.Error("dial step failed",
				zap.String("campaign_id", r.id.String()),
				zap.Error(err),
			)
			r.sleep(ctx, time.Second)
		}
	}
}

// awaitRunnable drains pending control commands and blocks while paused.
// It returns false when the runner must exit.
func (r *runner) awaitRunnable(ctx context.Context) bool {
	for {
		select {
		case c := <-r.ctrl:
			switch c {
			case cmdPause:
				r.paused = true
			case cmdResume:
				r.paused = false
			case cmdStop:
				return false
			}
			continue
		case <-ctx.Done():
			return false
		default:
		}

		// Status is authoritative; a paused status observed here covers
		// commands lost to a full channel.
		if !r.paused && r.st.Snapshot().Status == domain.CampaignStatusPaused {
			r.paused = true
		}

		if !r.paused {
			return true
		}

		select {
		case c := <-r.ctrl:
			switch c {
			case cmdResume:
				r.paused = false
			case cmdStop:
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (r *runner) waitEligible(ctx context.Context) {
	wait := eligibilityRecheck
	if next, ok := r.st.Queue.NextEligibleAt(); ok {
		if until := time.Until(next); until < wait {
			wait = until
		}
	}
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	r.sleep(ctx, wait)
}

func (r *runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case c := <-r.ctrl:
		// Put the command back for awaitRunnable and wake up immediately.
		r.send(c)
	}
}

// checkCompliance re-validates the contact right before placement. It
// returns false when the item must not be dialed now; the item has already
// been routed (removed or deferred).
func (r *runner) checkCompliance(ctx context.Context, item *domain.CallQueueItem) bool {
	if !r.eng.gate.IsDialable(item.Contact) {
		// Never placed, so it is a hold, not a dial. The number is dropped
		// from the queue for good.
		out := domain.OutcomeDoNotCall
		item.Outcome = &out
		r.st.Update(func(c *domain.Campaign) {
			r.eng.processor.HandleComplianceHold(c, item)
		})
		r.st.Queue.Remove(item)
		r.audit(ctx, item, outcome.Result{Outcome: domain.OutcomeDoNotCall}, true)
		return false
	}

	snapshot := r.st.Snapshot()
	now := time.Now()
	if !r.eng.gate.IsWithinWindow(snapshot.Schedule, now) {
		r.st.Update(func(c *domain.Campaign) {
			r.eng.processor.HandleComplianceHold(c, item)
		})
		r.st.Queue.Defer(item, r.eng.gate.NextWindowStart(snapshot.Schedule, now))
		r.audit(ctx, item, outcome.Result{}, true)
		return false
	}
	return true
}

// placeAndAwait starts the call and waits for a terminal status. The second
// return is the mapped domain result; the first is the provider call id,
// empty when placement itself failed.
func (r *runner) placeAndAwait(ctx context.Context, item *domain.CallQueueItem) (string, outcome.Result) {
	tracer := otel.Tracer("powerdialer.dialer")
	sctx, span := tracer.Start(ctx, "dial.attempt", trace.WithAttributes(
		attribute.String("campaign.id", r.id.String()),
		attribute.String("queue_item.id", item.ID.String()),
		attribute.Int("attempt", item.Attempts+1),
	))
	defer span.End()

	handle, err := r.eng.provider.PlaceCall(sctx, telephony.PlaceCallRequest{
		To:          item.Contact.Phone,
		From:        r.eng.cfg.CallerID,
		CampaignID:  r.id,
		QueueItemID: item.ID,
	})
	if err != nil {
		span.RecordError(err)
		return "", outcome.Result{Outcome: domain.OutcomeFailed, Error: err.Error()}
	}

	status, err := r.eng.waiter.Await(sctx, handle)
	if err != nil {
		span.RecordError(err)
		if apperrors.Is(err, apperrors.ErrTimeout) {
			return handle.ID, outcome.Result{Outcome: domain.OutcomeNoAnswer}
		}
		return handle.ID, outcome.Result{Outcome: domain.OutcomeFailed, Error: err.Error()}
	}

	res := outcome.MapStatus(status)
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	return handle.ID, res
}

// connectAgent bridges an answered call and collects the agent disposition.
func (r *runner) connectAgent(ctx context.Context, callID string, item *domain.CallQueueItem, res *outcome.Result) {
	snapshot := r.st.Snapshot()
	if err := r.eng.provider.BridgeToAgent(ctx, callID, snapshot.AgentID); err != nil {
		r.eng.log.Error("bridge to agent failed",
			zap.String("campaign_id", r.id.String()),
			zap.String("call_id", callID),
			zap.Error(err),
		)
		res.Abandoned = true
		return
	}
	disp, err := r.eng.agents.Disposition(ctx, r.id, item.Contact)
	if err != nil {
		r.eng.log.Warn("disposition not collected",
			zap.String("campaign_id", r.id.String()),
			zap.Error(err),
		)
		return
	}
	res.Disposition = disp
}

// maybeDropVoicemail leaves the configured recording after a machine answer.
func (r *runner) maybeDropVoicemail(ctx context.Context, callID string) {
	if !r.eng.cfg.VoicemailDrop || callID == "" {
		return
	}
	dropper, ok := r.eng.provider.(telephony.VoicemailDropper)
	if !ok {
		return
	}
	if err := dropper.DropVoicemail(ctx, callID, r.eng.cfg.VoicemailRecording); err != nil {
		r.eng.log.Warn("voicemail drop failed",
			zap.String("campaign_id", r.id.String()),
			zap.String("call_id", callID),
			zap.Error(err),
		)
	}
}

// finalize applies the result to the campaign under its lock, routes the
// queue item, and records the attempt in the audit log and event stream.
func (r *runner) finalize(ctx context.Context, item *domain.CallQueueItem, res outcome.Result) {
	var handled outcome.Handled
	var snapshot domain.Campaign
	r.st.Update(func(c *domain.Campaign) {
		handled = r.eng.processor.Handle(c, item, res)
		snapshot = *c
	})

	switch handled.Decision {
	case outcome.DecisionRetry:
		r.st.Queue.Defer(item, handled.RetryAt)
	case outcome.DecisionRemove:
		r.st.Queue.Remove(item)
	}

	r.audit(ctx, item, res, false)
	if err := r.eng.campaigns.Save(ctx, &snapshot); err != nil {
		r.eng.log.Warn("stats write-through failed",
			zap.String("campaign_id", r.id.String()),
			zap.Error(err),
		)
	}
}

func (r *runner) audit(ctx context.Context, item *domain.CallQueueItem, res outcome.Result, hold bool) {
	now := time.Now().UTC()
	record := repository.AttemptRecord{
		ID:             uuid.New(),
		CampaignID:     r.id,
		QueueItemID:    item.ID,
		Phone:          item.Contact.Phone,
		Attempt:        item.Attempts,
		Outcome:        string(res.Outcome),
		DurationMs:     res.Duration.Milliseconds(),
		Abandoned:      res.Abandoned,
		ComplianceHold: hold,
		Error:          res.Error,
		OccurredAt:     now,
	}
	if err := r.eng.attempts.Append(ctx, record); err != nil {
		r.eng.log.Warn("attempt audit append failed",
			zap.String("campaign_id", r.id.String()),
			zap.Error(err),
		)
	}

	ev := events.OutcomeEvent{
		AttemptID:      record.ID,
		CampaignID:     r.id,
		QueueItemID:    item.ID,
		PhoneNumber:    item.Contact.Phone,
		Attempt:        item.Attempts,
		Outcome:        record.Outcome,
		Disposition:    res.Disposition,
		DurationMs:     record.DurationMs,
		Abandoned:      res.Abandoned,
		ComplianceHold: hold,
		Error:          res.Error,
		OccurredAt:     now,
	}
	if err := r.eng.sink.PublishOutcome(ctx, ev); err != nil {
		r.eng.log.Warn("outcome publish failed",
			zap.String("campaign_id", r.id.String()),
			zap.Error(err),
		)
	}
}
