package dialer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/powerdialer/internal/agent"
	"github.com/acme/powerdialer/internal/campaign"
	"github.com/acme/powerdialer/internal/compliance"
	"github.com/acme/powerdialer/internal/concurrency"
	"github.com/acme/powerdialer/internal/config"
	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/events"
	"github.com/acme/powerdialer/internal/outcome"
	"github.com/acme/powerdialer/internal/pacing"
	"github.com/acme/powerdialer/internal/repository"
	"github.com/acme/powerdialer/internal/telephony"
	"github.com/acme/powerdialer/pkg/logger"
)

// Engine owns one dialing runner per active campaign. Launch is idempotent;
// control commands fan out to the matching runner's event loop.
type Engine struct {
	provider  telephony.Provider
	waiter    *telephony.Waiter
	processor *outcome.Processor
	gate      *compliance.Gate
	agents    agent.Channel
	limiter   concurrency.SlotLimiter
	attempts  repository.AttemptLog
	campaigns repository.CampaignRepository
	sink      events.Sink
	cfg       config.DialerConfig
	log       *logger.Logger

	mu          sync.Mutex
	runners     map[uuid.UUID]*runner
	onExhausted func(campaignID uuid.UUID)
}

// NewEngine constructs the dialing engine.
func NewEngine(
	provider telephony.Provider,
	waiter *telephony.Waiter,
	processor *outcome.Processor,
	gate *compliance.Gate,
	agents agent.Channel,
	limiter concurrency.SlotLimiter,
	attempts repository.AttemptLog,
	campaigns repository.CampaignRepository,
	sink events.Sink,
	cfg config.DialerConfig,
	log *logger.Logger,
) *Engine {
	return &Engine{
		provider:  provider,
		waiter:    waiter,
		processor: processor,
		gate:      gate,
		agents:    agents,
		limiter:   limiter,
		attempts:  attempts,
		campaigns: campaigns,
		sink:      sink,
		cfg:       cfg,
		log:       log,
		runners:   make(map[uuid.UUID]*runner),
	}
}

// OnExhausted registers the callback invoked after a runner drains its queue
// and stops.
func (e *Engine) OnExhausted(fn func(campaignID uuid.UUID)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExhausted = fn
}

// Launch starts the runner for a campaign. Launching a campaign that already
// has a runner is a no-op.
func (e *Engine) Launch(ctx context.Context, st *campaign.State) error {
	snapshot := st.Snapshot()
	strat, err := e.strategyFor(snapshot.Mode)
	if err != nil {
		return err
	}
	if st.Queue == nil {
		return fmt.Errorf("dialer: campaign %s has no queue", snapshot.ID)
	}

	e.mu.Lock()
	if _, running := e.runners[snapshot.ID]; running {
		e.mu.Unlock()
		return nil
	}
	r := newRunner(e, st, strat)
	e.runners[snapshot.ID] = r
	e.mu.Unlock()

	go r.run(ctx)
	e.log.Info("dialer launched",
		zap.String("campaign_id", snapshot.ID.String()),
		zap.String("mode", string(snapshot.Mode)),
	)
	return nil
}

// Pause suspends the campaign's runner after its current step.
func (e *Engine) Pause(campaignID uuid.UUID) {
	e.signal(campaignID, cmdPause)
}

// Resume wakes a paused runner.
func (e *Engine) Resume(campaignID uuid.UUID) {
	e.signal(campaignID, cmdResume)
}

// Stop terminates the campaign's runner.
func (e *Engine) Stop(campaignID uuid.UUID) {
	e.signal(campaignID, cmdStop)
}

// Running reports whether a runner exists for the campaign.
func (e *Engine) Running(campaignID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runners[campaignID]
	return ok
}

func (e *Engine) signal(campaignID uuid.UUID, c command) {
	e.mu.Lock()
	r, ok := e.runners[campaignID]
	e.mu.Unlock()
	if ok {
		r.send(c)
	}
}

func (e *Engine) remove(campaignID uuid.UUID) {
	e.mu.Lock()
	delete(e.runners, campaignID)
	e.mu.Unlock()
}

func (e *Engine) exhausted(campaignID uuid.UUID) {
	e.mu.Lock()
	fn := e.onExhausted
	e.mu.Unlock()
	if fn != nil {
		fn(campaignID)
	}
}

func (e *Engine) strategyFor(mode domain.DialMode) (strategy, error) {
	switch mode {
	case domain.DialModePreview:
		return &previewStrategy{}, nil
	case domain.DialModeProgressive:
		return &progressiveStrategy{}, nil
	case domain.DialModePredictive:
		return &predictiveStrategy{
			pacer: pacing.NewController(e.cfg.TargetUtilization, e.cfg.AbandonRateTarget),
		}, nil
	case domain.DialModePower:
		return &powerStrategy{}, nil
	default:
		return nil, fmt.Errorf("dialer: unknown dial mode %q", mode)
	}
}
