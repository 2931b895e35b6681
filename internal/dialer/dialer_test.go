package dialer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/agent"
	"github.com/acme/powerdialer/internal/campaign"
	"github.com/acme/powerdialer/internal/compliance"
	"github.com/acme/powerdialer/internal/concurrency"
	"github.com/acme/powerdialer/internal/config"
	"github.com/acme/powerdialer/internal/dialqueue"
	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/events"
	"github.com/acme/powerdialer/internal/outcome"
	"github.com/acme/powerdialer/internal/pacing"
	"github.com/acme/powerdialer/internal/repository"
	"github.com/acme/powerdialer/internal/telephony"
	"github.com/acme/powerdialer/pkg/logger"
)

// scriptedProvider resolves every call immediately with a per-phone status.
type scriptedProvider struct {
	mu       sync.Mutex
	statuses map[string]telephony.CallStatus
	placed   []string
	bridged  []string
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{statuses: make(map[string]telephony.CallStatus)}
}

func (p *scriptedProvider) script(phone string, status telephony.CallStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[phone] = status
}

func (p *scriptedProvider) PlaceCall(_ context.Context, req telephony.PlaceCallRequest) (telephony.CallHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, req.To)
	return telephony.CallHandle{ID: req.To}, nil
}

func (p *scriptedProvider) GetCallStatus(_ context.Context, callID string) (telephony.CallStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status, ok := p.statuses[callID]; ok {
		return status, nil
	}
	return telephony.CallStatus{State: telephony.StateNoAnswer}, nil
}

func (p *scriptedProvider) BridgeToAgent(_ context.Context, callID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bridged = append(p.bridged, callID)
	return nil
}

func (p *scriptedProvider) placedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.placed)
}

func (p *scriptedProvider) bridgedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bridged)
}

type memAttemptLog struct {
	mu      sync.Mutex
	records []repository.AttemptRecord
}

func (l *memAttemptLog) Append(_ context.Context, rec repository.AttemptRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memAttemptLog) ListByCampaign(_ context.Context, campaignID uuid.UUID, _ int) ([]repository.AttemptRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]repository.AttemptRecord, 0, len(l.records))
	for _, rec := range l.records {
		if rec.CampaignID == campaignID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type nopCampaignRepo struct{}

func (nopCampaignRepo) Save(context.Context, *domain.Campaign) error { return nil }
func (nopCampaignRepo) Get(context.Context, uuid.UUID) (*domain.Campaign, error) {
	return nil, errors.New("not implemented")
}
func (nopCampaignRepo) List(context.Context, int) ([]*domain.Campaign, error)  { return nil, nil }
func (nopCampaignRepo) ListUnfinished(context.Context) ([]*domain.Campaign, error) { return nil, nil }

// scriptedChannel drives preview decisions from a queue of answers.
type scriptedChannel struct {
	mu        sync.Mutex
	decisions []agent.Decision
}

func (c *scriptedChannel) WaitReady(context.Context, uuid.UUID) error { return nil }

func (c *scriptedChannel) Decide(_ context.Context, _ agent.PreviewCard) (agent.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.decisions) == 0 {
		return agent.DecisionDial, nil
	}
	d := c.decisions[0]
	c.decisions = c.decisions[1:]
	return d, nil
}

func (c *scriptedChannel) Disposition(context.Context, uuid.UUID, domain.Contact) (string, error) {
	return "", nil
}

func testConfig() config.DialerConfig {
	return config.DialerConfig{
		MaxRetries:         2,
		RetryDelay:         15 * time.Minute,
		WrapUpDelay:        time.Millisecond,
		PowerPause:         time.Millisecond,
		StatusTimeout:      time.Second,
		StatusPollInterval: time.Millisecond,
		TargetUtilization:  0.85,
		AbandonRateTarget:  0.03,
		SlotTTL:            time.Minute,
	}
}

func testEngine(provider telephony.Provider, ch agent.Channel, attempts *memAttemptLog) *Engine {
	cfg := testConfig()
	return NewEngine(
		provider,
		telephony.NewWaiter(provider, cfg.StatusPollInterval, cfg.StatusTimeout),
		outcome.NewProcessor(),
		compliance.NewGate(),
		ch,
		concurrency.NewLocalLimiter(),
		attempts,
		nopCampaignRepo{},
		events.NopSink{},
		cfg,
		logger.Nop(),
	)
}

func testState(contacts []domain.Contact, schedule domain.ScheduleWindow) *campaign.State {
	c := &domain.Campaign{
		ID:          uuid.New(),
		Name:        "test",
		AgentID:     "agent-1",
		Mode:        domain.DialModeProgressive,
		Contacts:    contacts,
		Schedule:    schedule,
		RetryPolicy: domain.RetryPolicy{MaxRetries: 2, RetryDelay: 15 * time.Minute},
		Status:      domain.CampaignStatusActive,
	}
	st := campaign.NewState(c)
	st.Queue = dialqueue.NewBuilder(compliance.NewGate()).Build(c, time.Now())
	return st
}

func contact(phone string) domain.Contact {
	return domain.Contact{ID: uuid.New(), Name: phone, Phone: phone}
}

func TestProgressiveStepConnects(t *testing.T) {
	provider := newScriptedProvider()
	provider.script("+15550001", telephony.CallStatus{
		State:           telephony.StateAnswered,
		AnsweredBy:      telephony.AnsweredByHuman,
		DurationSeconds: 60,
	})

	attempts := &memAttemptLog{}
	e := testEngine(provider, agent.NewAuto(), attempts)
	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	r := newRunner(e, st, &progressiveStrategy{})

	if err := r.strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	snapshot := st.Snapshot()
	if snapshot.Statistics.TotalDialed != 1 || snapshot.Statistics.Connected != 1 {
		t.Fatalf("unexpected stats: %+v", snapshot.Statistics)
	}
	if provider.bridgedCount() != 1 {
		t.Fatalf("expected answered call bridged, got %d", provider.bridgedCount())
	}
	if len(attempts.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(attempts.records))
	}
	if st.Queue.Size() != 0 {
		t.Fatalf("expected item removed after connect, queue size %d", st.Queue.Size())
	}
	if _, err := st.Queue.Next(); !errors.Is(err, dialqueue.ErrExhausted) {
		t.Fatalf("expected exhausted queue, got %v", err)
	}
}

func TestStepBusyDefersRetry(t *testing.T) {
	provider := newScriptedProvider()
	provider.script("+15550001", telephony.CallStatus{State: telephony.StateBusy})

	e := testEngine(provider, agent.NewAuto(), &memAttemptLog{})
	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	r := newRunner(e, st, &progressiveStrategy{})

	if err := r.strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	snapshot := st.Snapshot()
	if snapshot.Statistics.TotalDialed != 1 || snapshot.Statistics.Connected != 0 {
		t.Fatalf("unexpected stats: %+v", snapshot.Statistics)
	}
	if st.Queue.Size() != 1 {
		t.Fatalf("expected busy item deferred for retry, queue size %d", st.Queue.Size())
	}
	if _, err := st.Queue.Next(); !errors.Is(err, dialqueue.ErrNoneEligible) {
		t.Fatalf("expected retry not yet eligible, got %v", err)
	}
}

func TestStepComplianceHoldOutsideWindow(t *testing.T) {
	provider := newScriptedProvider()
	attempts := &memAttemptLog{}
	e := testEngine(provider, agent.NewAuto(), attempts)

	// Window open at build time, then force a closed schedule to simulate
	// the window closing between queueing and placement.
	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	st.Update(func(c *domain.Campaign) {
		c.Schedule = domain.ScheduleWindow{StartHour: 2, EndHour: 3, TimeZone: "UTC", Weekdays: []time.Weekday{}}
	})
	snapshot := st.Snapshot()
	if compliance.NewGate().IsWithinWindow(snapshot.Schedule, time.Now()) {
		t.Skip("wall clock happens to fall inside the 02:00-03:00 UTC window")
	}

	r := newRunner(e, st, &progressiveStrategy{})
	if err := r.strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	snapshot = st.Snapshot()
	if snapshot.Statistics.ComplianceHolds != 1 {
		t.Fatalf("expected compliance hold counted, got %+v", snapshot.Statistics)
	}
	if snapshot.Statistics.TotalDialed != 0 {
		t.Fatalf("a hold must not count as a dial, got %+v", snapshot.Statistics)
	}
	if provider.placedCount() != 0 {
		t.Fatalf("expected no placement during hold, got %d", provider.placedCount())
	}
	if len(attempts.records) != 1 || !attempts.records[0].ComplianceHold {
		t.Fatalf("expected hold audit record, got %+v", attempts.records)
	}
	if st.Queue.Size() != 1 {
		t.Fatalf("expected item deferred to window start, queue size %d", st.Queue.Size())
	}
}

func TestStepDoNotCallRemoval(t *testing.T) {
	provider := newScriptedProvider()
	attempts := &memAttemptLog{}
	e := testEngine(provider, agent.NewAuto(), attempts)

	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	// Contact lands on the do-not-call registry while queued.
	item, err := st.Queue.Next()
	if err != nil {
		t.Fatalf("Next returned %v", err)
	}
	item.Contact.DoNotCall = true
	st.Queue.Requeue(item)

	r := newRunner(e, st, &progressiveStrategy{})
	if err := r.strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	if provider.placedCount() != 0 {
		t.Fatalf("expected no placement for do-not-call contact")
	}
	if st.Queue.Size() != 0 {
		t.Fatalf("expected do-not-call item removed, queue size %d", st.Queue.Size())
	}
	snapshot := st.Snapshot()
	stats := snapshot.Statistics
	if stats.TotalDialed != 0 {
		t.Fatalf("a never-placed call must not count as a dial, got %+v", stats)
	}
	if stats.ComplianceHolds != 1 || stats.Connected != 0 {
		t.Fatalf("expected one compliance hold, got %+v", stats)
	}
	if len(attempts.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(attempts.records))
	}
	if rec := attempts.records[0]; !rec.ComplianceHold || rec.Outcome != string(domain.OutcomeDoNotCall) {
		t.Fatalf("expected do-not-call hold record, got %+v", rec)
	}
}

// windowClosingChannel answers dial but closes the calling window while the
// agent is deciding.
type windowClosingChannel struct {
	st *campaign.State
}

func (c *windowClosingChannel) WaitReady(context.Context, uuid.UUID) error { return nil }

func (c *windowClosingChannel) Decide(context.Context, agent.PreviewCard) (agent.Decision, error) {
	c.st.Update(func(cmp *domain.Campaign) {
		cmp.Schedule = domain.ScheduleWindow{StartHour: 2, EndHour: 3, TimeZone: "UTC", Weekdays: []time.Weekday{}}
	})
	return agent.DecisionDial, nil
}

func (c *windowClosingChannel) Disposition(context.Context, uuid.UUID, domain.Contact) (string, error) {
	return "", nil
}

func TestPreviewRechecksWindowAfterDecision(t *testing.T) {
	if compliance.NewGate().IsWithinWindow(domain.ScheduleWindow{StartHour: 2, EndHour: 3, TimeZone: "UTC", Weekdays: []time.Weekday{}}, time.Now()) {
		t.Skip("wall clock happens to fall inside the 02:00-03:00 UTC window")
	}

	provider := newScriptedProvider()
	attempts := &memAttemptLog{}
	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	e := testEngine(provider, &windowClosingChannel{st: st}, attempts)

	r := newRunner(e, st, &previewStrategy{})
	if err := r.strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	if provider.placedCount() != 0 {
		t.Fatalf("expected no placement after the window closed, got %d", provider.placedCount())
	}
	snapshot := st.Snapshot()
	if snapshot.Statistics.ComplianceHolds != 1 || snapshot.Statistics.TotalDialed != 0 {
		t.Fatalf("expected a hold and no dial, got %+v", snapshot.Statistics)
	}
	if st.Queue.Size() != 1 {
		t.Fatalf("expected item deferred to the next window, queue size %d", st.Queue.Size())
	}
}

func TestPreviewSkipAndRemove(t *testing.T) {
	provider := newScriptedProvider()
	ch := &scriptedChannel{decisions: []agent.Decision{agent.DecisionSkip, agent.DecisionRemove, agent.DecisionRemove}}
	e := testEngine(provider, ch, &memAttemptLog{})

	st := testState([]domain.Contact{contact("+15550001"), contact("+15550002")}, domain.ScheduleWindow{})
	r := newRunner(e, st, &previewStrategy{})

	// Skip: item goes to the back, nothing placed.
	if err := r.strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}
	if provider.placedCount() != 0 {
		t.Fatalf("skip must not place a call")
	}
	if st.Queue.Size() != 2 {
		t.Fatalf("expected skipped item requeued, queue size %d", st.Queue.Size())
	}

	// Remove both: queue drains without any placement or attempt.
	for i := 0; i < 2; i++ {
		if err := r.strat.Step(context.Background(), r); err != nil {
			t.Fatalf("Step returned %v", err)
		}
	}
	if provider.placedCount() != 0 {
		t.Fatalf("remove must not place a call")
	}
	if st.Queue.Size() != 0 {
		t.Fatalf("expected queue drained by removals, size %d", st.Queue.Size())
	}
	snapshot := st.Snapshot()
	if snapshot.Statistics.TotalDialed != 0 {
		t.Fatalf("agent removals are not attempts, got %+v", snapshot.Statistics)
	}
}

func TestPredictiveBatchAbandons(t *testing.T) {
	provider := newScriptedProvider()
	answered := telephony.CallStatus{
		State:           telephony.StateAnswered,
		AnsweredBy:      telephony.AnsweredByHuman,
		DurationSeconds: 30,
	}
	provider.script("+15550001", answered)
	provider.script("+15550002", answered)

	e := testEngine(provider, agent.NewAuto(), &memAttemptLog{})
	st := testState([]domain.Contact{contact("+15550001"), contact("+15550002")}, domain.ScheduleWindow{})

	strat := &predictiveStrategy{pacer: pacing.NewController(0.85, 0.03)}
	r := newRunner(e, st, strat)

	if err := strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	snapshot := st.Snapshot()
	stats := snapshot.Statistics
	if stats.TotalDialed != 2 {
		t.Fatalf("expected both batch members dialed, got %+v", stats)
	}
	if stats.Connected != 1 || stats.AbandonedCalls != 1 {
		t.Fatalf("expected one bridge and one abandon, got %+v", stats)
	}
	if provider.bridgedCount() != 1 {
		t.Fatalf("expected exactly one bridge, got %d", provider.bridgedCount())
	}
}

func TestPredictiveBatchRespectsRatio(t *testing.T) {
	provider := newScriptedProvider()
	e := testEngine(provider, agent.NewAuto(), &memAttemptLog{})

	contacts := []domain.Contact{
		contact("+15550001"), contact("+15550002"),
		contact("+15550003"), contact("+15550004"),
	}
	st := testState(contacts, domain.ScheduleWindow{})

	strat := &predictiveStrategy{pacer: pacing.NewController(0.85, 0.03)}
	r := newRunner(e, st, strat)

	if err := strat.Step(context.Background(), r); err != nil {
		t.Fatalf("Step returned %v", err)
	}

	// Cold start ratio 1.2 rounds up to a batch of 2.
	if provider.placedCount() != 2 {
		t.Fatalf("expected batch of 2 on cold start, placed %d", provider.placedCount())
	}
}

func TestRunnerControl(t *testing.T) {
	e := testEngine(newScriptedProvider(), agent.NewAuto(), &memAttemptLog{})
	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	r := newRunner(e, st, &progressiveStrategy{})

	r.send(cmdStop)
	if r.awaitRunnable(context.Background()) {
		t.Fatalf("expected stop to end the runner")
	}

	r = newRunner(e, st, &progressiveStrategy{})
	r.send(cmdPause)
	r.send(cmdResume)
	if !r.awaitRunnable(context.Background()) {
		t.Fatalf("expected pause then resume to leave the runner runnable")
	}

	r = newRunner(e, st, &progressiveStrategy{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r.awaitRunnable(ctx) {
		t.Fatalf("expected cancelled context to end the runner")
	}
}

func TestEngineLaunchAndExhaustion(t *testing.T) {
	provider := newScriptedProvider()
	provider.script("+15550001", telephony.CallStatus{State: telephony.StateFailed})

	e := testEngine(provider, agent.NewAuto(), &memAttemptLog{})
	done := make(chan uuid.UUID, 1)
	e.OnExhausted(func(id uuid.UUID) { done <- id })

	st := testState([]domain.Contact{contact("+15550001")}, domain.ScheduleWindow{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Launch(ctx, st); err != nil {
		t.Fatalf("Launch returned %v", err)
	}
	// Relaunch while running is a no-op.
	if err := e.Launch(ctx, st); err != nil {
		t.Fatalf("second Launch returned %v", err)
	}

	select {
	case id := <-done:
		if id != st.ID() {
			t.Fatalf("exhausted callback for wrong campaign")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not drain the queue in time")
	}

	snapshot := st.Snapshot()
	if snapshot.Statistics.TotalDialed != 1 {
		t.Fatalf("expected the failed call counted once, got %+v", snapshot.Statistics)
	}
}

func TestLaunchRejectsUnknownMode(t *testing.T) {
	e := testEngine(newScriptedProvider(), agent.NewAuto(), &memAttemptLog{})
	st := testState(nil, domain.ScheduleWindow{})
	st.Update(func(c *domain.Campaign) { c.Mode = "turbo" })

	if err := e.Launch(context.Background(), st); err == nil {
		t.Fatalf("expected unknown mode to fail launch")
	}
}
