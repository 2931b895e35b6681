package outcome

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/telephony"
)

func newCampaign(maxRetries int) *domain.Campaign {
	return &domain.Campaign{
		ID: uuid.New(),
		RetryPolicy: domain.RetryPolicy{
			MaxRetries: maxRetries,
			RetryDelay: 15 * time.Minute,
		},
	}
}

func newItem(c *domain.Campaign) *domain.CallQueueItem {
	return &domain.CallQueueItem{
		ID:         uuid.New(),
		CampaignID: c.ID,
		Contact:    domain.Contact{ID: uuid.New(), Phone: "+15550100"},
	}
}

func fixedProcessor(at time.Time) *Processor {
	p := NewProcessor()
	p.SetClock(func() time.Time { return at })
	return p
}

func TestHandleAnswered(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := fixedProcessor(now)
	c := newCampaign(2)
	item := newItem(c)

	handled := p.Handle(c, item, Result{Outcome: domain.OutcomeAnswered, Duration: 120 * time.Second})

	if handled.Decision != DecisionRemove {
		t.Fatalf("expected answered call to remove the item")
	}
	if item.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", item.Attempts)
	}
	if c.Statistics.TotalDialed != 1 || c.Statistics.Connected != 1 {
		t.Fatalf("unexpected stats: %+v", c.Statistics)
	}
	if c.Statistics.AvgCallDuration != 120*time.Second {
		t.Fatalf("expected avg duration 120s, got %s", c.Statistics.AvgCallDuration)
	}
	if c.Statistics.ConversionRate != 1.0 {
		t.Fatalf("expected conversion rate 1.0, got %f", c.Statistics.ConversionRate)
	}
}

func TestHandleAveragesDurationIncrementally(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := fixedProcessor(now)
	c := newCampaign(2)

	p.Handle(c, newItem(c), Result{Outcome: domain.OutcomeAnswered, Duration: 60 * time.Second})
	p.Handle(c, newItem(c), Result{Outcome: domain.OutcomeAnswered, Duration: 180 * time.Second})

	if c.Statistics.AvgCallDuration != 120*time.Second {
		t.Fatalf("expected avg duration 120s, got %s", c.Statistics.AvgCallDuration)
	}
}

func TestHandleBusyRetriesThenRemoves(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := fixedProcessor(now)
	c := newCampaign(2)
	item := newItem(c)

	handled := p.Handle(c, item, Result{Outcome: domain.OutcomeBusy})
	if handled.Decision != DecisionRetry {
		t.Fatalf("expected first busy to retry")
	}
	if want := now.Add(15 * time.Minute); !handled.RetryAt.Equal(want) {
		t.Fatalf("expected retry at %v, got %v", want, handled.RetryAt)
	}

	handled = p.Handle(c, item, Result{Outcome: domain.OutcomeBusy})
	if handled.Decision != DecisionRemove {
		t.Fatalf("expected busy at retry limit to remove")
	}
	if item.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", item.Attempts)
	}
	if c.Statistics.TotalDialed != 2 {
		t.Fatalf("expected every placement counted, got %d", c.Statistics.TotalDialed)
	}
}

func TestHandleTerminalOutcomesNeverRetry(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	for _, out := range []domain.CallOutcome{domain.OutcomeFailed, domain.OutcomeInvalidNumber, domain.OutcomeDoNotCall} {
		p := fixedProcessor(now)
		c := newCampaign(5)
		item := newItem(c)
		if handled := p.Handle(c, item, Result{Outcome: out}); handled.Decision != DecisionRemove {
			t.Fatalf("expected %s to remove without retry", out)
		}
	}
}

func TestHandleVoicemailCountsAndRetries(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := fixedProcessor(now)
	c := newCampaign(2)
	item := newItem(c)

	handled := p.Handle(c, item, Result{Outcome: domain.OutcomeVoicemail})
	if handled.Decision != DecisionRetry {
		t.Fatalf("expected voicemail to retry")
	}
	if c.Statistics.Voicemails != 1 {
		t.Fatalf("expected voicemail counted, got %+v", c.Statistics)
	}
}

func TestHandleAbandonedAnswer(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := fixedProcessor(now)
	c := newCampaign(2)
	item := newItem(c)

	p.Handle(c, item, Result{Outcome: domain.OutcomeAnswered, Abandoned: true, Duration: 5 * time.Second})

	if c.Statistics.Connected != 0 {
		t.Fatalf("abandoned answer must not count as a connect")
	}
	if c.Statistics.AbandonedCalls != 1 {
		t.Fatalf("expected abandoned call counted, got %+v", c.Statistics)
	}
	if c.Statistics.TotalDialed != 1 {
		t.Fatalf("expected dial counted, got %+v", c.Statistics)
	}
}

func TestHandleDispositions(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := fixedProcessor(now)
	c := newCampaign(2)

	p.Handle(c, newItem(c), Result{Outcome: domain.OutcomeAnswered, Duration: time.Minute, Disposition: DispositionAppointment})
	p.Handle(c, newItem(c), Result{Outcome: domain.OutcomeAnswered, Duration: time.Minute, Disposition: DispositionCallback})

	if c.Statistics.Appointments != 1 || c.Statistics.Callbacks != 1 {
		t.Fatalf("expected dispositions counted, got %+v", c.Statistics)
	}
}

func TestHandleComplianceHold(t *testing.T) {
	p := NewProcessor()
	c := newCampaign(2)
	item := newItem(c)

	p.HandleComplianceHold(c, item)

	if c.Statistics.ComplianceHolds != 1 {
		t.Fatalf("expected hold counted, got %+v", c.Statistics)
	}
	if c.Statistics.TotalDialed != 0 {
		t.Fatalf("a hold is not a dial, got %+v", c.Statistics)
	}
	if item.Attempts != 0 {
		t.Fatalf("a hold is not an attempt, got %d", item.Attempts)
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status telephony.CallStatus
		want   domain.CallOutcome
	}{
		{telephony.CallStatus{State: telephony.StateAnswered, AnsweredBy: telephony.AnsweredByHuman, DurationSeconds: 30}, domain.OutcomeAnswered},
		{telephony.CallStatus{State: telephony.StateAnswered, AnsweredBy: telephony.AnsweredByMachine}, domain.OutcomeVoicemail},
		{telephony.CallStatus{State: telephony.StateBusy}, domain.OutcomeBusy},
		{telephony.CallStatus{State: telephony.StateNoAnswer}, domain.OutcomeNoAnswer},
		{telephony.CallStatus{State: telephony.StateInvalidNumber}, domain.OutcomeInvalidNumber},
		{telephony.CallStatus{State: telephony.StateFailed}, domain.OutcomeFailed},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.status); got.Outcome != tc.want {
			t.Fatalf("MapStatus(%s) = %s, want %s", tc.status.State, got.Outcome, tc.want)
		}
	}

	res := MapStatus(telephony.CallStatus{State: telephony.StateAnswered, AnsweredBy: telephony.AnsweredByHuman, DurationSeconds: 90})
	if res.Duration != 90*time.Second {
		t.Fatalf("expected duration mapped, got %s", res.Duration)
	}
}
