package outcome

import (
	"time"

	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/telephony"
)

// Result is the domain view of one finished call attempt.
type Result struct {
	Outcome     domain.CallOutcome
	Duration    time.Duration
	Disposition string // agent disposition after a bridged call
	Abandoned   bool   // answered but never routed to an agent
	Error       string
}

// Agent dispositions recorded after a bridged call.
const (
	DispositionAppointment = "appointment"
	DispositionCallback    = "callback"
)

// Decision is the secondary transition applied to the queue item.
type Decision int

const (
	DecisionRemove Decision = iota
	DecisionRetry
)

// Handled reports what the caller must do with the queue item.
type Handled struct {
	Decision Decision
	RetryAt  time.Time
}

// MapStatus converts a raw provider status into a domain result. A machine
// answer classifies as voicemail.
func MapStatus(status telephony.CallStatus) Result {
	switch status.State {
	case telephony.StateAnswered:
		if status.AnsweredBy == telephony.AnsweredByMachine {
			return Result{Outcome: domain.OutcomeVoicemail}
		}
		return Result{
			Outcome:  domain.OutcomeAnswered,
			Duration: time.Duration(status.DurationSeconds) * time.Second,
		}
	case telephony.StateBusy:
		return Result{Outcome: domain.OutcomeBusy}
	case telephony.StateNoAnswer:
		return Result{Outcome: domain.OutcomeNoAnswer}
	case telephony.StateInvalidNumber:
		return Result{Outcome: domain.OutcomeInvalidNumber}
	default:
		return Result{Outcome: domain.OutcomeFailed, Error: "provider reported " + status.State}
	}
}

// Processor applies attempt results to the queue item and the campaign
// statistics, and decides retry versus removal. It performs no I/O; callers
// invoke Handle while holding the campaign's state lock.
type Processor struct {
	now func() time.Time
}

// NewProcessor constructs a processor.
func NewProcessor() *Processor {
	return &Processor{now: time.Now}
}

// SetClock overrides the processor's time source for tests.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// Handle records one placed call against the item and statistics. Every
// branch counts exactly one dial. Answered removes and connects; voicemail,
// busy and no-answer retry until the policy is spent; failed and invalid
// numbers are never retried.
func (p *Processor) Handle(campaign *domain.Campaign, item *domain.CallQueueItem, res Result) Handled {
	now := p.now()
	item.Attempts++
	item.LastAttemptAt = &now
	out := res.Outcome
	item.Outcome = &out

	stats := &campaign.Statistics
	stats.TotalDialed++

	handled := Handled{Decision: DecisionRemove}

	switch res.Outcome {
	case domain.OutcomeAnswered:
		if res.Abandoned {
			stats.AbandonedCalls++
			break
		}
		stats.Connected++
		n := time.Duration(stats.Connected)
		stats.AvgCallDuration += (res.Duration - stats.AvgCallDuration) / n
		switch res.Disposition {
		case DispositionAppointment:
			stats.Appointments++
		case DispositionCallback:
			stats.Callbacks++
		}

	case domain.OutcomeCallbackScheduled:
		stats.Callbacks++

	case domain.OutcomeVoicemail:
		stats.Voicemails++
		handled = p.retryOrRemove(campaign, item, now)

	case domain.OutcomeBusy, domain.OutcomeNoAnswer:
		handled = p.retryOrRemove(campaign, item, now)

	case domain.OutcomeFailed, domain.OutcomeInvalidNumber, domain.OutcomeDoNotCall:
		// terminal, never retried
	}

	if stats.TotalDialed > 0 {
		stats.ConversionRate = float64(stats.Connected) / float64(stats.TotalDialed)
	} else {
		stats.ConversionRate = 0
	}

	return handled
}

// HandleComplianceHold records an attempt blocked by the compliance gate.
// The item was never dialed, so it counts as a hold, not a dial.
func (p *Processor) HandleComplianceHold(campaign *domain.Campaign, item *domain.CallQueueItem) {
	campaign.Statistics.ComplianceHolds++
}

func (p *Processor) retryOrRemove(campaign *domain.Campaign, item *domain.CallQueueItem, now time.Time) Handled {
	if item.Attempts < campaign.RetryPolicy.MaxRetries {
		return Handled{
			Decision: DecisionRetry,
			RetryAt:  now.Add(campaign.RetryPolicy.RetryDelay),
		}
	}
	return Handled{Decision: DecisionRemove}
}
