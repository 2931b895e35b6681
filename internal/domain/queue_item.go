package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallOutcome is the terminal classification of one call attempt.
type CallOutcome string

const (
	OutcomeAnswered          CallOutcome = "answered"
	OutcomeVoicemail         CallOutcome = "voicemail"
	OutcomeBusy              CallOutcome = "busy"
	OutcomeNoAnswer          CallOutcome = "no_answer"
	OutcomeFailed            CallOutcome = "failed"
	OutcomeInvalidNumber     CallOutcome = "invalid_number"
	OutcomeDoNotCall         CallOutcome = "do_not_call"
	OutcomeCallbackScheduled CallOutcome = "callback_scheduled"
)

// CallQueueItem is one contact's dialing state within a campaign's live
// queue. EligibleAt gates when the item may next be dialed; Outcome is
// cleared whenever a retry is scheduled.
type CallQueueItem struct {
	ID            uuid.UUID
	CampaignID    uuid.UUID
	Contact       Contact
	Attempts      int
	LastAttemptAt *time.Time
	Outcome       *CallOutcome
	EligibleAt    time.Time
}
