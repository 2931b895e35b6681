package telephony

import (
	"context"

	"github.com/google/uuid"
)

// Call states reported by the provider. Everything except StateDialing is
// terminal for an attempt.
const (
	StateDialing       = "dialing"
	StateAnswered      = "answered"
	StateBusy          = "busy"
	StateNoAnswer      = "no-answer"
	StateFailed        = "failed"
	StateInvalidNumber = "invalid-number"
)

// AnsweredBy values for answered calls.
const (
	AnsweredByHuman   = "human"
	AnsweredByMachine = "machine"
)

// PlaceCallRequest carries everything needed to start one outbound attempt.
type PlaceCallRequest struct {
	To             string
	From           string
	CampaignID     uuid.UUID
	QueueItemID    uuid.UUID
	StatusCallback string
}

// CallHandle identifies a placed call at the provider.
type CallHandle struct {
	ID string
}

// CallStatus is the provider's view of a call.
type CallStatus struct {
	State           string
	DurationSeconds int
	AnsweredBy      string
}

// Terminal reports whether the status ends the attempt.
func (s CallStatus) Terminal() bool {
	return s.State != "" && s.State != StateDialing
}

// Provider abstracts the telephony integration. Implementations must be safe
// for concurrent use; predictive mode places several calls at once.
type Provider interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (CallHandle, error)
	GetCallStatus(ctx context.Context, callID string) (CallStatus, error)
	BridgeToAgent(ctx context.Context, callID, agentTarget string) error
}

// StatusSubscriber is implemented by providers that can push status events.
// When available the dialer prefers it over polling.
type StatusSubscriber interface {
	SubscribeStatus(callID string) <-chan CallStatus
}

// VoicemailDropper is implemented by providers that can leave a pre-recorded
// message after a machine answer.
type VoicemailDropper interface {
	DropVoicemail(ctx context.Context, callID, recordingURL string) error
}
