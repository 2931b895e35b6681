package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/domain"
)

// Decision is the agent's verdict on a previewed contact.
type Decision string

const (
	DecisionDial   Decision = "dial"
	DecisionSkip   Decision = "skip"
	DecisionRemove Decision = "remove"
)

// PreviewCard is what preview mode shows the agent before dialing.
type PreviewCard struct {
	CampaignID  uuid.UUID          `json:"campaign_id"`
	Contact     domain.Contact     `json:"contact"`
	Script      string             `json:"script"`
	Attempts    int                `json:"attempts"`
	LastOutcome *domain.CallOutcome `json:"last_outcome,omitempty"`
}

// Channel is the agent presence boundary. WaitReady blocks until an agent is
// available to take a call; Decide drives preview mode; Disposition collects
// the agent's classification after a bridged call (empty when none arrives
// in time).
type Channel interface {
	WaitReady(ctx context.Context, campaignID uuid.UUID) error
	Decide(ctx context.Context, card PreviewCard) (Decision, error)
	Disposition(ctx context.Context, campaignID uuid.UUID, contact domain.Contact) (string, error)
}

// Auto is a Channel for unattended runs and tests: always ready, always
// dials, records no dispositions.
type Auto struct{}

// NewAuto constructs an always-ready channel.
func NewAuto() *Auto {
	return &Auto{}
}

func (a *Auto) WaitReady(ctx context.Context, campaignID uuid.UUID) error {
	return ctx.Err()
}

func (a *Auto) Decide(ctx context.Context, card PreviewCard) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return DecisionDial, nil
}

func (a *Auto) Disposition(ctx context.Context, campaignID uuid.UUID, contact domain.Contact) (string, error) {
	return "", ctx.Err()
}
