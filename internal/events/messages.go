package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/domain"
)

// OutcomeEvent records the result of a single dial attempt.
type OutcomeEvent struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	CampaignID     uuid.UUID `json:"campaign_id"`
	QueueItemID    uuid.UUID `json:"queue_item_id"`
	PhoneNumber    string    `json:"phone_number"`
	Attempt        int       `json:"attempt"`
	Outcome        string    `json:"outcome"`
	Disposition    string    `json:"disposition,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Abandoned      bool      `json:"abandoned"`
	ComplianceHold bool      `json:"compliance_hold"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ReportEvent carries the final campaign report for downstream consumers.
type ReportEvent struct {
	CampaignID uuid.UUID              `json:"campaign_id"`
	Report     *domain.CampaignReport `json:"report"`
	OccurredAt time.Time              `json:"occurred_at"`
}
