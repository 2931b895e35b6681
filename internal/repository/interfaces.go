package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/domain"
	apperrors "github.com/acme/powerdialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository is the write-through durable store for campaigns. The
// in-memory campaign store stays authoritative while a campaign runs; this
// repository lets unfinished campaigns survive a process restart.
type CampaignRepository interface {
	Save(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	List(ctx context.Context, limit int) ([]*domain.Campaign, error)
	ListUnfinished(ctx context.Context) ([]*domain.Campaign, error)
}

// ContactRepository persists a campaign's contact snapshot.
type ContactRepository interface {
	BulkInsert(ctx context.Context, campaignID uuid.UUID, contacts []domain.Contact) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Contact, error)
}

// AttemptLog is the append-only audit trail of every attempt, including
// abandoned calls and compliance holds, so those are distinguishable from
// ordinary failures after the fact.
type AttemptLog interface {
	Append(ctx context.Context, record AttemptRecord) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]AttemptRecord, error)
}

// AttemptRecord is the storage representation of one attempt event.
type AttemptRecord struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	QueueItemID    uuid.UUID
	Phone          string
	Attempt        int
	Outcome        string
	DurationMs     int64
	Abandoned      bool
	ComplianceHold bool
	Error          string
	OccurredAt     time.Time
}
