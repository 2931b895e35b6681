package dialqueue

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/compliance"
	"github.com/acme/powerdialer/internal/domain"
)

// Builder turns a campaign's contact snapshot into an ordered,
// compliance-checked call queue.
type Builder struct {
	gate *compliance.Gate
}

// NewBuilder constructs a queue builder.
func NewBuilder(gate *compliance.Gate) *Builder {
	return &Builder{gate: gate}
}

// Build filters, orders and schedules the campaign's contacts. Contacts are
// not mutated. Ordering contract: priority class descending, then lead score
// descending within each class.
func (b *Builder) Build(campaign *domain.Campaign, now time.Time) *Queue {
	eligible := make([]domain.Contact, 0, len(campaign.Contacts))
	for _, contact := range campaign.Contacts {
		if contact.Phone == "" {
			continue
		}
		if !b.gate.IsDialable(contact) {
			continue
		}
		if campaign.Filter.Priority != nil && contact.Priority != *campaign.Filter.Priority {
			continue
		}
		if tooRecent(contact, campaign.Filter.MaxRecency, now) {
			continue
		}
		eligible = append(eligible, contact)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].LeadScore > eligible[j].LeadScore
	})

	eligibleAt := now
	if !b.gate.IsWithinWindow(campaign.Schedule, now) {
		eligibleAt = b.gate.NextWindowStart(campaign.Schedule, now)
	}

	items := make([]*domain.CallQueueItem, 0, len(eligible))
	for _, contact := range eligible {
		items = append(items, &domain.CallQueueItem{
			ID:         uuid.New(),
			CampaignID: campaign.ID,
			Contact:    contact,
			EligibleAt: eligibleAt,
		})
	}

	return New(items, now)
}

func tooRecent(contact domain.Contact, maxRecency time.Duration, now time.Time) bool {
	if maxRecency <= 0 || contact.LastContactedAt == nil {
		return false
	}
	return now.Sub(*contact.LastContactedAt) < maxRecency
}
