package report

import (
	"time"

	"github.com/acme/powerdialer/internal/domain"
)

// Generator produces the frozen end-of-campaign summary.
type Generator struct {
	costPerMinute float64
	now           func() time.Time
}

// NewGenerator constructs a report generator. costPerMinute prices connected
// talk time for the estimated cost line.
func NewGenerator(costPerMinute float64) *Generator {
	return &Generator{costPerMinute: costPerMinute, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// Generate builds a report from the campaign's frozen statistics. The
// campaign is read, never mutated.
func (g *Generator) Generate(campaign *domain.Campaign) *domain.CampaignReport {
	now := g.now().UTC()
	stats := campaign.Statistics

	var duration time.Duration
	if campaign.StartedAt != nil {
		end := now
		if campaign.CompletedAt != nil {
			end = *campaign.CompletedAt
		}
		duration = end.Sub(*campaign.StartedAt)
	}

	connectRate := 0.0
	if stats.TotalDialed > 0 {
		connectRate = float64(stats.Connected) / float64(stats.TotalDialed) * 100
	}

	talkMinutes := (time.Duration(stats.Connected) * stats.AvgCallDuration).Minutes()

	return &domain.CampaignReport{
		CampaignID:      campaign.ID,
		CampaignName:    campaign.Name,
		Duration:        duration,
		TotalDialed:     stats.TotalDialed,
		Connected:       stats.Connected,
		ConnectRate:     connectRate,
		AvgCallDuration: stats.AvgCallDuration,
		Voicemails:      stats.Voicemails,
		Callbacks:       stats.Callbacks,
		Appointments:    stats.Appointments,
		AbandonedCalls:  stats.AbandonedCalls,
		ComplianceHolds: stats.ComplianceHolds,
		EstimatedCost:   talkMinutes * g.costPerMinute,
		Recommendations: recommendations(stats),
		GeneratedAt:     now,
	}
}

// Recommendation thresholds, tuned against historical campaign data.
const (
	lowConversionRate  = 0.02
	shortCallThreshold = 30 * time.Second
)

func recommendations(stats domain.Statistics) []string {
	recs := make([]string, 0, 3)

	if stats.TotalDialed > 0 && stats.ConversionRate < lowConversionRate {
		recs = append(recs, "Conversion rate is low; review contact list quality and lead sourcing.")
	}
	if stats.Connected > 0 && stats.AvgCallDuration < shortCallThreshold {
		recs = append(recs, "Average call duration is short; review the opening script for early hang-ups.")
	}
	if stats.Voicemails > stats.Connected {
		recs = append(recs, "Voicemails outnumber live connects; shift the schedule window toward hours contacts answer.")
	}

	return recs
}
