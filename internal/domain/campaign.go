package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusCreated   CampaignStatus = "created"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// DialMode selects the pacing strategy used by the dialing loop.
type DialMode string

const (
	DialModePreview     DialMode = "preview"
	DialModeProgressive DialMode = "progressive"
	DialModePredictive  DialMode = "predictive"
	DialModePower       DialMode = "power"
)

// ValidDialMode reports whether mode names a known strategy.
func ValidDialMode(mode DialMode) bool {
	switch mode {
	case DialModePreview, DialModeProgressive, DialModePredictive, DialModePower:
		return true
	}
	return false
}

// ScheduleWindow constrains the local hours and weekdays a campaign may dial.
type ScheduleWindow struct {
	StartHour int
	EndHour   int
	TimeZone  string
	Weekdays  []time.Weekday
}

// Goals captures the targets a campaign is driving toward.
type Goals struct {
	TargetCalls        int
	TargetConnects     int
	TargetAppointments int
}

// RetryPolicy defines redial rules for non-terminal outcomes.
type RetryPolicy struct {
	MaxRetries int
	RetryDelay time.Duration
}

// ContactFilter narrows the contact snapshot taken at campaign creation.
type ContactFilter struct {
	Priority   *ContactPriority
	MaxRecency time.Duration
}

// Statistics accumulates campaign performance counters. Mutated only through
// the outcome processor while the owning campaign's lock is held.
type Statistics struct {
	TotalDialed     int
	Connected       int
	Voicemails      int
	Callbacks       int
	Appointments    int
	AbandonedCalls  int
	ComplianceHolds int
	AvgCallDuration time.Duration
	ConversionRate  float64
}

// Campaign models one bounded unit of outbound dialing work.
type Campaign struct {
	ID          uuid.UUID
	Name        string
	AgentID     string
	Mode        DialMode
	Script      string
	Contacts    []Contact
	Filter      ContactFilter
	Schedule    ScheduleWindow
	Goals       Goals
	RetryPolicy RetryPolicy
	Status      CampaignStatus
	Statistics  Statistics
	CreatedAt   time.Time
	StartedAt   *time.Time
	PausedAt    *time.Time
	CompletedAt *time.Time
}

// CampaignReport is the frozen end-of-campaign summary.
type CampaignReport struct {
	CampaignID      uuid.UUID
	CampaignName    string
	Duration        time.Duration
	TotalDialed     int
	Connected       int
	ConnectRate     float64
	AvgCallDuration time.Duration
	Voicemails      int
	Callbacks       int
	Appointments    int
	AbandonedCalls  int
	ComplianceHolds int
	EstimatedCost   float64
	Recommendations []string
	GeneratedAt     time.Time
}
