package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContactPriority orders contacts within a campaign queue. Higher values
// always dominate lead score when sorting.
type ContactPriority int

const (
	PriorityLow ContactPriority = iota
	PriorityMedium
	PriorityHigh
)

// ParseContactPriority maps the wire representation to a priority class.
func ParseContactPriority(s string) (ContactPriority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	}
	return PriorityLow, false
}

func (p ContactPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	}
	return "low"
}

// Contact is one dialable entry from the contact store.
type Contact struct {
	ID              uuid.UUID
	Name            string
	Phone           string
	Priority        ContactPriority
	LeadScore       int
	DoNotCall       bool
	LastContactedAt *time.Time
}
