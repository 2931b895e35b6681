package compliance

import (
	"time"

	"github.com/acme/powerdialer/internal/domain"
)

// Gate evaluates whether a contact may legally be dialed at a given time.
// It is consulted once at queue-build time and again immediately before each
// placement, since a window can close between the two.
type Gate struct{}

// NewGate constructs a compliance gate.
func NewGate() *Gate {
	return &Gate{}
}

// IsDialable reports whether the contact may be dialed at all.
func (g *Gate) IsDialable(contact domain.Contact) bool {
	return !contact.DoNotCall
}

// IsWithinWindow reports whether now falls inside the campaign's allowed
// calling hours. The check is done in the schedule's local time zone; the
// window is [StartHour, EndHour) on an allowed weekday. An empty schedule
// permits dialing at any time.
func (g *Gate) IsWithinWindow(window domain.ScheduleWindow, now time.Time) bool {
	if window.StartHour == 0 && window.EndHour == 0 && len(window.Weekdays) == 0 {
		return true
	}

	local := now.In(location(window.TimeZone))
	if !weekdayAllowed(window, local.Weekday()) {
		return false
	}
	hour := local.Hour()
	return hour >= window.StartHour && hour < window.EndHour
}

// NextWindowStart returns the earliest instant at or after now that falls
// inside the window. Items built outside the window are deferred to this
// time rather than dropped.
func (g *Gate) NextWindowStart(window domain.ScheduleWindow, now time.Time) time.Time {
	if g.IsWithinWindow(window, now) {
		return now
	}

	loc := location(window.TimeZone)
	local := now.In(loc)

	for day := 0; day <= 7; day++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day(),
			window.StartHour, 0, 0, 0, loc).AddDate(0, 0, day)
		if candidate.Before(local) {
			continue
		}
		if !weekdayAllowed(window, candidate.Weekday()) {
			continue
		}
		return candidate
	}

	// Window unusable (no allowed weekdays). Defer a day so the caller does
	// not spin.
	return now.Add(24 * time.Hour)
}

func weekdayAllowed(window domain.ScheduleWindow, day time.Weekday) bool {
	if len(window.Weekdays) == 0 {
		return true
	}
	for _, allowed := range window.Weekdays {
		if allowed == day {
			return true
		}
	}
	return false
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
