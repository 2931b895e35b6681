package compliance

import (
	"testing"
	"time"

	"github.com/acme/powerdialer/internal/domain"
)

func TestIsDialable(t *testing.T) {
	g := NewGate()

	if !g.IsDialable(domain.Contact{Phone: "+15550001"}) {
		t.Fatalf("expected plain contact to be dialable")
	}
	if g.IsDialable(domain.Contact{Phone: "+15550002", DoNotCall: true}) {
		t.Fatalf("expected do-not-call contact to be blocked")
	}
}

func TestIsWithinWindow(t *testing.T) {
	g := NewGate()
	window := domain.ScheduleWindow{
		StartHour: 9,
		EndHour:   17,
		TimeZone:  "UTC",
		Weekdays:  []time.Weekday{time.Monday},
	}

	mondayMorning := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !g.IsWithinWindow(window, mondayMorning) {
		t.Fatalf("expected %v to be within window", mondayMorning)
	}

	mondayNight := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	if g.IsWithinWindow(window, mondayNight) {
		t.Fatalf("expected %v to be outside window", mondayNight)
	}

	tuesdayMorning := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if g.IsWithinWindow(window, tuesdayMorning) {
		t.Fatalf("expected %v to be outside window (wrong day)", tuesdayMorning)
	}

	endHour := time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)
	if g.IsWithinWindow(window, endHour) {
		t.Fatalf("expected end hour to be exclusive")
	}
}

func TestIsWithinWindowEmptySchedule(t *testing.T) {
	g := NewGate()
	anytime := time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC)
	if !g.IsWithinWindow(domain.ScheduleWindow{}, anytime) {
		t.Fatalf("expected empty schedule to permit dialing at any time")
	}
}

func TestIsWithinWindowTimeZone(t *testing.T) {
	g := NewGate()
	window := domain.ScheduleWindow{
		StartHour: 9,
		EndHour:   17,
		TimeZone:  "America/New_York",
	}

	// 15:00 UTC is 10:00 in New York in January.
	utcAfternoon := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)
	if !g.IsWithinWindow(window, utcAfternoon) {
		t.Fatalf("expected %v to be within the local window", utcAfternoon)
	}

	// 02:00 UTC is 21:00 previous evening in New York.
	utcNight := time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC)
	if g.IsWithinWindow(window, utcNight) {
		t.Fatalf("expected %v to be outside the local window", utcNight)
	}
}

func TestNextWindowStart(t *testing.T) {
	g := NewGate()
	window := domain.ScheduleWindow{
		StartHour: 9,
		EndHour:   17,
		TimeZone:  "UTC",
		Weekdays:  []time.Weekday{time.Monday, time.Tuesday},
	}

	// Already inside the window: no deferral.
	inside := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := g.NextWindowStart(window, inside); !got.Equal(inside) {
		t.Fatalf("expected in-window time to be returned unchanged, got %v", got)
	}

	// Monday evening rolls over to Tuesday 09:00.
	mondayEvening := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if got := g.NextWindowStart(window, mondayEvening); !got.Equal(want) {
		t.Fatalf("expected next window %v, got %v", want, got)
	}

	// Wednesday skips to next Monday.
	wednesday := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	want = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if got := g.NextWindowStart(window, wednesday); !got.Equal(want) {
		t.Fatalf("expected next window %v, got %v", want, got)
	}
}
