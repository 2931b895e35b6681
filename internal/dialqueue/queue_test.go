package dialqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/compliance"
	"github.com/acme/powerdialer/internal/domain"
)

func newContact(name string, priority domain.ContactPriority, score int) domain.Contact {
	return domain.Contact{
		ID:        uuid.New(),
		Name:      name,
		Phone:     "+1555" + name,
		Priority:  priority,
		LeadScore: score,
	}
}

func TestBuildOrdersByPriorityThenScore(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	c := &domain.Campaign{
		ID: uuid.New(),
		Contacts: []domain.Contact{
			newContact("low99", domain.PriorityLow, 99),
			newContact("high90", domain.PriorityHigh, 90),
			newContact("high95", domain.PriorityHigh, 95),
			newContact("med50", domain.PriorityMedium, 50),
		},
	}

	q := NewBuilder(compliance.NewGate()).Build(c, now)

	want := []string{"high95", "high90", "med50", "low99"}
	for _, name := range want {
		item, err := q.Next()
		if err != nil {
			t.Fatalf("Next() returned %v, want item %s", err, name)
		}
		if item.Contact.Name != name {
			t.Fatalf("wrong order: got %s, want %s", item.Contact.Name, name)
		}
	}
}

func TestBuildFiltersContacts(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)

	dnc := newContact("dnc", domain.PriorityHigh, 100)
	dnc.DoNotCall = true
	noPhone := newContact("nophone", domain.PriorityHigh, 100)
	noPhone.Phone = ""
	tooRecent := newContact("recent", domain.PriorityHigh, 100)
	tooRecent.LastContactedAt = &recent
	keep := newContact("keep", domain.PriorityLow, 10)

	c := &domain.Campaign{
		ID:       uuid.New(),
		Contacts: []domain.Contact{dnc, noPhone, tooRecent, keep},
		Filter:   domain.ContactFilter{MaxRecency: 24 * time.Hour},
	}

	q := NewBuilder(compliance.NewGate()).Build(c, now)
	if q.Size() != 1 {
		t.Fatalf("expected 1 eligible contact, got %d", q.Size())
	}
	item, err := q.Next()
	if err != nil {
		t.Fatalf("Next() returned %v", err)
	}
	if item.Contact.Name != "keep" {
		t.Fatalf("expected keep to survive filtering, got %s", item.Contact.Name)
	}
}

func TestBuildPriorityFilter(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	high := domain.PriorityHigh
	c := &domain.Campaign{
		ID: uuid.New(),
		Contacts: []domain.Contact{
			newContact("high", domain.PriorityHigh, 50),
			newContact("low", domain.PriorityLow, 50),
		},
		Filter: domain.ContactFilter{Priority: &high},
	}

	q := NewBuilder(compliance.NewGate()).Build(c, now)
	if q.Size() != 1 {
		t.Fatalf("expected only the high-priority contact, got %d items", q.Size())
	}
}

func TestBuildOutsideWindowDefersAll(t *testing.T) {
	// Monday 20:00, window is 9-17 Monday.
	now := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	c := &domain.Campaign{
		ID:       uuid.New(),
		Contacts: []domain.Contact{newContact("a", domain.PriorityHigh, 50)},
		Schedule: domain.ScheduleWindow{
			StartHour: 9,
			EndHour:   17,
			TimeZone:  "UTC",
			Weekdays:  []time.Weekday{time.Monday},
		},
	}

	q := NewBuilder(compliance.NewGate()).Build(c, now)
	q.SetClock(func() time.Time { return now })

	if _, err := q.Next(); !errors.Is(err, ErrNoneEligible) {
		t.Fatalf("expected ErrNoneEligible outside window, got %v", err)
	}

	nextMonday := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	at, ok := q.NextEligibleAt()
	if !ok || !at.Equal(nextMonday) {
		t.Fatalf("expected items deferred to %v, got %v (ok=%v)", nextMonday, at, ok)
	}

	q.SetClock(func() time.Time { return nextMonday })
	if _, err := q.Next(); err != nil {
		t.Fatalf("expected item to become eligible at window start, got %v", err)
	}
}

func TestDeferAndClockPromotion(t *testing.T) {
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	items := []*domain.CallQueueItem{
		{ID: uuid.New(), Contact: newContact("a", domain.PriorityHigh, 50), EligibleAt: base},
	}
	q := New(items, base)
	q.SetClock(func() time.Time { return base })

	item, err := q.Next()
	if err != nil {
		t.Fatalf("Next() returned %v", err)
	}

	retryAt := base.Add(15 * time.Minute)
	out := domain.OutcomeBusy
	item.Outcome = &out
	q.Defer(item, retryAt)

	if item.Outcome != nil {
		t.Fatalf("expected outcome cleared on deferral")
	}
	if _, err := q.Next(); !errors.Is(err, ErrNoneEligible) {
		t.Fatalf("expected ErrNoneEligible before retry time, got %v", err)
	}

	q.SetClock(func() time.Time { return retryAt })
	again, err := q.Next()
	if err != nil {
		t.Fatalf("expected retry to be eligible, got %v", err)
	}
	if again.ID != item.ID {
		t.Fatalf("expected the deferred item back")
	}
}

func TestDeferredHeapOrder(t *testing.T) {
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	q := New(nil, base)
	q.SetClock(func() time.Time { return base })

	late := &domain.CallQueueItem{ID: uuid.New(), Contact: newContact("late", 0, 0), EligibleAt: base.Add(time.Hour)}
	early := &domain.CallQueueItem{ID: uuid.New(), Contact: newContact("early", 0, 0), EligibleAt: base.Add(time.Minute)}

	// Route through inflight so Defer accepts them.
	q.inflight[late.ID] = late
	q.inflight[early.ID] = early
	q.Defer(late, late.EligibleAt)
	q.Defer(early, early.EligibleAt)

	q.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	first, err := q.Next()
	if err != nil {
		t.Fatalf("Next() returned %v", err)
	}
	if first.Contact.Name != "early" {
		t.Fatalf("expected earliest deferred item first, got %s", first.Contact.Name)
	}
}

func TestExhaustion(t *testing.T) {
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	items := []*domain.CallQueueItem{
		{ID: uuid.New(), Contact: newContact("a", 0, 0), EligibleAt: base},
	}
	q := New(items, base)
	q.SetClock(func() time.Time { return base })

	item, err := q.Next()
	if err != nil {
		t.Fatalf("Next() returned %v", err)
	}

	// Item in flight: not exhausted yet.
	if _, err := q.Next(); !errors.Is(err, ErrNoneEligible) {
		t.Fatalf("expected ErrNoneEligible with item in flight, got %v", err)
	}

	q.Remove(item)
	if _, err := q.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted after final removal, got %v", err)
	}
}

func TestRequeue(t *testing.T) {
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	items := []*domain.CallQueueItem{
		{ID: uuid.New(), Contact: newContact("a", 0, 0), EligibleAt: base},
		{ID: uuid.New(), Contact: newContact("b", 0, 0), EligibleAt: base},
	}
	q := New(items, base)
	q.SetClock(func() time.Time { return base })

	first, _ := q.Next()
	q.Requeue(first)

	second, err := q.Next()
	if err != nil {
		t.Fatalf("Next() returned %v", err)
	}
	if second.Contact.Name != "b" {
		t.Fatalf("expected requeued item to go to the back, got %s", second.Contact.Name)
	}
}
