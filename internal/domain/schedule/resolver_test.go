package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestExpandMatchesWeekdaysOnly(t *testing.T) {
	providerID := uuid.New()
	monday := Template{ID: uuid.New(), ProviderID: providerID, Weekday: time.Monday, StartTime: "08:00", EndTime: "09:00", Capacity: 5}
	thursday := Template{ID: uuid.New(), ProviderID: providerID, Weekday: time.Thursday, StartTime: "14:00", EndTime: "16:00", Capacity: 3}

	// 2026-08-31 is a Monday.
	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	var slots []Slot
	for s := range Expand([]Template{monday, thursday}, from, 14, time.UTC) {
		slots = append(slots, s)
	}

	if len(slots) != 4 {
		t.Fatalf("expected 4 slots over two weeks, got %d", len(slots))
	}

	for _, s := range slots {
		if s.Date.Weekday() != s.Template.Weekday {
			t.Errorf("slot %s has weekday %v, template wants %v", s.Date, s.Date.Weekday(), s.Template.Weekday)
		}
		if s.Date.Before(from) || !s.Date.Before(from.AddDate(0, 0, 14)) {
			t.Errorf("slot date %s outside horizon", s.Date)
		}
	}

	if !slots[0].Date.Equal(from) {
		t.Errorf("first slot = %s, want %s", slots[0].Date, from)
	}
}

func TestExpandIsRestartable(t *testing.T) {
	tpl := Template{ID: uuid.New(), ProviderID: uuid.New(), Weekday: time.Friday, Capacity: 2}
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	seq := Expand([]Template{tpl}, from, 21, time.UTC)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}

	first, second := count(), count()
	if first != 3 || second != 3 {
		t.Fatalf("expected 3 slots on both passes, got %d then %d", first, second)
	}
}

func TestExpandStopsEarly(t *testing.T) {
	tpl := Template{ID: uuid.New(), Weekday: time.Monday}
	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	n := 0
	for range Expand([]Template{tpl}, from, 70, time.UTC) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected early stop after 2 slots, got %d", n)
	}
}

func TestDateOfUsesClinicZone(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	r := NewResolver(nil, loc)

	// 03:30 UTC is still the previous day in New York.
	utcMorning := time.Date(2026, 9, 2, 3, 30, 0, 0, time.UTC)
	date := r.DateOf(utcMorning)

	if date.Day() != 1 || date.Month() != 9 {
		t.Fatalf("expected clinic-local date 2026-09-01, got %s", date)
	}
	if date.Hour() != 0 || date.Minute() != 0 {
		t.Fatalf("expected midnight, got %s", date)
	}
}

func TestExpandAcrossDSTBoundary(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	tpl := Template{ID: uuid.New(), Weekday: time.Sunday}

	// US DST ends 2026-11-01 (a Sunday).
	from := time.Date(2026, 10, 26, 0, 0, 0, 0, loc)

	var dates []time.Time
	for s := range Expand([]Template{tpl}, from, 14, loc) {
		dates = append(dates, s.Date)
	}

	if len(dates) != 2 {
		t.Fatalf("expected 2 Sundays, got %d", len(dates))
	}
	if dates[1].Format("2006-01-02") != "2026-11-08" {
		t.Errorf("second Sunday = %s, want 2026-11-08", dates[1].Format("2006-01-02"))
	}
}
