package schedule

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
)

// Slot is one concrete bookable (date, template) pairing.
type Slot struct {
	Date     time.Time // midnight in the clinic time zone
	Template Template
}

// Key identifies a slot for locking and capacity queries.
func (s Slot) Key() string {
	return fmt.Sprintf("%s:%s", s.Template.ID, s.Date.Format("2006-01-02"))
}

// Resolver expands recurring templates into bookable slots over a horizon.
// Templates are re-read on every call so the expansion always reflects the
// latest provider schedules.
type Resolver struct {
	repo Repository
	loc  *time.Location
}

// NewResolver builds a resolver anchored to the clinic time zone. All date
// arithmetic happens in that zone; using server-local time here causes
// off-by-one-day results around midnight.
func NewResolver(repo Repository, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{repo: repo, loc: loc}
}

// Location returns the clinic time zone the resolver is anchored to.
func (r *Resolver) Location() *time.Location { return r.loc }

// DateOf truncates t to midnight in the clinic time zone.
func (r *Resolver) DateOf(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
}

// Resolve fetches the provider's current templates and returns the expansion
// over [from, from+days). The returned sequence is finite and restartable:
// ranging over it again replays the same slots without re-querying.
func (r *Resolver) Resolve(ctx context.Context, providerID uuid.UUID, from time.Time, days int) (iter.Seq[Slot], error) {
	templates, err := r.repo.ListTemplatesByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	return Expand(templates, r.DateOf(from), days, r.loc), nil
}

// Expand is the pure expansion over an already-loaded template set. For each
// date in the horizon, every template whose weekday matches yields one slot.
// Slots come out in (date, template) order.
func Expand(templates []Template, from time.Time, days int, loc *time.Location) iter.Seq[Slot] {
	if loc == nil {
		loc = time.UTC
	}

	byWeekday := make(map[time.Weekday][]Template, len(templates))
	for _, t := range templates {
		byWeekday[t.Weekday] = append(byWeekday[t.Weekday], t)
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	return func(yield func(Slot) bool) {
		for i := 0; i < days; i++ {
			// AddDate over DST boundaries keeps the wall-clock date,
			// unlike adding 24h multiples.
			date := start.AddDate(0, 0, i)
			for _, t := range byWeekday[date.Weekday()] {
				if !yield(Slot{Date: date, Template: t}) {
					return
				}
			}
		}
	}
}
