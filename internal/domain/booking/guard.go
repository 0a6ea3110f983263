package booking

import (
	"context"
	"iter"

	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/schedule"
)

// SlotAvailability is a slot instance annotated with its live occupancy.
type SlotAvailability struct {
	Slot      schedule.Slot
	Booked    int
	Remaining int
}

// CapacityGuard answers how many seats a slot instance still has. Counts are
// advisory for listings; the insert path re-checks atomically.
type CapacityGuard struct {
	appts appointment.Repository
}

func NewCapacityGuard(appts appointment.Repository) *CapacityGuard {
	return &CapacityGuard{appts: appts}
}

// Remaining returns the free seat count for one slot, never below zero.
func (g *CapacityGuard) Remaining(ctx context.Context, slot schedule.Slot) (SlotAvailability, error) {
	booked, err := g.appts.CountActive(ctx, slot.Template.ID, slot.Date)
	if err != nil {
		return SlotAvailability{}, err
	}

	remaining := slot.Template.Capacity - booked
	if remaining < 0 {
		remaining = 0
	}

	return SlotAvailability{Slot: slot, Booked: booked, Remaining: remaining}, nil
}

// Annotate walks the slot expansion and attaches occupancy to each slot. It
// stops at the first store error.
func (g *CapacityGuard) Annotate(ctx context.Context, slots iter.Seq[schedule.Slot]) ([]SlotAvailability, error) {
	var out []SlotAvailability
	for slot := range slots {
		av, err := g.Remaining(ctx, slot)
		if err != nil {
			return nil, err
		}
		out = append(out, av)
	}
	return out, nil
}
