package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinware/go-sched/internal/directory"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/schedule"
	"github.com/clinware/go-sched/internal/infrastructure/redislock"
)

// memApptRepo is an in-memory appointment.Repository whose CreateBooked does
// the same atomic count-and-insert the Postgres repository does.
type memApptRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*appointment.Appointment
}

func newMemApptRepo() *memApptRepo {
	return &memApptRepo{appts: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *memApptRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memApptRepo) countActiveLocked(templateID uuid.UUID, date time.Time) int {
	n := 0
	for _, a := range r.appts {
		if a.TemplateID == templateID && a.VisitDate.Equal(date) && a.Status.CountsAgainstCapacity() {
			n++
		}
	}
	return n
}

func (r *memApptRepo) CountActive(_ context.Context, templateID uuid.UUID, date time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActiveLocked(templateID, date), nil
}

func (r *memApptRepo) CreateBooked(_ context.Context, appt *appointment.Appointment, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appts {
		if a.PatientID == appt.PatientID && a.TemplateID == appt.TemplateID &&
			a.VisitDate.Equal(appt.VisitDate) && a.Status.CountsAgainstCapacity() {
			return appointment.ErrDuplicateBooking
		}
	}

	if r.countActiveLocked(appt.TemplateID, appt.VisitDate) >= capacity {
		return appointment.ErrSlotFull
	}

	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *memApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memApptRepo) Cancel(_ context.Context, id uuid.UUID, from, to appointment.Status, rec appointment.CancellationRecord) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = to
	a.Cancellation = &rec
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memApptRepo) ListForSlot(_ context.Context, templateID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range r.appts {
		if a.TemplateID == templateID && a.VisitDate.Equal(date) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type memTemplateRepo struct {
	templates map[uuid.UUID]schedule.Template
}

func (r *memTemplateRepo) GetTemplateByID(_ context.Context, id uuid.UUID) (*schedule.Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, schedule.ErrTemplateNotFound
	}
	return &t, nil
}

func (r *memTemplateRepo) ListTemplatesByProvider(_ context.Context, providerID uuid.UUID) ([]schedule.Template, error) {
	var out []schedule.Template
	for _, t := range r.templates {
		if t.ProviderID == providerID {
			out = append(out, t)
		}
	}
	return out, nil
}

type stubDirectory struct {
	priceCents int64
}

func (d *stubDirectory) GetProvider(_ context.Context, id uuid.UUID) (*directory.Provider, error) {
	return &directory.Provider{ID: id, Name: "Dr. Adams", Room: "12B", Specialty: "cardiology"}, nil
}

func (d *stubDirectory) GetPatient(_ context.Context, id uuid.UUID) (*directory.PatientProfile, error) {
	return &directory.PatientProfile{ID: id, Name: "Pat Doe", Phone: "+15550100"}, nil
}

func (d *stubDirectory) ResolvePrice(_ context.Context, _ *directory.Provider) int64 {
	return d.priceCents
}

func newTestCoordinator(capacity int) (*Coordinator, *memApptRepo, schedule.Template) {
	providerID := uuid.New()
	visit := futureVisitDate()
	tmpl := schedule.Template{
		ID:         uuid.New(),
		ProviderID: providerID,
		Weekday:    visit.Weekday(),
		StartTime:  "09:00",
		EndTime:    "12:00",
		Capacity:   capacity,
	}

	repo := newMemApptRepo()
	templates := &memTemplateRepo{templates: map[uuid.UUID]schedule.Template{tmpl.ID: tmpl}}
	dir := &stubDirectory{priceCents: 5000}

	c := NewCoordinator(templates, repo, dir, redislock.NewMemoryLocker(), time.UTC, nil)
	return c, repo, tmpl
}

func futureVisitDate() time.Time {
	d := time.Now().UTC().AddDate(0, 0, 14)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func TestBookFreezesSnapshots(t *testing.T) {
	c, _, tmpl := newTestCoordinator(3)

	appt, err := c.Book(context.Background(), Request{
		PatientID:  uuid.New(),
		TemplateID: tmpl.ID,
		VisitDate:  futureVisitDate(),
	})
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	if appt.Status != appointment.StatusPending {
		t.Errorf("status = %q, want %q", appt.Status, appointment.StatusPending)
	}
	if appt.PriceCents != 5000 {
		t.Errorf("price = %d, want 5000", appt.PriceCents)
	}
	if appt.Contact.Name != "Pat Doe" || appt.Contact.Phone != "+15550100" {
		t.Errorf("contact snapshot = %+v", appt.Contact)
	}
	if appt.IdempotencyKey == "" {
		t.Error("idempotency key is empty")
	}
}

func TestBookConcurrentRespectsCapacity(t *testing.T) {
	const capacity = 5
	const attempts = 6

	c, repo, tmpl := newTestCoordinator(capacity)
	visit := futureVisitDate()

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Book(context.Background(), Request{
				PatientID:  uuid.New(),
				TemplateID: tmpl.ID,
				VisitDate:  visit,
			})
		}(i)
	}
	wg.Wait()

	booked, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			booked++
		case errors.Is(err, appointment.ErrSlotFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if booked != capacity {
		t.Errorf("booked = %d, want %d", booked, capacity)
	}
	if full != attempts-capacity {
		t.Errorf("slot-full rejections = %d, want %d", full, attempts-capacity)
	}

	count, err := repo.CountActive(context.Background(), tmpl.ID, visit)
	if err != nil {
		t.Fatal(err)
	}
	if count != capacity {
		t.Errorf("stored active count = %d, want %d", count, capacity)
	}
}

func TestBookDuplicatePatientRejected(t *testing.T) {
	c, _, tmpl := newTestCoordinator(5)
	patientID := uuid.New()
	visit := futureVisitDate()

	if _, err := c.Book(context.Background(), Request{PatientID: patientID, TemplateID: tmpl.ID, VisitDate: visit}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := c.Book(context.Background(), Request{PatientID: patientID, TemplateID: tmpl.ID, VisitDate: visit})
	if !errors.Is(err, appointment.ErrDuplicateBooking) {
		t.Errorf("second booking error = %v, want ErrDuplicateBooking", err)
	}
}

func TestBookRejectsWrongWeekday(t *testing.T) {
	c, _, tmpl := newTestCoordinator(5)

	// A day after the template weekday cannot derive from it.
	wrongDay := futureVisitDate().AddDate(0, 0, 1)
	_, err := c.Book(context.Background(), Request{
		PatientID:  uuid.New(),
		TemplateID: tmpl.ID,
		VisitDate:  wrongDay,
	})
	if !errors.Is(err, ErrSlotMismatch) {
		t.Errorf("error = %v, want ErrSlotMismatch", err)
	}
}

func TestBookRejectsPastDate(t *testing.T) {
	c, _, tmpl := newTestCoordinator(5)

	past := futureVisitDate().AddDate(0, 0, -21)
	_, err := c.Book(context.Background(), Request{
		PatientID:  uuid.New(),
		TemplateID: tmpl.ID,
		VisitDate:  past,
	})
	if !errors.Is(err, ErrPastDate) {
		t.Errorf("error = %v, want ErrPastDate", err)
	}
}

func TestBookUnknownTemplate(t *testing.T) {
	c, _, _ := newTestCoordinator(5)

	_, err := c.Book(context.Background(), Request{
		PatientID:  uuid.New(),
		TemplateID: uuid.New(),
		VisitDate:  futureVisitDate(),
	})
	if !errors.Is(err, schedule.ErrTemplateNotFound) {
		t.Errorf("error = %v, want ErrTemplateNotFound", err)
	}
}

func TestCancellationFreesSeat(t *testing.T) {
	c, repo, tmpl := newTestCoordinator(1)
	visit := futureVisitDate()

	appt, err := c.Book(context.Background(), Request{PatientID: uuid.New(), TemplateID: tmpl.ID, VisitDate: visit})
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	// Slot is full now.
	if _, err := c.Book(context.Background(), Request{PatientID: uuid.New(), TemplateID: tmpl.ID, VisitDate: visit}); !errors.Is(err, appointment.ErrSlotFull) {
		t.Fatalf("error = %v, want ErrSlotFull", err)
	}

	svc := appointment.NewService(repo, nil)
	if _, err := svc.Cancel(context.Background(), appt.ID, appointment.RolePatient, "can't make it"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The freed seat is bookable again.
	if _, err := c.Book(context.Background(), Request{PatientID: uuid.New(), TemplateID: tmpl.ID, VisitDate: visit}); err != nil {
		t.Errorf("rebooking freed seat failed: %v", err)
	}
}

func TestCapacityGuardRemaining(t *testing.T) {
	c, repo, tmpl := newTestCoordinator(3)
	visit := futureVisitDate()

	for i := 0; i < 2; i++ {
		if _, err := c.Book(context.Background(), Request{PatientID: uuid.New(), TemplateID: tmpl.ID, VisitDate: visit}); err != nil {
			t.Fatalf("Book() error = %v", err)
		}
	}

	guard := NewCapacityGuard(repo)
	av, err := guard.Remaining(context.Background(), schedule.Slot{Date: visit, Template: tmpl})
	if err != nil {
		t.Fatal(err)
	}
	if av.Booked != 2 || av.Remaining != 1 {
		t.Errorf("availability = booked %d remaining %d, want 2/1", av.Booked, av.Remaining)
	}
}
