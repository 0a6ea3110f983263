// Package integration exercises the full visit lifecycle across the booking,
// appointment and encounter services with in-memory stores.
package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinware/go-sched/internal/directory"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/booking"
	"github.com/clinware/go-sched/internal/domain/encounter"
	"github.com/clinware/go-sched/internal/domain/schedule"
	"github.com/clinware/go-sched/internal/infrastructure/redislock"
)

// engine bundles the real services over in-memory stores.
type engine struct {
	coordinator *booking.Coordinator
	appts       *appointment.Service
	workflow    *encounter.Workflow
	template    schedule.Template
	visit       time.Time
}

func newEngine(t *testing.T, capacity int) *engine {
	t.Helper()

	visit := time.Now().UTC().AddDate(0, 0, 7)
	visit = time.Date(visit.Year(), visit.Month(), visit.Day(), 0, 0, 0, 0, time.UTC)

	tmpl := schedule.Template{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Weekday:    visit.Weekday(),
		StartTime:  "09:00",
		EndTime:    "12:00",
		Capacity:   capacity,
	}

	apptRepo := newApptStore()
	encRepo := newEncStore()
	templates := &templateStore{templates: map[uuid.UUID]schedule.Template{tmpl.ID: tmpl}}
	dir := &dirStub{priceCents: 12000}

	return &engine{
		coordinator: booking.NewCoordinator(templates, apptRepo, dir, redislock.NewMemoryLocker(), time.UTC, nil),
		appts:       appointment.NewService(apptRepo, nil),
		workflow:    encounter.NewWorkflow(apptRepo, encRepo, true, nil),
		template:    tmpl,
		visit:       visit,
	}
}

func (e *engine) book(t *testing.T, patientID uuid.UUID) *appointment.Appointment {
	t.Helper()
	appt, err := e.coordinator.Book(context.Background(), booking.Request{
		PatientID:  patientID,
		TemplateID: e.template.ID,
		VisitDate:  e.visit,
	})
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	return appt
}

func TestVisitLifecycle(t *testing.T) {
	e := newEngine(t, 3)
	ctx := context.Background()
	appt := e.book(t, uuid.New())

	if appt.Status != appointment.StatusPending {
		t.Fatalf("booked status = %q, want pending", appt.Status)
	}
	if appt.PriceCents != 12000 {
		t.Errorf("frozen price = %d, want 12000", appt.PriceCents)
	}

	if _, err := e.appts.Confirm(ctx, appt.ID); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	orders, err := e.workflow.OrderTests(ctx, appt.ID, "", []string{"CBC", "TSH"})
	if err != nil {
		t.Fatalf("OrderTests() error = %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}

	got, err := e.appts.Get(ctx, appt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != appointment.StatusWaitingResults {
		t.Fatalf("status after ordering = %q, want waiting_results", got.Status)
	}

	// Finalizing before results are in is blocked.
	if _, err := e.workflow.Finalize(ctx, appt.ID, "anemia", "", nil); !errors.Is(err, encounter.ErrResultsPending) {
		t.Fatalf("early finalize error = %v, want ErrResultsPending", err)
	}

	if _, err := e.workflow.EnterResults(ctx, appt.ID, []encounter.TestResult{
		{Name: "CBC", Value: "13.1", Unit: "g/dL", ReferenceRange: "12-16"},
		{Name: "TSH", Value: "1.9", Unit: "mIU/L", ReferenceRange: "0.4-4.0"},
	}); err != nil {
		t.Fatalf("EnterResults() error = %v", err)
	}

	enc, err := e.workflow.Finalize(ctx, appt.ID, "mild anemia", "", []encounter.PrescriptionInput{
		{Medicine: "Ferrous sulfate", Dosage: "325mg", Duration: "90 days"},
	})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !enc.Finalized() {
		t.Error("encounter not sealed")
	}

	got, err = e.appts.Get(ctx, appt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != appointment.StatusCompleted {
		t.Errorf("final status = %q, want completed", got.Status)
	}

	// Completed visits keep their seat; the slot does not reopen.
	if _, err := e.appts.Cancel(ctx, appt.ID, appointment.RolePatient, "changed my mind"); !errors.Is(err, appointment.ErrAlreadyFinalized) {
		t.Errorf("cancel after completion error = %v, want ErrAlreadyFinalized", err)
	}
}

func TestDirectCompletionWithoutTests(t *testing.T) {
	e := newEngine(t, 1)
	ctx := context.Background()
	appt := e.book(t, uuid.New())

	if _, err := e.appts.Confirm(ctx, appt.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.workflow.OrderTests(ctx, appt.ID, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.workflow.Finalize(ctx, appt.ID, "routine checkup", "", nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	got, _ := e.appts.Get(ctx, appt.ID)
	if got.Status != appointment.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestCancelledSeatIsRebookable(t *testing.T) {
	e := newEngine(t, 1)
	ctx := context.Background()
	appt := e.book(t, uuid.New())

	if _, err := e.coordinator.Book(ctx, booking.Request{
		PatientID:  uuid.New(),
		TemplateID: e.template.ID,
		VisitDate:  e.visit,
	}); !errors.Is(err, appointment.ErrSlotFull) {
		t.Fatalf("overbooking error = %v, want ErrSlotFull", err)
	}

	cancelled, err := e.appts.Cancel(ctx, appt.ID, appointment.RoleProvider, "provider unavailable")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != appointment.StatusDoctorCancelled {
		t.Errorf("status = %q, want doctor_cancelled", cancelled.Status)
	}

	e.book(t, uuid.New())
}

func TestCancelledAppointmentRejectsEncounterSteps(t *testing.T) {
	e := newEngine(t, 1)
	ctx := context.Background()
	appt := e.book(t, uuid.New())

	if _, err := e.appts.Cancel(ctx, appt.ID, appointment.RoleStaff, "no-show"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.workflow.OrderTests(ctx, appt.ID, "", []string{"CBC"}); !errors.Is(err, appointment.ErrTerminalState) {
		t.Errorf("OrderTests error = %v, want ErrTerminalState", err)
	}
	if _, err := e.workflow.Finalize(ctx, appt.ID, "checkup", "", nil); !errors.Is(err, appointment.ErrAlreadyCancelled) {
		t.Errorf("Finalize error = %v, want ErrAlreadyCancelled", err)
	}
}

// apptStore mirrors the Postgres repository's atomic count-and-insert.
type apptStore struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*appointment.Appointment
}

func newApptStore() *apptStore {
	return &apptStore{appts: make(map[uuid.UUID]*appointment.Appointment)}
}

func (s *apptStore) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *apptStore) CountActive(_ context.Context, templateID uuid.UUID, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appts {
		if a.TemplateID == templateID && a.VisitDate.Equal(date) && a.Status.CountsAgainstCapacity() {
			n++
		}
	}
	return n, nil
}

func (s *apptStore) CreateBooked(ctx context.Context, appt *appointment.Appointment, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, a := range s.appts {
		if a.TemplateID != appt.TemplateID || !a.VisitDate.Equal(appt.VisitDate) || !a.Status.CountsAgainstCapacity() {
			continue
		}
		if a.PatientID == appt.PatientID {
			return appointment.ErrDuplicateBooking
		}
		active++
	}
	if active >= capacity {
		return appointment.ErrSlotFull
	}

	cp := *appt
	s.appts[appt.ID] = &cp
	return nil
}

func (s *apptStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (s *apptStore) Cancel(_ context.Context, id uuid.UUID, from, to appointment.Status, rec appointment.CancellationRecord) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrInvalidTransition
	}
	a.Status = to
	a.Cancellation = &rec
	cp := *a
	return &cp, nil
}

func (s *apptStore) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *apptStore) ListForSlot(_ context.Context, templateID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.TemplateID == templateID && a.VisitDate.Equal(date) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type templateStore struct {
	templates map[uuid.UUID]schedule.Template
}

func (s *templateStore) GetTemplateByID(_ context.Context, id uuid.UUID) (*schedule.Template, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, schedule.ErrTemplateNotFound
	}
	return &t, nil
}

func (s *templateStore) ListTemplatesByProvider(_ context.Context, providerID uuid.UUID) ([]schedule.Template, error) {
	var out []schedule.Template
	for _, t := range s.templates {
		if t.ProviderID == providerID {
			out = append(out, t)
		}
	}
	return out, nil
}

type dirStub struct {
	priceCents int64
}

func (d *dirStub) GetProvider(_ context.Context, id uuid.UUID) (*directory.Provider, error) {
	return &directory.Provider{ID: id, Name: "Dr. Osei", Room: "4C", Specialty: "general_practice"}, nil
}

func (d *dirStub) GetPatient(_ context.Context, id uuid.UUID) (*directory.PatientProfile, error) {
	return &directory.PatientProfile{ID: id, Name: "Sam Rivera", Phone: "+15550123"}, nil
}

func (d *dirStub) ResolvePrice(_ context.Context, _ *directory.Provider) int64 {
	return d.priceCents
}

// encStore is an in-memory encounter.Repository.
type encStore struct {
	mu            sync.Mutex
	encounters    map[uuid.UUID]*encounter.Encounter
	orders        map[uuid.UUID][]*encounter.TestOrder
	prescriptions map[uuid.UUID][]encounter.Prescription
}

func newEncStore() *encStore {
	return &encStore{
		encounters:    make(map[uuid.UUID]*encounter.Encounter),
		orders:        make(map[uuid.UUID][]*encounter.TestOrder),
		prescriptions: make(map[uuid.UUID][]encounter.Prescription),
	}
}

func (s *encStore) EnsureEncounter(_ context.Context, appointmentID uuid.UUID, note string) (*encounter.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.encounters[appointmentID]; ok {
		if e.Notes == "" {
			e.Notes = note
		}
		cp := *e
		return &cp, nil
	}
	e := &encounter.Encounter{ID: uuid.New(), AppointmentID: appointmentID, Notes: note, CreatedAt: time.Now()}
	s.encounters[appointmentID] = e
	cp := *e
	return &cp, nil
}

func (s *encStore) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*encounter.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.encounters[appointmentID]
	if !ok {
		return nil, encounter.ErrEncounterNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *encStore) CreateTestOrders(ctx context.Context, appointmentID uuid.UUID, names []string) ([]encounter.TestOrder, error) {
	s.mu.Lock()
	existing := make(map[string]bool)
	for _, o := range s.orders[appointmentID] {
		existing[o.Name] = true
	}
	for _, name := range names {
		if existing[name] {
			continue
		}
		s.orders[appointmentID] = append(s.orders[appointmentID], &encounter.TestOrder{
			ID:            uuid.New(),
			AppointmentID: appointmentID,
			Name:          name,
			Status:        encounter.OrderPending,
			CreatedAt:     time.Now(),
		})
	}
	s.mu.Unlock()
	return s.ListTestOrders(ctx, appointmentID)
}

func (s *encStore) ListTestOrders(_ context.Context, appointmentID uuid.UUID) ([]encounter.TestOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []encounter.TestOrder
	for _, o := range s.orders[appointmentID] {
		out = append(out, *o)
	}
	return out, nil
}

func (s *encStore) CountOpenOrders(_ context.Context, appointmentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countOpenLocked(appointmentID), nil
}

func (s *encStore) countOpenLocked(appointmentID uuid.UUID) int {
	n := 0
	for _, o := range s.orders[appointmentID] {
		if o.Open() {
			n++
		}
	}
	return n
}

func (s *encStore) RecordResult(_ context.Context, appointmentID uuid.UUID, result encounter.TestResult) (*encounter.TestOrder, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *encounter.TestOrder
	for _, o := range s.orders[appointmentID] {
		if o.Name == result.Name {
			target = o
			break
		}
	}
	if target == nil {
		return nil, 0, encounter.ErrUnknownTestOrder
	}

	now := time.Now()
	target.Status = encounter.OrderCompleted
	target.ResultValue = result.Value
	target.ResultUnit = result.Unit
	target.ReferenceRange = result.ReferenceRange
	target.ResultNote = result.Note
	target.ResultedAt = &now

	cp := *target
	return &cp, s.countOpenLocked(appointmentID), nil
}

func (s *encStore) Finalize(_ context.Context, encounterID uuid.UUID, diagnosis, treatment string, prescriptions []encounter.PrescriptionInput) (*encounter.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.encounters {
		if e.ID != encounterID {
			continue
		}
		e.Diagnosis = diagnosis
		e.Treatment = treatment
		if e.FinalizedAt == nil {
			now := time.Now()
			e.FinalizedAt = &now
		}
		for _, p := range prescriptions {
			s.prescriptions[encounterID] = append(s.prescriptions[encounterID], encounter.Prescription{
				ID:          uuid.New(),
				EncounterID: encounterID,
				Medicine:    p.Medicine,
				Dosage:      p.Dosage,
				Duration:    p.Duration,
				CreatedAt:   time.Now(),
			})
		}
		cp := *e
		return &cp, nil
	}
	return nil, encounter.ErrEncounterNotFound
}

func (s *encStore) ListPrescriptions(_ context.Context, encounterID uuid.UUID) ([]encounter.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prescriptions[encounterID], nil
}
