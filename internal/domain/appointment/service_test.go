package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeRepo struct {
	appts map[uuid.UUID]*Appointment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *fakeRepo) add(status Status) *Appointment {
	a := &Appointment{ID: uuid.New(), Status: status}
	r.appts[a.ID] = a
	return a
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) CountActive(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	return 0, nil
}

func (r *fakeRepo) CreateBooked(_ context.Context, appt *Appointment, _ int) error {
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrInvalidTransition
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) Cancel(_ context.Context, id uuid.UUID, from, to Status, rec CancellationRecord) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrInvalidTransition
	}
	a.Status = to
	a.Cancellation = &rec
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListForSlot(_ context.Context, _ uuid.UUID, _ time.Time) ([]Appointment, error) {
	return nil, nil
}

func TestConfirmPending(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	appt := repo.add(StatusPending)

	updated, err := svc.Confirm(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if updated.Status != StatusConfirmed {
		t.Errorf("status = %q, want confirmed", updated.Status)
	}
}

func TestConfirmCompletedFails(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	appt := repo.add(StatusCompleted)

	_, err := svc.Confirm(context.Background(), appt.ID)
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("error = %v, want ErrAlreadyFinalized", err)
	}
}

func TestCancelRecordsInitiatorAndReason(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	appt := repo.add(StatusConfirmed)

	updated, err := svc.Cancel(context.Background(), appt.ID, RolePatient, "  feeling better  ")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if updated.Status != StatusPatientCancelled {
		t.Errorf("status = %q, want patient_cancelled", updated.Status)
	}
	if updated.Cancellation == nil {
		t.Fatal("cancellation record missing")
	}
	if updated.Cancellation.Initiator != RolePatient {
		t.Errorf("initiator = %q", updated.Cancellation.Initiator)
	}
	if updated.Cancellation.Reason != "feeling better" {
		t.Errorf("reason = %q, want trimmed", updated.Cancellation.Reason)
	}
	if updated.Cancellation.CancelledAt.IsZero() {
		t.Error("cancelled_at not set")
	}
}

func TestCancelByProvider(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	appt := repo.add(StatusPending)

	updated, err := svc.Cancel(context.Background(), appt.ID, RoleProvider, "emergency")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if updated.Status != StatusDoctorCancelled {
		t.Errorf("status = %q, want doctor_cancelled", updated.Status)
	}
}

func TestCancelWaitingResultsRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	appt := repo.add(StatusWaitingResults)

	_, err := svc.Cancel(context.Background(), appt.ID, RolePatient, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelTwice(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	appt := repo.add(StatusPending)

	if _, err := svc.Cancel(context.Background(), appt.ID, RolePatient, ""); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Cancel(context.Background(), appt.ID, RolePatient, "")
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("error = %v, want ErrAlreadyCancelled", err)
	}
}

func TestCancelUnknownAppointment(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	_, err := svc.Cancel(context.Background(), uuid.New(), RolePatient, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
