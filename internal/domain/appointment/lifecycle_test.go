package appointment

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusWaitingResults, true},
		{StatusPending, StatusPatientCancelled, true},
		{StatusPending, StatusDoctorCancelled, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},

		{StatusConfirmed, StatusWaitingResults, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPatientCancelled, true},
		{StatusConfirmed, StatusPending, false},

		{StatusWaitingResults, StatusCompleted, true},
		{StatusWaitingResults, StatusCancelled, false},
		{StatusWaitingResults, StatusConfirmed, false},

		{StatusCompleted, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusPatientCancelled, StatusPending, false},
		{StatusDoctorCancelled, StatusCompleted, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidateTransitionErrors(t *testing.T) {
	tests := []struct {
		name     string
		from, to Status
		wantErr  error
	}{
		{"legal edge", StatusPending, StatusConfirmed, nil},
		{"from completed", StatusCompleted, StatusCancelled, ErrAlreadyFinalized},
		{"from cancelled", StatusCancelled, StatusConfirmed, ErrAlreadyCancelled},
		{"from patient cancelled", StatusPatientCancelled, StatusConfirmed, ErrAlreadyCancelled},
		{"illegal edge", StatusWaitingResults, StatusConfirmed, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTransition(%s, %s) = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestTerminalAndCapacity(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusPatientCancelled, StatusDoctorCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	open := []Status{StatusPending, StatusConfirmed, StatusWaitingResults}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.CountsAgainstCapacity() {
			t.Errorf("%s should count against capacity", s)
		}
	}

	// Completed still occupies its seat; only cancellations free it.
	if !StatusCompleted.CountsAgainstCapacity() {
		t.Error("completed should count against capacity")
	}
	for _, s := range []Status{StatusCancelled, StatusPatientCancelled, StatusDoctorCancelled} {
		if s.CountsAgainstCapacity() {
			t.Errorf("%s should not count against capacity", s)
		}
	}
}

func TestCancelTarget(t *testing.T) {
	tests := []struct {
		initiator Role
		want      Status
	}{
		{RolePatient, StatusPatientCancelled},
		{RoleProvider, StatusDoctorCancelled},
		{RoleStaff, StatusCancelled},
		{RoleLab, StatusCancelled},
	}
	for _, tt := range tests {
		if got := CancelTarget(tt.initiator); got != tt.want {
			t.Errorf("CancelTarget(%s) = %s, want %s", tt.initiator, got, tt.want)
		}
	}
}
