package appointment

// transitions is the single source of truth for status legality. Terminal
// states have no outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed:        true,
		StatusWaitingResults:   true,
		StatusCancelled:        true,
		StatusPatientCancelled: true,
		StatusDoctorCancelled:  true,
	},
	StatusConfirmed: {
		StatusWaitingResults:   true,
		StatusCompleted:        true, // direct completion when no tests were ordered
		StatusCancelled:        true,
		StatusPatientCancelled: true,
		StatusDoctorCancelled:  true,
	},
	StatusWaitingResults: {
		StatusCompleted: true,
	},
}

// cancelledStatuses are the terminal cancelled variants. Appointments in one
// of these no longer count against slot capacity.
var cancelledStatuses = map[Status]bool{
	StatusCancelled:        true,
	StatusPatientCancelled: true,
	StatusDoctorCancelled:  true,
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || cancelledStatuses[s]
}

// IsCancelled reports whether s is one of the cancelled variants.
func (s Status) IsCancelled() bool {
	return cancelledStatuses[s]
}

// CountsAgainstCapacity reports whether an appointment in status s occupies
// a seat in its slot.
func (s Status) CountsAgainstCapacity() bool {
	return !cancelledStatuses[s]
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// ValidateTransition returns a typed error for an illegal from -> to edge,
// distinguishing "already done" conditions from plain illegal moves so that
// callers can surface the right remedy.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	switch {
	case from == StatusCompleted:
		return ErrAlreadyFinalized
	case from.IsCancelled():
		return ErrAlreadyCancelled
	default:
		return ErrInvalidTransition
	}
}

// CancelTarget maps the cancelling party to the terminal status recorded on
// the appointment.
func CancelTarget(initiator Role) Status {
	switch initiator {
	case RoleProvider:
		return StatusDoctorCancelled
	case RolePatient:
		return StatusPatientCancelled
	default:
		return StatusCancelled
	}
}
