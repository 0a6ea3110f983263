package appointment

import "errors"

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSlotFull          = errors.New("slot has no remaining capacity")
	ErrDuplicateBooking  = errors.New("booking already exists for this patient and slot")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyFinalized  = errors.New("appointment is already completed")
	ErrAlreadyCancelled  = errors.New("appointment is already cancelled")
	ErrTerminalState     = errors.New("appointment is in a terminal state")
)
