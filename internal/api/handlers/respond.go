// Package handlers provides HTTP handlers for the booking API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinware/go-sched/internal/directory"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/booking"
	"github.com/clinware/go-sched/internal/domain/encounter"
	"github.com/clinware/go-sched/internal/domain/schedule"
	"github.com/clinware/go-sched/pkg/idempotency"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeDomainError maps the typed error taxonomy onto HTTP statuses in one
// place so every handler reports conflicts and absences the same way.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotFound),
		errors.Is(err, schedule.ErrTemplateNotFound),
		errors.Is(err, encounter.ErrEncounterNotFound),
		errors.Is(err, encounter.ErrUnknownTestOrder),
		errors.Is(err, directory.ErrProviderNotFound),
		errors.Is(err, directory.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, appointment.ErrSlotFull),
		errors.Is(err, appointment.ErrDuplicateBooking),
		errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, appointment.ErrAlreadyFinalized),
		errors.Is(err, appointment.ErrAlreadyCancelled),
		errors.Is(err, appointment.ErrTerminalState),
		errors.Is(err, encounter.ErrResultsPending),
		errors.Is(err, idempotency.ErrRequestInProgress):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, booking.ErrSlotBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, booking.ErrSlotMismatch),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, encounter.ErrMissingDiagnosis),
		errors.Is(err, encounter.ErrNoTestsGiven):
		writeError(w, http.StatusBadRequest, err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
