package encounter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/domain/appointment"
)

// Workflow drives the three encounter steps against a live appointment. It
// owns no transition rules itself; appointment legality is always checked
// through the lifecycle table.
type Workflow struct {
	appts appointment.Repository
	repo  Repository

	// requireResults blocks finalization while test orders are still open.
	// Clinics that let providers close a visit before late lab results turn
	// this off.
	requireResults bool

	logger *zap.Logger
}

func NewWorkflow(appts appointment.Repository, repo Repository, requireResults bool, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		appts:          appts,
		repo:           repo,
		requireResults: requireResults,
		logger:         logger,
	}
}

// OrderTests opens the encounter, records the visit note and files one
// pending order per test name. With at least one order the appointment moves
// to waiting_results; an empty list still opens the encounter so the visit
// can be finalized directly. Re-sending the same names is a no-op, so a
// retried request is safe.
func (w *Workflow) OrderTests(ctx context.Context, appointmentID uuid.UUID, note string, names []string) ([]TestOrder, error) {
	appt, err := w.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status.IsTerminal() {
		return nil, appointment.ErrTerminalState
	}

	cleaned := dedupeNames(names)

	if _, err := w.repo.EnsureEncounter(ctx, appointmentID, strings.TrimSpace(note)); err != nil {
		return nil, fmt.Errorf("open encounter: %w", err)
	}

	if len(cleaned) == 0 {
		return w.repo.ListTestOrders(ctx, appointmentID)
	}

	orders, err := w.repo.CreateTestOrders(ctx, appointmentID, cleaned)
	if err != nil {
		return nil, fmt.Errorf("create test orders: %w", err)
	}

	if appt.Status != appointment.StatusWaitingResults {
		if err := appointment.ValidateTransition(appt.Status, appointment.StatusWaitingResults); err != nil {
			return nil, err
		}
		if _, err := w.appts.UpdateStatus(ctx, appointmentID, appt.Status, appointment.StatusWaitingResults); err != nil {
			return nil, err
		}
	}

	w.logger.Info("tests ordered",
		zap.String("appointment_id", appointmentID.String()),
		zap.Int("orders", len(cleaned)))

	return orders, nil
}

// EnterResults records lab answers against their orders, addressed by order
// ID or by test name. The appointment stays in waiting_results; the store
// announces results-ready once the last open order completes. Unknown orders
// fail the whole batch up front so a partial write never needs unwinding.
func (w *Workflow) EnterResults(ctx context.Context, appointmentID uuid.UUID, results []TestResult) ([]TestOrder, error) {
	if len(results) == 0 {
		return nil, ErrNoTestsGiven
	}

	appt, err := w.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status.IsTerminal() {
		return nil, appointment.ErrTerminalState
	}

	existing, err := w.repo.ListTestOrders(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]bool, len(existing))
	byID := make(map[uuid.UUID]string, len(existing))
	for _, o := range existing {
		byName[o.Name] = true
		byID[o.ID] = o.Name
	}
	for idx, res := range results {
		if res.OrderID != uuid.Nil {
			name, ok := byID[res.OrderID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTestOrder, res.OrderID)
			}
			results[idx].Name = name
			continue
		}
		if !byName[strings.TrimSpace(res.Name)] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTestOrder, res.Name)
		}
	}

	var updated []TestOrder
	for _, res := range results {
		res.Name = strings.TrimSpace(res.Name)
		order, remaining, err := w.repo.RecordResult(ctx, appointmentID, res)
		if err != nil {
			return nil, fmt.Errorf("record result for %s: %w", res.Name, err)
		}
		updated = append(updated, *order)

		if remaining == 0 {
			w.logger.Info("all results in",
				zap.String("appointment_id", appointmentID.String()))
		}
	}

	return updated, nil
}

// Finalize seals the visit: records the diagnosis, the optional treatment
// text and the prescriptions, and completes the appointment. Allowed from
// waiting_results, or straight from confirmed when no tests were ordered. A
// repeat call on a completed appointment gets ErrAlreadyFinalized.
func (w *Workflow) Finalize(ctx context.Context, appointmentID uuid.UUID, diagnosis, treatment string, prescriptions []PrescriptionInput) (*Encounter, error) {
	diagnosis = strings.TrimSpace(diagnosis)
	if diagnosis == "" {
		return nil, ErrMissingDiagnosis
	}
	treatment = strings.TrimSpace(treatment)

	appt, err := w.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := appointment.ValidateTransition(appt.Status, appointment.StatusCompleted); err != nil {
		return nil, err
	}

	enc, err := w.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if w.requireResults {
		open, err := w.repo.CountOpenOrders(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		if open > 0 {
			return nil, fmt.Errorf("%w: %d", ErrResultsPending, open)
		}
	}

	enc, err = w.repo.Finalize(ctx, enc.ID, diagnosis, treatment, cleanPrescriptions(prescriptions))
	if err != nil {
		return nil, fmt.Errorf("finalize encounter: %w", err)
	}

	if _, err := w.appts.UpdateStatus(ctx, appointmentID, appt.Status, appointment.StatusCompleted); err != nil {
		return nil, err
	}

	w.logger.Info("encounter finalized",
		zap.String("appointment_id", appointmentID.String()),
		zap.String("encounter_id", enc.ID.String()),
		zap.Int("prescriptions", len(prescriptions)))

	return enc, nil
}

// Orders returns the appointment's test orders.
func (w *Workflow) Orders(ctx context.Context, appointmentID uuid.UUID) ([]TestOrder, error) {
	return w.repo.ListTestOrders(ctx, appointmentID)
}

// Get returns the encounter with its prescriptions.
func (w *Workflow) Get(ctx context.Context, appointmentID uuid.UUID) (*Encounter, []Prescription, error) {
	enc, err := w.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	scripts, err := w.repo.ListPrescriptions(ctx, enc.ID)
	if err != nil {
		return nil, nil, err
	}
	return enc, scripts, nil
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func cleanPrescriptions(in []PrescriptionInput) []PrescriptionInput {
	seen := make(map[string]bool, len(in))
	var out []PrescriptionInput
	for _, p := range in {
		p.Medicine = strings.TrimSpace(p.Medicine)
		if p.Medicine == "" || seen[p.Medicine] {
			continue
		}
		seen[p.Medicine] = true
		out = append(out, p)
	}
	return out
}
