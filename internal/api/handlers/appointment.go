package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/api/middleware"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/booking"
	"github.com/clinware/go-sched/internal/observability/metrics"
	"github.com/clinware/go-sched/pkg/idempotency"
)

// BookingInbox is the idempotent-processing surface the booking endpoint
// uses. *idempotency.Inbox implements it.
type BookingInbox interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
	Invalidate(ctx context.Context, key string) error
}

// AppointmentHandler handles booking and lifecycle endpoints.
type AppointmentHandler struct {
	coordinator *booking.Coordinator
	svc         *appointment.Service
	inbox       BookingInbox
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewAppointmentHandler creates a new handler. The inbox is optional; without
// it, retried booking requests rely on the duplicate-booking constraint alone.
func NewAppointmentHandler(coordinator *booking.Coordinator, svc *appointment.Service, inbox BookingInbox, m *metrics.Metrics, logger *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		coordinator: coordinator,
		svc:         svc,
		inbox:       inbox,
		metrics:     m,
		logger:      logger,
	}
}

// BookRequest is the request body for booking an appointment.
type BookRequest struct {
	PatientID  string `json:"patient_id"`
	TemplateID string `json:"template_id"`
	VisitDate  string `json:"visit_date"` // YYYY-MM-DD
}

// AppointmentResponse is the wire form of an appointment.
type AppointmentResponse struct {
	ID           string     `json:"id"`
	PatientID    string     `json:"patient_id"`
	ProviderID   string     `json:"provider_id"`
	TemplateID   string     `json:"template_id"`
	VisitDate    string     `json:"visit_date"`
	Status       string     `json:"status"`
	PriceCents   int64      `json:"price_cents"`
	ContactName  string     `json:"contact_name"`
	ContactPhone string     `json:"contact_phone"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:           a.ID.String(),
		PatientID:    a.PatientID.String(),
		ProviderID:   a.ProviderID.String(),
		TemplateID:   a.TemplateID.String(),
		VisitDate:    a.VisitDate.Format("2006-01-02"),
		Status:       string(a.Status),
		PriceCents:   a.PriceCents,
		ContactName:  a.Contact.Name,
		ContactPhone: a.Contact.Phone,
		CreatedAt:    a.CreatedAt,
	}
	if a.Cancellation != nil {
		resp.CancelledBy = string(a.Cancellation.Initiator)
		resp.CancelReason = a.Cancellation.Reason
		cancelledAt := a.Cancellation.CancelledAt
		resp.CancelledAt = &cancelledAt
	}
	return resp
}

// Book handles POST /appointments. Retried requests replay the original
// outcome through the idempotency inbox instead of double-booking.
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient_id")
		return
	}
	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template_id")
		return
	}
	// Dates must resolve in the clinic zone the coordinator truncates in; a
	// UTC parse shifts the requested day for clinics west of UTC.
	visitDate, err := time.ParseInLocation("2006-01-02", req.VisitDate, h.coordinator.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit_date, want YYYY-MM-DD")
		return
	}

	bookReq := booking.Request{PatientID: patientID, TemplateID: templateID, VisitDate: visitDate}

	book := func(ctx context.Context) (json.RawMessage, error) {
		appt, err := h.coordinator.Book(ctx, bookReq)
		if err != nil {
			return nil, err
		}
		return json.Marshal(toAppointmentResponse(appt))
	}

	var body json.RawMessage
	var replayed bool
	if h.inbox != nil {
		key := idempotency.BookingKey(patientID.String(), templateID.String(), visitDate)
		payload, _ := json.Marshal(req)
		res, err := h.inbox.Process(ctx, key, "book-appointment", payload,
			func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
				return book(ctx)
			})
		if err != nil {
			h.recordBookingFailure(err)
			writeDomainError(w, err)
			return
		}
		body = res.Result
		replayed = !res.IsNew && !res.WasRecovered
	} else {
		body, err = book(ctx)
		if err != nil {
			h.recordBookingFailure(err)
			writeDomainError(w, err)
			return
		}
	}

	if h.metrics != nil {
		h.metrics.BookingDuration.Observe(time.Since(start).Seconds())
		if !replayed {
			h.metrics.AppointmentsBooked.Inc()
		}
	}

	h.logger.Info("booking handled",
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.Bool("replayed", replayed))

	code := http.StatusCreated
	if replayed {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (h *AppointmentHandler) recordBookingFailure(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case err == appointment.ErrSlotFull:
		h.metrics.SlotFullRejections.Inc()
	case err == appointment.ErrDuplicateBooking:
		h.metrics.DuplicateRejections.Inc()
	}
}

// Get handles GET /appointments/{id}
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Confirm handles POST /appointments/{id}/confirm
func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	role := middleware.GetActorRole(r.Context())
	if role != appointment.RoleStaff && role != appointment.RoleProvider {
		writeError(w, http.StatusForbidden, "only staff or the provider may confirm")
		return
	}

	appt, err := h.svc.Confirm(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// CancelRequest is the request body for cancelling an appointment.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /appointments/{id}/cancel. The caller's role decides
// the terminal status recorded on the appointment.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req CancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	role := middleware.GetActorRole(r.Context())
	appt, err := h.svc.Cancel(r.Context(), id, role, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The stored booking outcome is void now; dropping the inbox entry lets
	// the patient legitimately re-book the freed seat instead of getting the
	// cancelled appointment replayed.
	if h.inbox != nil && appt.IdempotencyKey != "" {
		if err := h.inbox.Invalidate(r.Context(), appt.IdempotencyKey); err != nil {
			h.logger.Warn("inbox invalidation failed",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err))
		}
	}

	if h.metrics != nil {
		h.metrics.AppointmentsCancelled.WithLabelValues(string(role)).Inc()
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// PatientHandler serves per-patient appointment listings.
type PatientHandler struct {
	svc    *appointment.Service
	logger *zap.Logger
}

func NewPatientHandler(svc *appointment.Service, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{patientID}/appointments", h.ListAppointments)
	return r
}

// ListAppointments handles GET /patients/{patientID}/appointments
func (h *PatientHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	appts, err := h.svc.ListByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"appointments": resp})
}
