package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/api/middleware"
	"github.com/clinware/go-sched/internal/domain/appointment"
	"github.com/clinware/go-sched/internal/domain/encounter"
	"github.com/clinware/go-sched/internal/observability/metrics"
)

// EncounterHandler handles the clinical workflow endpoints.
type EncounterHandler struct {
	workflow *encounter.Workflow
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewEncounterHandler(workflow *encounter.Workflow, m *metrics.Metrics, logger *zap.Logger) *EncounterHandler {
	return &EncounterHandler{workflow: workflow, metrics: m, logger: logger}
}

// OrderTestsRequest is the request body for ordering lab tests. The note is
// free text recorded on the encounter when it opens.
type OrderTestsRequest struct {
	Note  string   `json:"note"`
	Tests []string `json:"tests"`
}

// TestOrderResponse is the wire form of a test order.
type TestOrderResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	ResultValue    string     `json:"result_value,omitempty"`
	ResultUnit     string     `json:"result_unit,omitempty"`
	ReferenceRange string     `json:"reference_range,omitempty"`
	ResultNote     string     `json:"result_note,omitempty"`
	ResultedAt     *time.Time `json:"resulted_at,omitempty"`
}

func toTestOrderResponses(orders []encounter.TestOrder) []TestOrderResponse {
	out := make([]TestOrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, TestOrderResponse{
			ID:             o.ID.String(),
			Name:           o.Name,
			Status:         string(o.Status),
			ResultValue:    o.ResultValue,
			ResultUnit:     o.ResultUnit,
			ReferenceRange: o.ReferenceRange,
			ResultNote:     o.ResultNote,
			ResultedAt:     o.ResultedAt,
		})
	}
	return out
}

// OrderTests handles POST /appointments/{id}/tests
func (h *EncounterHandler) OrderTests(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	role := middleware.GetActorRole(r.Context())
	if role != appointment.RoleProvider && role != appointment.RoleStaff {
		writeError(w, http.StatusForbidden, "only the provider or staff may order tests")
		return
	}

	var req OrderTestsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orders, err := h.workflow.OrderTests(r.Context(), id, req.Note, req.Tests)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TestOrdersCreated.Add(float64(len(req.Tests)))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": toTestOrderResponses(orders)})
}

// ListTests handles GET /appointments/{id}/tests
func (h *EncounterHandler) ListTests(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	orders, err := h.workflow.Orders(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": toTestOrderResponses(orders)})
}

// EnterResultsRequest is the request body for recording lab results. Each
// result addresses its order by `order_id` or by test `name`.
type EnterResultsRequest struct {
	Results []struct {
		OrderID        string `json:"order_id"`
		Name           string `json:"name"`
		Value          string `json:"value"`
		Unit           string `json:"unit"`
		ReferenceRange string `json:"reference_range"`
		Note           string `json:"note"`
	} `json:"results"`
}

// EnterResults handles POST /appointments/{id}/results
func (h *EncounterHandler) EnterResults(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	role := middleware.GetActorRole(r.Context())
	if role != appointment.RoleLab && role != appointment.RoleProvider && role != appointment.RoleStaff {
		writeError(w, http.StatusForbidden, "patients may not enter results")
		return
	}

	var req EnterResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results := make([]encounter.TestResult, 0, len(req.Results))
	for _, res := range req.Results {
		tr := encounter.TestResult{
			Name:           res.Name,
			Value:          res.Value,
			Unit:           res.Unit,
			ReferenceRange: res.ReferenceRange,
			Note:           res.Note,
		}
		if res.OrderID != "" {
			orderID, err := uuid.Parse(res.OrderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid order_id")
				return
			}
			tr.OrderID = orderID
		}
		results = append(results, tr)
	}

	orders, err := h.workflow.EnterResults(r.Context(), id, results)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": toTestOrderResponses(orders)})
}

// FinalizeRequest is the request body for finalizing an encounter.
type FinalizeRequest struct {
	Diagnosis     string `json:"diagnosis"`
	Treatment     string `json:"treatment"`
	Prescriptions []struct {
		Medicine string `json:"medicine"`
		Dosage   string `json:"dosage"`
		Duration string `json:"duration"`
	} `json:"prescriptions"`
}

// EncounterResponse is the wire form of a finalized encounter.
type EncounterResponse struct {
	ID            string                 `json:"id"`
	AppointmentID string                 `json:"appointment_id"`
	Diagnosis     string                 `json:"diagnosis,omitempty"`
	Treatment     string                 `json:"treatment,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	FinalizedAt   *time.Time             `json:"finalized_at,omitempty"`
	Prescriptions []PrescriptionResponse `json:"prescriptions,omitempty"`
}

// PrescriptionResponse is one medication line.
type PrescriptionResponse struct {
	Medicine string `json:"medicine"`
	Dosage   string `json:"dosage"`
	Duration string `json:"duration"`
}

// Finalize handles POST /appointments/{id}/finalize
func (h *EncounterHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	role := middleware.GetActorRole(r.Context())
	if role != appointment.RoleProvider {
		writeError(w, http.StatusForbidden, "only the provider may finalize")
		return
	}

	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prescriptions := make([]encounter.PrescriptionInput, 0, len(req.Prescriptions))
	for _, p := range req.Prescriptions {
		prescriptions = append(prescriptions, encounter.PrescriptionInput{
			Medicine: p.Medicine,
			Dosage:   p.Dosage,
			Duration: p.Duration,
		})
	}

	enc, err := h.workflow.Finalize(r.Context(), id, req.Diagnosis, req.Treatment, prescriptions)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.EncountersFinalized.Inc()
	}
	h.logger.Info("encounter finalized",
		zap.String("appointment_id", id.String()),
		zap.String("request_id", middleware.GetRequestID(r.Context())))

	writeJSON(w, http.StatusOK, EncounterResponse{
		ID:            enc.ID.String(),
		AppointmentID: enc.AppointmentID.String(),
		Diagnosis:     enc.Diagnosis,
		Treatment:     enc.Treatment,
		Notes:         enc.Notes,
		FinalizedAt:   enc.FinalizedAt,
	})
}

// GetEncounter handles GET /appointments/{id}/encounter
func (h *EncounterHandler) GetEncounter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	enc, scripts, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := EncounterResponse{
		ID:            enc.ID.String(),
		AppointmentID: enc.AppointmentID.String(),
		Diagnosis:     enc.Diagnosis,
		Treatment:     enc.Treatment,
		Notes:         enc.Notes,
		FinalizedAt:   enc.FinalizedAt,
	}
	for _, p := range scripts {
		resp.Prescriptions = append(resp.Prescriptions, PrescriptionResponse{
			Medicine: p.Medicine,
			Dosage:   p.Dosage,
			Duration: p.Duration,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
