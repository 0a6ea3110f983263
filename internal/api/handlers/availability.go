package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinware/go-sched/internal/domain/booking"
	"github.com/clinware/go-sched/internal/domain/schedule"
)

const (
	defaultHorizonDays = 14
	maxHorizonDays     = 90
)

// AvailabilityHandler serves bookable slot listings.
type AvailabilityHandler struct {
	resolver *schedule.Resolver
	guard    *booking.CapacityGuard
	logger   *zap.Logger
}

func NewAvailabilityHandler(resolver *schedule.Resolver, guard *booking.CapacityGuard, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{resolver: resolver, guard: guard, logger: logger}
}

// Routes returns the handler routes
func (h *AvailabilityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{providerID}/slots", h.ListSlots)
	return r
}

// SlotResponse is one bookable slot with its live occupancy.
type SlotResponse struct {
	TemplateID string `json:"template_id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Capacity   int    `json:"capacity"`
	Booked     int    `json:"booked"`
	Remaining  int    `json:"remaining"`
}

// ListSlots handles GET /providers/{providerID}/slots?from=YYYY-MM-DD&days=N
func (h *AvailabilityHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}

	from := time.Now()
	if s := r.URL.Query().Get("from"); s != "" {
		from, err = time.ParseInLocation("2006-01-02", s, h.resolver.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
			return
		}
	}

	days := defaultHorizonDays
	if s := r.URL.Query().Get("days"); s != "" {
		days, err = strconv.Atoi(s)
		if err != nil || days <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		if days > maxHorizonDays {
			days = maxHorizonDays
		}
	}

	slots, err := h.resolver.Resolve(ctx, providerID, from, days)
	if err != nil {
		h.logger.Error("resolve availability failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	annotated, err := h.guard.Annotate(ctx, slots)
	if err != nil {
		h.logger.Error("annotate availability failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	resp := make([]SlotResponse, 0, len(annotated))
	for _, av := range annotated {
		resp = append(resp, SlotResponse{
			TemplateID: av.Slot.Template.ID.String(),
			ProviderID: av.Slot.Template.ProviderID.String(),
			Date:       av.Slot.Date.Format("2006-01-02"),
			Weekday:    av.Slot.Date.Weekday().String(),
			StartTime:  av.Slot.Template.StartTime,
			EndTime:    av.Slot.Template.EndTime,
			Capacity:   av.Slot.Template.Capacity,
			Booked:     av.Booked,
			Remaining:  av.Remaining,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"slots": resp})
}
