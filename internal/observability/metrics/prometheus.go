// Package metrics provides Prometheus metrics for the scheduling engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	AppointmentsBooked    prometheus.Counter
	SlotFullRejections    prometheus.Counter
	DuplicateRejections   prometheus.Counter
	AppointmentsCancelled *prometheus.CounterVec
	EncountersFinalized   prometheus.Counter
	TestOrdersCreated     prometheus.Counter
	BookingDuration       prometheus.Histogram
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		AppointmentsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_booked_total",
			Help: "Total appointments booked",
		}),
		SlotFullRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_slot_full_total",
			Help: "Booking attempts rejected because the slot was full",
		}),
		DuplicateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_duplicate_total",
			Help: "Booking attempts rejected as duplicates",
		}),
		AppointmentsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appointments_cancelled_total",
			Help: "Total appointments cancelled, by initiator",
		}, []string{"initiator"}),
		EncountersFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encounters_finalized_total",
			Help: "Total clinical encounters finalized",
		}),
		TestOrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "test_orders_created_total",
			Help: "Total lab test orders created",
		}),
		BookingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_duration_seconds",
			Help:    "End-to-end booking duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.AppointmentsBooked,
		m.SlotFullRejections,
		m.DuplicateRejections,
		m.AppointmentsCancelled,
		m.EncountersFinalized,
		m.TestOrdersCreated,
		m.BookingDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
