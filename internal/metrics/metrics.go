package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by actor type.",
		},
		[]string{"actor_type"},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "booking_transition_total",
			Help:      "Count of lifecycle events appended by event type.",
		},
		[]string{"event_type"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "booking_rejected_total",
			Help:      "Count of rejected engine operations by operation and code.",
		},
		[]string{"operation", "code"},
	)

	storeFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "store_failure_total",
			Help:      "Count of infrastructure failures surfaced by engine operations.",
		},
		[]string{"operation"},
	)

	sweepCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "sweep_completed_total",
			Help:      "Count of bookings completed by the auto-complete sweep.",
		},
	)

	sweepSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "sweep_skipped_total",
			Help:      "Count of sweep triggers skipped by throttling.",
		},
	)

	notificationSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "notification_sent_total",
			Help:      "Count of notifications by status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	ovenCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovenbook",
			Name:      "oven_cache_lookups_total",
			Help:      "Oven directory cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingTransition,
			bookingRejected,
			storeFailure,
			sweepCompleted,
			sweepSkipped,
			notificationSent,
			httpRequests,
			ovenCacheLookups,
		)
	})
}

func IncBookingCreated(actorType string) {
	bookingCreated.WithLabelValues(actorType).Inc()
}

func IncTransition(eventType string) {
	bookingTransition.WithLabelValues(eventType).Inc()
}

func IncRejected(operation, code string) {
	bookingRejected.WithLabelValues(operation, code).Inc()
}

func IncStoreFailure(operation string) {
	storeFailure.WithLabelValues(operation).Inc()
}

func AddSweepCompleted(n int) {
	sweepCompleted.Add(float64(n))
}

func IncSweepSkipped() {
	sweepSkipped.Inc()
}

func IncNotification(status string) {
	notificationSent.WithLabelValues(status).Inc()
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncOvenCache(result string) {
	ovenCacheLookups.WithLabelValues(result).Inc()
}
