package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	documentOps     *prometheus.HistogramVec
	checkIns        *prometheus.CounterVec
	rosterStudents  prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	documentOps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_document_operation_seconds",
		Help:    "Duration of attendance document reads and writes",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op"})

	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_check_ins_total",
		Help: "Check-ins recorded, by class",
	}, []string{"class"})

	rosterStudents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_roster_students_created_total",
		Help: "Students registered through roster imports",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, documentOps, checkIns, rosterStudents, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		documentOps:     documentOps,
		checkIns:        checkIns,
		rosterStudents:  rosterStudents,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDocumentOperation records how long a document load or save took.
func (m *MetricsService) ObserveDocumentOperation(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.documentOps.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCheckIn counts a successful check-in.
func (m *MetricsService) RecordCheckIn(class string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(class).Inc()
}

// RecordRosterImport counts students created by an import.
func (m *MetricsService) RecordRosterImport(studentsCreated int) {
	if m == nil || studentsCreated <= 0 {
		return
	}
	m.rosterStudents.Add(float64(studentsCreated))
}
