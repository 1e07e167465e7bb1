package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks the fiat gateway's processing pipeline.
type GatewayMetrics struct {
	requests             *prometheus.CounterVec
	durations            *prometheus.HistogramVec
	invoices             *prometheus.CounterVec
	webhookFailures      *prometheus.CounterVec
	idempotencyReplays   prometheus.Counter
	idempotencyConflicts prometheus.Counter
	receiptWrites        prometheus.Counter
	reconExports         *prometheus.CounterVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "HTTP requests processed by route, method, and status.",
			}, []string{"route", "method", "status"}),
			durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "HTTP request latency by route and method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),
			invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_invoices_total",
				Help: "Count of processed fiat invoices by terminal status.",
			}, []string{"status"}),
			webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_webhook_failures_total",
				Help: "Number of rejected webhook deliveries by reason.",
			}, []string{"reason"}),
			idempotencyReplays: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gateway_idempotency_replays_total",
				Help: "Requests answered from the stored idempotent response.",
			}),
			idempotencyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gateway_idempotency_conflicts_total",
				Help: "Requests rejected because the key was reused with a different payload.",
			}),
			receiptWrites: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gateway_receipt_writes_total",
				Help: "Receipts persisted to the local receipt store.",
			}),
			reconExports: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_recon_exports_total",
				Help: "Reconciliation exports generated by format.",
			}, []string{"format"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.durations,
			gatewayRegistry.invoices,
			gatewayRegistry.webhookFailures,
			gatewayRegistry.idempotencyReplays,
			gatewayRegistry.idempotencyConflicts,
			gatewayRegistry.receiptWrites,
			gatewayRegistry.reconExports,
		)
	})
	return gatewayRegistry
}

// ObserveRequest records one handled HTTP request.
func (m *GatewayMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordInvoice increments the invoice counter for the given terminal status.
func (m *GatewayMetrics) RecordInvoice(status string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(status))
	if normalized == "" {
		normalized = "unknown"
	}
	m.invoices.WithLabelValues(normalized).Inc()
}

// RecordWebhookFailure increments the webhook failure counter.
func (m *GatewayMetrics) RecordWebhookFailure(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.webhookFailures.WithLabelValues(reason).Inc()
}

// RecordIdempotencyReplay counts a request served from a stored response.
func (m *GatewayMetrics) RecordIdempotencyReplay() {
	if m == nil {
		return
	}
	m.idempotencyReplays.Inc()
}

// RecordIdempotencyConflict counts a key reuse with a different payload.
func (m *GatewayMetrics) RecordIdempotencyConflict() {
	if m == nil {
		return
	}
	m.idempotencyConflicts.Inc()
}

// RecordReceiptWrite counts one persisted receipt.
func (m *GatewayMetrics) RecordReceiptWrite() {
	if m == nil {
		return
	}
	m.receiptWrites.Inc()
}

// RecordReconExport counts one reconciliation export in the given format.
func (m *GatewayMetrics) RecordReconExport(format string) {
	if m == nil {
		return
	}
	if format = strings.TrimSpace(strings.ToLower(format)); format == "" {
		format = "unknown"
	}
	m.reconExports.WithLabelValues(format).Inc()
}
