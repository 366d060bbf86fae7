package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

// Collector records engine outcomes. A nil *Collector is valid and records
// nothing, so components can be built without metrics in tests.
type Collector struct {
	accountsProvisioned *prometheus.CounterVec
	provisionFailures   *prometheus.CounterVec
	accountsDeleted     *prometheus.CounterVec
	cascadeOutcomes     *prometheus.CounterVec
	remoteCallDuration  *prometheus.HistogramVec
	remoteCallErrors    *prometheus.CounterVec
	notificationsRaised *prometheus.CounterVec
	poolClaims          *prometheus.CounterVec
	backendUp           *prometheus.GaugeVec
}

// NewCollector registers the engine metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		accountsProvisioned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_accounts_provisioned_total",
				Help: "Accounts created successfully",
			},
			[]string{"kind", "managed"},
		),

		provisionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_account_provision_failures_total",
				Help: "Account creations rejected or failed, by reason",
			},
			[]string{"kind", "reason"},
		),

		accountsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_accounts_deleted_total",
				Help: "Accounts fully deprovisioned and removed",
			},
			[]string{"kind"},
		),

		cascadeOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_cascade_account_outcomes_total",
				Help: "Per-account results of status cascades",
			},
			[]string{"kind", "outcome"},
		),

		remoteCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vmaster_backend_call_duration_seconds",
				Help:    "Duration of calls to backend management endpoints",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind", "operation"},
		),

		remoteCallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_backend_call_errors_total",
				Help: "Failed calls to backend management endpoints",
			},
			[]string{"kind", "operation"},
		),

		notificationsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_notifications_raised_total",
				Help: "Operator notifications created",
			},
			[]string{"type", "severity"},
		),

		poolClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmaster_pool_claims_total",
				Help: "Pool claim attempts by result",
			},
			[]string{"kind", "result"},
		),

		backendUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmaster_backend_up",
				Help: "Whether the last scheduled check reached the backend (1) or not (0)",
			},
			[]string{"backend_id", "kind"},
		),
	}
}

func (c *Collector) RecordProvisioned(kind core.BackendKind, managed bool) {
	if c == nil {
		return
	}
	m := "false"
	if managed {
		m = "true"
	}
	c.accountsProvisioned.WithLabelValues(string(kind), m).Inc()
}

// RecordProvisionFailure classifies err by the error taxonomy.
func (c *Collector) RecordProvisionFailure(kind core.BackendKind, err error) {
	if c == nil {
		return
	}
	c.provisionFailures.WithLabelValues(string(kind), Reason(err)).Inc()
}

func (c *Collector) RecordDeleted(kind core.BackendKind) {
	if c == nil {
		return
	}
	c.accountsDeleted.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) RecordCascadeOutcome(kind core.BackendKind, outcome string) {
	if c == nil {
		return
	}
	c.cascadeOutcomes.WithLabelValues(string(kind), outcome).Inc()
}

// ObserveRemoteCall records the duration of one backend call started at
// start, counting it as an error when err is not nil.
func (c *Collector) ObserveRemoteCall(kind core.BackendKind, op string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.remoteCallDuration.WithLabelValues(string(kind), op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.remoteCallErrors.WithLabelValues(string(kind), op).Inc()
	}
}

func (c *Collector) RecordNotification(n *core.Notification) {
	if c == nil {
		return
	}
	c.notificationsRaised.WithLabelValues(n.Type, string(n.Severity)).Inc()
}

func (c *Collector) RecordPoolClaim(kind core.BackendKind, err error) {
	if c == nil {
		return
	}
	result := "claimed"
	switch {
	case errors.Is(err, core.ErrNotFound):
		result = "exhausted"
	case err != nil:
		result = "error"
	}
	c.poolClaims.WithLabelValues(string(kind), result).Inc()
}

func (c *Collector) SetBackendUp(backendID string, kind core.BackendKind, up bool) {
	if c == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	c.backendUp.WithLabelValues(backendID, string(kind)).Set(v)
}

// ForgetBackend drops the check series of a deleted backend.
func (c *Collector) ForgetBackend(backendID string, kind core.BackendKind) {
	if c == nil {
		return
	}
	c.backendUp.DeleteLabelValues(backendID, string(kind))
}

// Reason maps an error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, core.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, core.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, core.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, core.ErrConflict):
		return "conflict"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, core.ErrForbidden):
		return "forbidden"
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}
