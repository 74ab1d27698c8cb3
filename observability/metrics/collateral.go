package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CollateralMetrics counts every vault state transition, including reclaim
// voids, which emit no audit event of their own.
type CollateralMetrics struct {
	deposits          prometheus.Counter
	reclaimsStarted   prometheus.Counter
	reclaimsFinalized prometheus.Counter
	reclaimsVoided    prometheus.Counter
	reclaimsDenied    prometheus.Counter
	slashes           prometheus.Counter
	opFailures        *prometheus.CounterVec
}

var (
	collateralOnce     sync.Once
	collateralRegistry *CollateralMetrics
)

func Collateral() *CollateralMetrics {
	collateralOnce.Do(func() {
		collateralRegistry = &CollateralMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_deposits_total",
				Help: "Count of accepted collateral deposits.",
			}),
			reclaimsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_reclaims_started_total",
				Help: "Count of reclaim requests opened.",
			}),
			reclaimsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_reclaims_finalized_total",
				Help: "Count of reclaim requests finalized with a payout.",
			}),
			reclaimsVoided: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_reclaims_voided_total",
				Help: "Count of reclaim requests voided because a slash consumed the backing stake.",
			}),
			reclaimsDenied: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_reclaims_denied_total",
				Help: "Count of reclaim requests denied by the trustee.",
			}),
			slashes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collateral_slashes_total",
				Help: "Count of executed slashes.",
			}),
			opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "collateral_operation_failures_total",
				Help: "Count of rejected operations by method.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			collateralRegistry.deposits,
			collateralRegistry.reclaimsStarted,
			collateralRegistry.reclaimsFinalized,
			collateralRegistry.reclaimsVoided,
			collateralRegistry.reclaimsDenied,
			collateralRegistry.slashes,
			collateralRegistry.opFailures,
		)
	})
	return collateralRegistry
}

func (m *CollateralMetrics) ObserveDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

func (m *CollateralMetrics) ObserveReclaimStarted() {
	if m == nil {
		return
	}
	m.reclaimsStarted.Inc()
}

func (m *CollateralMetrics) ObserveReclaimFinalized(voided bool) {
	if m == nil {
		return
	}
	if voided {
		m.reclaimsVoided.Inc()
		return
	}
	m.reclaimsFinalized.Inc()
}

func (m *CollateralMetrics) ObserveReclaimDenied() {
	if m == nil {
		return
	}
	m.reclaimsDenied.Inc()
}

func (m *CollateralMetrics) ObserveSlash() {
	if m == nil {
		return
	}
	m.slashes.Inc()
}

func (m *CollateralMetrics) ObserveFailure(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.opFailures.WithLabelValues(method).Inc()
}
