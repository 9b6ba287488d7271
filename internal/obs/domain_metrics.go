package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// SaleSubmissionsTotal counts checkout submissions to the backend.
	SaleSubmissionsTotal *prometheus.CounterVec
	// DistributionValidationsTotal counts reconciliation outcomes by violation class.
	DistributionValidationsTotal *prometheus.CounterVec
	// PriceSplitSnapshotRefreshTotal counts snapshot rebuilds.
	PriceSplitSnapshotRefreshTotal *prometheus.CounterVec
	// BackendRequestDuration records outbound backend latency in milliseconds.
	BackendRequestDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and result.",
		}, []string{"op", "result"})
		SaleSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_submissions_total",
			Help:      "Count of sale submissions by result.",
		}, []string{"result"})
		DistributionValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_validations_total",
			Help:      "Count of distribution reconciliations by result and violation.",
		}, []string{"result", "violation"})
		PriceSplitSnapshotRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricesplit_snapshot_refresh_total",
			Help:      "Count of inventory snapshot rebuilds by result.",
		}, []string{"result"})
		BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Latency of inventory backend calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})

		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
		mustRegisterCollector(reg, SaleSubmissionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SaleSubmissionsTotal = v
			}
		})
		mustRegisterCollector(reg, DistributionValidationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DistributionValidationsTotal = v
			}
		})
		mustRegisterCollector(reg, PriceSplitSnapshotRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceSplitSnapshotRefreshTotal = v
			}
		})
		mustRegisterCollector(reg, BackendRequestDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				BackendRequestDuration = v
			}
		})
	})
}

// CountCartMutation increments the cart mutation counter when registered.
func CountCartMutation(op string, err error) {
	if CartMutationsTotal == nil {
		return
	}
	CartMutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

// CountSaleSubmission increments the sale submission counter when registered.
func CountSaleSubmission(err error) {
	if SaleSubmissionsTotal == nil {
		return
	}
	SaleSubmissionsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// CountDistributionValidation records a reconciliation outcome. violation is
// empty for accepted inputs.
func CountDistributionValidation(violation string) {
	if DistributionValidationsTotal == nil {
		return
	}
	result := "accepted"
	if violation != "" {
		result = "rejected"
	} else {
		violation = "none"
	}
	DistributionValidationsTotal.WithLabelValues(result, violation).Inc()
}

// CountSnapshotRefresh increments the snapshot refresh counter when registered.
func CountSnapshotRefresh(err error) {
	if PriceSplitSnapshotRefreshTotal == nil {
		return
	}
	PriceSplitSnapshotRefreshTotal.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveBackendRequest records the latency of one backend operation.
func ObserveBackendRequest(operation string, ms float64, err error) {
	if BackendRequestDuration == nil {
		return
	}
	BackendRequestDuration.WithLabelValues(operation, resultLabel(err)).Observe(ms)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
