package writer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "geostore",
	Subsystem: "writer",
	Name:      "rows",
}, []string{"collection", "action"})

var BatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "geostore",
	Subsystem: "writer",
	Name:      "batch_duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"collection"})

var PlanFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "geostore",
	Subsystem: "writer",
	Name:      "plan_failures",
}, []string{"code"})

// RegisterMetrics registers the writer metrics with reg. Registering twice with
// the same registry is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{RowsWritten, BatchDuration, PlanFailures} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
