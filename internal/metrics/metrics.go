// Package metrics exposes Prometheus counters for rotation decisions.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/croprot/internal/rotation"
)

// unknownCropLabel replaces unrecognized crop names so arbitrary input
// cannot grow label cardinality.
const unknownCropLabel = "unknown"

// Recorder counts sowing checks and harvests.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	sowingChecks *prometheus.CounterVec
	harvests     *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
// Panics if the collectors are already registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sowingChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croprot_sowing_checks_total",
				Help: "Sowing permission queries by crop and outcome",
			},
			[]string{"crop", "outcome"},
		),
		harvests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croprot_harvests_total",
				Help: "Harvests reported by crop and whether they entered rotation history",
			},
			[]string{"crop", "recorded"},
		),
	}
	reg.MustRegister(r.sowingChecks, r.harvests)
	return r
}

// SowingCheck counts one sowing query.
func (r *Recorder) SowingCheck(crop, outcome string) {
	if r == nil {
		return
	}
	r.sowingChecks.WithLabelValues(cropLabel(crop), outcome).Inc()
}

// Harvest counts one harvest report.
func (r *Recorder) Harvest(crop string, recorded bool) {
	if r == nil {
		return
	}
	r.harvests.WithLabelValues(cropLabel(crop), strconv.FormatBool(recorded)).Inc()
}

func cropLabel(name string) string {
	c, ok := rotation.LookupCrop(name)
	if !ok {
		return unknownCropLabel
	}
	return c.String()
}
