package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/TheLab-ms/innkeeper/scenario"
)

var (
	metricScenarioRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "innkeeper",
		Name:      "scenario_runs_total",
		Help:      "Scenario runs by outcome.",
	}, []string{"scenario", "outcome"})
	metricScenarioDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "innkeeper",
		Name:      "scenario_duration_seconds",
		Help:      "Wall time of a scenario run, browser startup included.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"scenario"})
	metricScenarioLastRun = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "innkeeper",
		Name:      "scenario_last_run_timestamp_seconds",
		Help:      "When the scenario last finished.",
	}, []string{"scenario"})
	metricScenarioLastPassed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "innkeeper",
		Name:      "scenario_last_passed",
		Help:      "1 if the scenario's last run passed, else 0.",
	}, []string{"scenario"})
	metricRunRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "innkeeper",
		Name:      "run_requests_total",
		Help:      "Suite runs queued, by reason.",
	}, []string{"reason"})
)

func recordResult(res *scenario.Result) {
	outcome := "passed"
	passed := 1.0
	if !res.Passed {
		outcome = "failed"
		passed = 0
	}
	metricScenarioRuns.WithLabelValues(res.Scenario, outcome).Inc()
	metricScenarioDuration.WithLabelValues(res.Scenario).Observe(res.Duration.Seconds())
	metricScenarioLastRun.WithLabelValues(res.Scenario).Set(float64(res.Started.Add(res.Duration).Unix()))
	metricScenarioLastPassed.WithLabelValues(res.Scenario).Set(passed)
}
