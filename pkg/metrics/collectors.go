package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// RunCounter reports how many recorded training runs ended in each status
type RunCounter interface {
	CountByStatus(ctx context.Context) (map[models.RunStatus]int, error)
}

// RunCollector exports the run registry totals at scrape time
type RunCollector struct {
	log   *logger.Logger
	store RunCounter

	runs *prometheus.Desc
}

// NewRunCollector creates a collector backed by store
func NewRunCollector(log *logger.Logger, store RunCounter) *RunCollector {
	return &RunCollector{
		log:   log,
		store: store,
		runs: prometheus.NewDesc(
			"obesity_recorded_runs",
			"Training runs in the run registry by status",
			[]string{"status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
}

// Collect implements prometheus.Collector
func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		c.log.Errorw("Failed to count training runs", "error", err)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.GaugeValue, float64(n), string(status))
	}
}
