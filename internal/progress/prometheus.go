package progress

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports crawl progress as Prometheus metrics.
type PrometheusSink struct {
	pagesAccepted prometheus.Counter
	pagesEstimate prometheus.Gauge
	crawlsRunning prometheus.Gauge
	crawlsTotal   prometheus.Counter
}

// NewPrometheusSink registers the collectors on reg, or on the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pagesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siteindex_pages_accepted_total",
			Help: "Pages that passed all filters and reached storage.",
		}),
		pagesEstimate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siteindex_pages_estimate",
			Help: "Estimated number of pages in the current crawl.",
		}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siteindex_crawls_running",
			Help: "Crawls currently in progress.",
		}),
		crawlsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siteindex_crawls_started_total",
			Help: "Crawls started since the process began.",
		}),
	}
	for _, c := range []prometheus.Collector{
		s.pagesAccepted,
		s.pagesEstimate,
		s.crawlsRunning,
		s.crawlsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Start implements Observer.
func (s *PrometheusSink) Start(total int) {
	s.crawlsTotal.Inc()
	s.crawlsRunning.Inc()
	s.pagesEstimate.Set(float64(total))
}

// Accepted implements Observer.
func (s *PrometheusSink) Accepted(string) {
	s.pagesAccepted.Inc()
}

// Finish implements Observer.
func (s *PrometheusSink) Finish() {
	s.crawlsRunning.Dec()
}
