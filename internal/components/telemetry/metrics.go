package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CrawlsTotal counts finished crawls by outcome: ok, empty, failed.
	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksbot_crawls_total",
			Help: "Total number of portal crawls.",
		},
		[]string{"outcome"},
	)

	// CrawlPagesTotal counts fetched result pages by outcome: ok, failed.
	CrawlPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksbot_crawl_pages_total",
			Help: "Total number of result pages fetched from the portal.",
		},
		[]string{"outcome"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksbot_downloads_total",
			Help: "Total number of file retrievals.",
		},
		[]string{"outcome"},
	)

	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marksbot_active_conversations",
			Help: "Number of conversations currently held in memory.",
		},
	)

	cpuGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marksbot_cpu_usage_percent",
		Help: "Host cpu usage.",
	})
	memoryGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marksbot_allocated_mb",
		Help: "Heap memory allocated by the process.",
	})
	liveObjectsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marksbot_live_objects",
		Help: "Live heap objects.",
	})
	goroutineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marksbot_goroutine_count",
		Help: "Number of goroutines.",
	})
)

// MetricsHandler serves the default prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
