// Package metrics collects and exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     prometheus.Histogram
	uploadedFiles   prometheus.Counter
	uploadedBytes   prometheus.Counter
	quotaRejections prometheus.Counter
	tokenRotations  prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixvault_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixvault_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		uploadedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixvault_uploaded_files_total",
			Help: "Files successfully uploaded.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixvault_uploaded_bytes_total",
			Help: "Bytes successfully uploaded.",
		}),
		quotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixvault_quota_rejections_total",
			Help: "Upload batches rejected by the storage quota.",
		}),
		tokenRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixvault_token_rotations_total",
			Help: "Refresh token rotations performed.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.uploadedFiles,
		c.uploadedBytes,
		c.quotaRejections,
		c.tokenRotations,
	)

	return c
}

func (c *Collector) RecordRequest(method string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordUpload(files int, bytes int64) {
	if c == nil {
		return
	}
	c.uploadedFiles.Add(float64(files))
	c.uploadedBytes.Add(float64(bytes))
}

func (c *Collector) RecordQuotaRejection() {
	if c == nil {
		return
	}
	c.quotaRejections.Inc()
}

func (c *Collector) RecordTokenRotation() {
	if c == nil {
		return
	}
	c.tokenRotations.Inc()
}

// Handler returns the HTTP handler serving the /metrics scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
