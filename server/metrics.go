package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "io_service_http_requests",
		Help: "Total number of storage service http requests served",
	})
	httpErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "io_service_http_errors",
		Help: "Total number of storage service http engine errors",
	})
	authFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "io_service_auth_failures",
		Help: "Total number of requests rejected for a missing or invalid API key",
	})
	blobSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "io_service_blob_size_bytes",
		Help:    "Size distribution of stored blobs",
		Buckets: prometheus.ExponentialBuckets(256, 4, 10),
	})
)

func init() {
	prometheus.MustRegister(httpRequestsServed)
	prometheus.MustRegister(httpErrorsCounter)
	prometheus.MustRegister(authFailuresCounter)
	prometheus.MustRegister(blobSizeBytes)
}

// engineMetrics is a Gin middleware that records things like number of errors directly from the http engine.
func engineMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		httpRequestsServed.Inc()
		if len(c.Errors.Errors()) > 0 || c.Writer.Status() >= 500 {
			httpErrorsCounter.Inc()
		}
	}
}
