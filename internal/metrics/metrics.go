// Package metrics exposes Prometheus counters for HTTP traffic and for the
// download, video and solar-wind pipelines.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarimager_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarimager_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	imagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarimager_images_total",
			Help: "Images processed by the download workflow, by outcome.",
		},
		[]string{"filter", "outcome"},
	)

	imageBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarimager_image_bytes_total",
			Help: "Bytes of image data saved.",
		},
		[]string{"filter"},
	)

	corruptedDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solarimager_corrupted_files_deleted_total",
			Help: "Files deleted for being below the size threshold.",
		},
	)

	videoEncodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarimager_video_encodes_total",
			Help: "Video encodes by encoder and result.",
		},
		[]string{"encoder", "result"},
	)

	videoEncodeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarimager_video_encode_seconds",
			Help:    "Video encode duration in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"encoder"},
	)

	solarWindFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarimager_solarwind_fetches_total",
			Help: "Solar wind dataset loads, real or synthetic.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		imagesTotal,
		imageBytesTotal,
		corruptedDeletedTotal,
		videoEncodesTotal,
		videoEncodeSeconds,
		solarWindFetchesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Image outcomes.
const (
	OutcomeDownloaded = "downloaded"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

// ObserveImage counts one workflow result. bytes is ignored unless the
// image was downloaded.
func ObserveImage(filter, outcome string, bytes int64) {
	imagesTotal.WithLabelValues(filter, outcome).Inc()
	if outcome == OutcomeDownloaded && bytes > 0 {
		imageBytesTotal.WithLabelValues(filter).Add(float64(bytes))
	}
}

// ObserveCorruptedDeleted counts files removed by cleanup.
func ObserveCorruptedDeleted(n int) {
	corruptedDeletedTotal.Add(float64(n))
}

// ObserveVideoEncode records one encode attempt.
func ObserveVideoEncode(encoder string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	videoEncodesTotal.WithLabelValues(encoder, result).Inc()
	videoEncodeSeconds.WithLabelValues(encoder).Observe(d.Seconds())
}

// ObserveSolarWind counts a dataset load.
func ObserveSolarWind(synthetic bool) {
	kind := "real"
	if synthetic {
		kind = "synthetic"
	}
	solarWindFetchesTotal.WithLabelValues(kind).Inc()
}

var knownRoutes = map[string]bool{
	"/":                      true,
	"/health":                true,
	"/metrics":               true,
	"/ws":                    true,
	"/api/filters":           true,
	"/api/dates":             true,
	"/api/images":            true,
	"/api/stats":             true,
	"/api/download":          true,
	"/api/video":             true,
	"/api/solarwind":         true,
	"/api/solarwind/current": true,
	"/api/solarwind/summary": true,
	"/api/cleanup":           true,
	"/api/cancel":            true,
	"/api/jobs":              true,
}

// normalizeRoute collapses path parameters and unknown paths so label
// cardinality stays bounded.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/jobs/") {
		return "/api/jobs/{id}"
	}
	if strings.HasPrefix(path, "/files/") {
		return "/files/*"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack exposes the underlying connection for websocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
