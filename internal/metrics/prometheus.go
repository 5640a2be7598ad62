package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	catalogCache        *prometheus.CounterVec
	signups             prometheus.Counter
	logins              *prometheus.CounterVec
	granted             *prometheus.CounterVec
	grantConflicts      prometheus.Counter
	downloads           *prometheus.CounterVec
	downloadDuration    prometheus.Histogram
	purchaseRequests    prometheus.Counter
	notifications       *prometheus.CounterVec
	notificationQueue   prometheus.Gauge
	emails              *prometheus.CounterVec
}

// NewPrometheus creates a recorder registered under namespace.
func NewPrometheus(namespace string) *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		catalogCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_cache_lookups_total",
				Help:      "Catalog cache lookups by result",
			},
			[]string{"result"},
		),
		signups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signups_total",
			Help:      "Accounts created",
		}),
		logins: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		granted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlements_granted_total",
				Help:      "Entitlements granted by source",
			},
			[]string{"source"},
		),
		grantConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_grant_conflicts_total",
			Help:      "Grants rejected because the book was already owned",
		}),
		downloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Download attempts by outcome",
			},
			[]string{"outcome"},
		),
		downloadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_authorization_duration_seconds",
			Help:      "Time spent authorizing a download",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		purchaseRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_requests_total",
			Help:      "Manual bank transfer submissions",
		}),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Discord notification attempts by status",
			},
			[]string{"status"},
		),
		notificationQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Notifications waiting for retry",
		}),
		emails: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_sent_total",
				Help:      "Ebook emails by status",
			},
			[]string{"status"},
		),
	}
}

// Handler returns the exposition handler for this recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncCatalogCacheHit() {
	p.catalogCache.WithLabelValues("hit").Inc()
}

func (p *PrometheusRecorder) IncCatalogCacheMiss() {
	p.catalogCache.WithLabelValues("miss").Inc()
}

func (p *PrometheusRecorder) IncSignup() {
	p.signups.Inc()
}

func (p *PrometheusRecorder) IncLogin(result string) {
	p.logins.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncEntitlementGranted(source string) {
	p.granted.WithLabelValues(source).Inc()
}

func (p *PrometheusRecorder) IncGrantConflict() {
	p.grantConflicts.Inc()
}

func (p *PrometheusRecorder) IncDownload(outcome string) {
	p.downloads.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveDownloadDuration(d time.Duration) {
	p.downloadDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPurchaseRequest() {
	p.purchaseRequests.Inc()
}

func (p *PrometheusRecorder) IncNotification(status string) {
	p.notifications.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) SetNotificationQueueDepth(depth int64) {
	p.notificationQueue.Set(float64(depth))
}

func (p *PrometheusRecorder) IncEmailSent(status string) {
	p.emails.WithLabelValues(status).Inc()
}
