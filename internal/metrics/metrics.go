// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Download outcomes recorded by IncDownload.
const (
	DownloadAuthorized      = "authorized"
	DownloadFree            = "free"
	DownloadUnauthenticated = "unauthenticated"
	DownloadNotFound        = "not_found"
	DownloadNotEntitled     = "not_entitled"
	DownloadExpired         = "expired"
	DownloadUpstreamError   = "upstream_error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory for tests.
type Recorder interface {
	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Catalog metrics
	IncCatalogCacheHit()
	IncCatalogCacheMiss()

	// Account metrics
	IncSignup()
	IncLogin(result string) // result: "success" or "failure"

	// Entitlement metrics
	IncEntitlementGranted(source string) // source: "purchase" or "admin"
	IncGrantConflict()
	IncDownload(outcome string)
	ObserveDownloadDuration(duration time.Duration)

	// Manual payment metrics
	IncPurchaseRequest()
	IncNotification(status string) // status: "success", "failed", "exhausted"
	SetNotificationQueueDepth(depth int64)
	IncEmailSent(status string) // status: "success" or "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
