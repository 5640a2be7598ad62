package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}

func (n *NoopRecorder) IncCatalogCacheHit() {}

func (n *NoopRecorder) IncCatalogCacheMiss() {}

func (n *NoopRecorder) IncSignup() {}

func (n *NoopRecorder) IncLogin(result string) {}

func (n *NoopRecorder) IncEntitlementGranted(source string) {}

func (n *NoopRecorder) IncGrantConflict() {}

func (n *NoopRecorder) IncDownload(outcome string) {}

func (n *NoopRecorder) ObserveDownloadDuration(duration time.Duration) {}

func (n *NoopRecorder) IncPurchaseRequest() {}

func (n *NoopRecorder) IncNotification(status string) {}

func (n *NoopRecorder) SetNotificationQueueDepth(depth int64) {}

func (n *NoopRecorder) IncEmailSent(status string) {}
