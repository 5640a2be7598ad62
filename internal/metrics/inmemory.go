package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	HTTPRequests           uint64
	CatalogCacheHits       uint64
	CatalogCacheMisses     uint64
	Signups                uint64
	Logins                 map[string]uint64
	EntitlementsGranted    map[string]uint64
	GrantConflicts         uint64
	Downloads              map[string]uint64
	PurchaseRequests       uint64
	Notifications          map[string]uint64
	NotificationQueueDepth int64
	EmailsSent             map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	httpRequests           uint64
	catalogCacheHits       uint64
	catalogCacheMisses     uint64
	signups                uint64
	grantConflicts         uint64
	purchaseRequests       uint64
	notificationQueueDepth int64

	mu       sync.Mutex
	labelled map[string]map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labelled: make(map[string]map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		HTTPRequests:           atomic.LoadUint64(&m.httpRequests),
		CatalogCacheHits:       atomic.LoadUint64(&m.catalogCacheHits),
		CatalogCacheMisses:     atomic.LoadUint64(&m.catalogCacheMisses),
		Signups:                atomic.LoadUint64(&m.signups),
		Logins:                 m.copyLabelled("logins"),
		EntitlementsGranted:    m.copyLabelled("granted"),
		GrantConflicts:         atomic.LoadUint64(&m.grantConflicts),
		Downloads:              m.copyLabelled("downloads"),
		PurchaseRequests:       atomic.LoadUint64(&m.purchaseRequests),
		Notifications:          m.copyLabelled("notifications"),
		NotificationQueueDepth: atomic.LoadInt64(&m.notificationQueueDepth),
		EmailsSent:             m.copyLabelled("emails"),
	}
}

func (m *InMemoryRecorder) inc(family, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts, ok := m.labelled[family]
	if !ok {
		counts = make(map[string]uint64)
		m.labelled[family] = counts
	}
	counts[label]++
}

func (m *InMemoryRecorder) copyLabelled(family string) map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.labelled[family]))
	for k, v := range m.labelled[family] {
		out[k] = v
	}
	return out
}

// ObserveHTTPRequest counts served requests.
func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}

// IncCatalogCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncCatalogCacheHit() {
	atomic.AddUint64(&m.catalogCacheHits, 1)
}

// IncCatalogCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncCatalogCacheMiss() {
	atomic.AddUint64(&m.catalogCacheMisses, 1)
}

// IncSignup increments the signup counter.
func (m *InMemoryRecorder) IncSignup() {
	atomic.AddUint64(&m.signups, 1)
}

// IncLogin increments the login counter for result.
func (m *InMemoryRecorder) IncLogin(result string) {
	m.inc("logins", result)
}

// IncEntitlementGranted increments grants by source.
func (m *InMemoryRecorder) IncEntitlementGranted(source string) {
	m.inc("granted", source)
}

// IncGrantConflict increments rejected duplicate grants.
func (m *InMemoryRecorder) IncGrantConflict() {
	atomic.AddUint64(&m.grantConflicts, 1)
}

// IncDownload increments downloads by outcome.
func (m *InMemoryRecorder) IncDownload(outcome string) {
	m.inc("downloads", outcome)
}

// ObserveDownloadDuration is a no-op in memory.
func (m *InMemoryRecorder) ObserveDownloadDuration(time.Duration) {}

// IncPurchaseRequest increments manual payment submissions.
func (m *InMemoryRecorder) IncPurchaseRequest() {
	atomic.AddUint64(&m.purchaseRequests, 1)
}

// IncNotification increments notification deliveries by status.
func (m *InMemoryRecorder) IncNotification(status string) {
	m.inc("notifications", status)
}

// SetNotificationQueueDepth stores the outbox depth.
func (m *InMemoryRecorder) SetNotificationQueueDepth(depth int64) {
	atomic.StoreInt64(&m.notificationQueueDepth, depth)
}

// IncEmailSent increments emails by status.
func (m *InMemoryRecorder) IncEmailSent(status string) {
	m.inc("emails", status)
}
