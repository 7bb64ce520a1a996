package cache

import (
	"fmt"
	"time"
)

// Metric names used in cache keys. The TTL policy is keyed by these, so
// callers never hardcode expirations.
const (
	MetricDashboard = "dashboard"
	MetricTrends    = "trends"
	MetricForecast  = "forecast"
	MetricABC       = "abc"
	MetricRFM       = "rfm"
	MetricProducts  = "products"
	MetricStaff     = "staff"
	MetricInventory = "inventory"
	MetricEOD       = "eod"
)

// ttlPolicy maps metric freshness needs to expirations: seconds for live
// dashboard figures, hours for classification and forecast outputs, tens
// of minutes for inventory intelligence.
var ttlPolicy = map[string]time.Duration{
	MetricDashboard: 30 * time.Second,
	MetricTrends:    time.Hour,
	MetricForecast:  6 * time.Hour,
	MetricABC:       6 * time.Hour,
	MetricRFM:       12 * time.Hour,
	MetricProducts:  time.Hour,
	MetricStaff:     time.Hour,
	MetricInventory: 20 * time.Minute,
	MetricEOD:       24 * time.Hour,
}

// defaultTTL applies to any metric missing from the policy table.
const defaultTTL = 5 * time.Minute

// TTLFor returns the policy TTL for a metric.
func TTLFor(metric string) time.Duration {
	if ttl, ok := ttlPolicy[metric]; ok {
		return ttl
	}
	return defaultTTL
}

// Key builds the namespaced cache key {businessID}:{metric}:{params}.
// Tenant first, always, so pattern invalidation can scope to one business.
func Key(businessID, metric, params string) string {
	return fmt.Sprintf("%s:%s:%s", businessID, metric, params)
}

// MetricPattern matches every cached entry of one metric for a business.
func MetricPattern(businessID, metric string) string {
	return fmt.Sprintf("%s:%s:*", businessID, metric)
}

// BusinessPattern matches every cached entry for a business.
func BusinessPattern(businessID string) string {
	return fmt.Sprintf("%s:*", businessID)
}
