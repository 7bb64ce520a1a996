package cache

import (
	"testing"
	"time"
)

// TestTTLForPolicy verifies the freshness tiers: seconds for the live
// dashboard, hours for classifications, tens of minutes for inventory.
func TestTTLForPolicy(t *testing.T) {
	if ttl := TTLFor(MetricDashboard); ttl >= time.Minute {
		t.Errorf("dashboard ttl %v should be sub-minute", ttl)
	}
	if ttl := TTLFor(MetricRFM); ttl < time.Hour {
		t.Errorf("rfm ttl %v should be at least an hour", ttl)
	}
	if ttl := TTLFor(MetricInventory); ttl < 10*time.Minute || ttl > time.Hour {
		t.Errorf("inventory ttl %v should be tens of minutes", ttl)
	}
}

// TestTTLForUnknownMetric verifies unknown metrics fall back to the default
// rather than never expiring.
func TestTTLForUnknownMetric(t *testing.T) {
	if ttl := TTLFor("not-a-metric"); ttl != defaultTTL {
		t.Errorf("unknown metric ttl = %v, want %v", ttl, defaultTTL)
	}
}

// TestKeyNamespacing verifies keys are tenant-first so invalidation can
// scope by business.
func TestKeyNamespacing(t *testing.T) {
	key := Key("biz-1", MetricForecast, "14d")
	if key != "biz-1:forecast:14d" {
		t.Errorf("key = %s", key)
	}
	if p := MetricPattern("biz-1", MetricForecast); p != "biz-1:forecast:*" {
		t.Errorf("metric pattern = %s", p)
	}
	if p := BusinessPattern("biz-1"); p != "biz-1:*" {
		t.Errorf("business pattern = %s", p)
	}
}
