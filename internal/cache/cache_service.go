// Package cache provides the Redis-backed metric cache tier. It owns the
// per-metric TTL policy, namespaces every key by tenant, and degrades to
// cache-miss behavior (callers recompute) when Redis is unhealthy instead
// of serving stale data or failing requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pos-analytics/config"
	"pos-analytics/internal/logging"
)

// ErrUnavailable is returned when Redis is down or the circuit breaker is
// open. Callers treat it like a miss and recompute.
var ErrUnavailable = errors.New("cache unavailable")

// ErrMiss is returned when the key does not exist.
var ErrMiss = errors.New("cache miss")

// CacheService wraps the Redis client with a small circuit breaker so a
// flapping Redis does not add per-request timeouts to the API path.
type CacheService struct {
	client  *redis.Client
	log     *logging.Logger
	enabled bool

	mu              sync.Mutex
	healthy         bool
	failureCount    int
	maxFailures     int
	lastHealthCheck time.Time
	checkInterval   time.Duration
}

// NewCacheService connects to Redis. A failed initial ping returns a
// degraded service rather than an error: the engine runs without caching
// until Redis comes back.
func NewCacheService(cfg config.RedisConfig) *CacheService {
	log := logging.WithComponent("cache")

	cs := &CacheService{
		log:           log,
		enabled:       cfg.Enabled,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}
	if !cfg.Enabled {
		log.Warn("cache disabled by configuration, all reads will recompute")
		return cs
	}

	cs.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable at startup, starting degraded", "error", err)
		return cs
	}

	cs.healthy = true
	log.Info("connected to redis", "addr", cfg.Addr)
	return cs
}

// IsHealthy reports whether the circuit breaker is closed.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.healthy
}

// Client exposes the raw redis client for components that need atomic
// counters (live metrics) or locks. Nil when caching is disabled.
func (cs *CacheService) Client() *redis.Client {
	return cs.client
}

func (cs *CacheService) available() bool {
	if !cs.enabled || cs.client == nil {
		return false
	}
	cs.mu.Lock()
	healthy := cs.healthy
	cs.mu.Unlock()
	if !healthy {
		cs.checkHealth()
	}
	return healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.failureCount++
	if cs.failureCount >= cs.maxFailures && cs.healthy {
		cs.log.Warn("circuit breaker open, redis marked unhealthy", "failures", cs.failureCount)
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.healthy {
		cs.log.Info("circuit breaker closed, redis healthy again")
	}
	cs.healthy = true
	cs.failureCount = 0
}

// checkHealth probes Redis in the background at most once per interval
// while the breaker is open.
func (cs *CacheService) checkHealth() {
	cs.mu.Lock()
	if time.Since(cs.lastHealthCheck) < cs.checkInterval {
		cs.mu.Unlock()
		return
	}
	cs.lastHealthCheck = time.Now()
	cs.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cs.client.Ping(ctx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Get retrieves a raw value. ErrMiss on absent keys, ErrUnavailable when
// the breaker is open.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	if !cs.available() {
		return "", ErrUnavailable
	}
	val, err := cs.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		cs.recordFailure()
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	cs.recordSuccess()
	return val, nil
}

// Set stores a raw value with the given TTL.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !cs.available() {
		return ErrUnavailable
	}
	if err := cs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	cs.recordSuccess()
	return nil
}

// GetJSON retrieves and unmarshals a cached value into dest.
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := cs.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals and stores a value with the given TTL.
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	return cs.Set(ctx, key, data, ttl)
}

// Delete removes one key.
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	if !cs.available() {
		return ErrUnavailable
	}
	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	cs.recordSuccess()
	return nil
}

// DeletePattern removes every key matching the glob pattern using SCAN so
// a large keyspace is never blocked by KEYS.
func (cs *CacheService) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if !cs.available() {
		return 0, ErrUnavailable
	}

	var deleted int
	iter := cs.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := cs.client.Del(ctx, iter.Val()).Err(); err != nil {
			cs.recordFailure()
			return deleted, fmt.Errorf("cache delete pattern %s: %w", pattern, err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		cs.recordFailure()
		return deleted, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	cs.recordSuccess()
	return deleted, nil
}

// Ping verifies connectivity for health endpoints.
func (cs *CacheService) Ping(ctx context.Context) error {
	if cs.client == nil {
		return ErrUnavailable
	}
	return cs.client.Ping(ctx).Err()
}

// Close shuts down the client.
func (cs *CacheService) Close() error {
	if cs.client == nil {
		return nil
	}
	return cs.client.Close()
}

// Stats is a snapshot for the cache status endpoint.
type Stats struct {
	Enabled      bool `json:"enabled"`
	Healthy      bool `json:"healthy"`
	FailureCount int  `json:"failure_count"`
}

// GetStats returns the current breaker state.
func (cs *CacheService) GetStats() Stats {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return Stats{Enabled: cs.enabled, Healthy: cs.healthy, FailureCount: cs.failureCount}
}
