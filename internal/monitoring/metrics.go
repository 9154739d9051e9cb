package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates the service's runtime counters. Plain counters are
// updated atomically; keyed maps take their own lock.
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	AnalysisCount       int64
	AnomalyCount        int64
	DegradedCount       int64
	TrainingCount       int64
	ChainFetches        int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// Response time samples for percentile reporting
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	// Requests by status code
	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	// Circuit breaker transitions
	CircuitBreakerOpens  int64
	CircuitBreakerCloses int64

	// Outbound API bookkeeping
	ExternalAPIRequests   map[string]int64
	ExternalAPIErrorCount map[string]int64
	ExternalAPIMutex      sync.RWMutex

	// Rate limiter outcomes
	RateLimitIPBlocks       int64
	RateLimitRedisErrors    int64
	RateLimitFallbackCount  int64
	RateLimitEndpointBlocks map[string]int64
	RateLimitMutex          sync.RWMutex
}

// NewMetrics returns a zeroed collector stamped with the start time.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:               time.Now(),
		ResponseTimes:           make([]time.Duration, 0, 1000),
		RequestCountByStatus:    make(map[int]int64),
		ExternalAPIRequests:     make(map[string]int64),
		ExternalAPIErrorCount:   make(map[string]int64),
		RateLimitEndpointBlocks: make(map[string]int64),
	}
}

// IncrementRequest counts one handled request.
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError counts a request that ended in error.
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit counts a response served from cache.
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss counts a request that bypassed the cache.
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordAnalysis records one completed contract analysis
func (m *Metrics) RecordAnalysis(anomalous, degraded bool) {
	atomic.AddInt64(&m.AnalysisCount, 1)
	if anomalous {
		atomic.AddInt64(&m.AnomalyCount, 1)
	}
	if degraded {
		atomic.AddInt64(&m.DegradedCount, 1)
	}
}

// IncrementTraining increments the completed training run count
func (m *Metrics) IncrementTraining() {
	atomic.AddInt64(&m.TrainingCount, 1)
}

// IncrementChainFetch increments the on-chain bytecode fetch count
func (m *Metrics) IncrementChainFetch() {
	atomic.AddInt64(&m.ChainFetches, 1)
}

// RecordResponseTime folds duration into the running average and appends it
// to the rolling sample window the percentiles are computed from.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	atomic.StoreInt64(&m.AverageResponseTime, (current+duration.Nanoseconds())/2)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus tallies the response status code.
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// IncrementCircuitBreakerOpen counts a breaker opening.
func (m *Metrics) IncrementCircuitBreakerOpen() {
	atomic.AddInt64(&m.CircuitBreakerOpens, 1)
}

// IncrementCircuitBreakerClose counts a breaker closing again.
func (m *Metrics) IncrementCircuitBreakerClose() {
	atomic.AddInt64(&m.CircuitBreakerCloses, 1)
}

// RecordExternalAPIRequest records one outbound call and its outcome
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.ExternalAPIMutex.Lock()
	defer m.ExternalAPIMutex.Unlock()

	m.ExternalAPIRequests[apiName]++
	if !success {
		m.ExternalAPIErrorCount[apiName]++
	}
}

// ErrorRate returns the percentage of requests that ended in error
func (m *Metrics) ErrorRate() float64 {
	requests := atomic.LoadInt64(&m.RequestCount)
	if requests == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.ErrorCount)) / float64(requests) * 100
}

// DegradedRate returns the percentage of analyses served in degraded mode.
// A rising rate means live traffic no longer matches the fitted schema and
// the model needs retraining.
func (m *Metrics) DegradedRate() float64 {
	analyses := atomic.LoadInt64(&m.AnalysisCount)
	if analyses == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.DegradedCount)) / float64(analyses) * 100
}

// GetPercentileResponseTime calculates percentile response time over the
// current sample window.
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	samples := append([]time.Duration(nil), m.ResponseTimes...)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i] < samples[j]
	})

	idx := int(float64(len(samples)-1) * percentile / 100.0)
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	out := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		out[code] = count
	}
	return out
}

// GetExternalAPIStats returns per-API request and error counts
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	m.ExternalAPIMutex.RLock()
	defer m.ExternalAPIMutex.RUnlock()

	out := make(map[string]interface{}, len(m.ExternalAPIRequests))
	for api, requests := range m.ExternalAPIRequests {
		failed := m.ExternalAPIErrorCount[api]
		rate := float64(0)
		if requests > 0 {
			rate = float64(failed) / float64(requests) * 100
		}

		out[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     failed,
			"error_rate": rate,
		}
	}
	return out
}

// GetStats snapshots every counter for the stats endpoint.
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	analyses := atomic.LoadInt64(&m.AnalysisCount)
	anomalies := atomic.LoadInt64(&m.AnomalyCount)
	degraded := atomic.LoadInt64(&m.DegradedCount)
	trainings := atomic.LoadInt64(&m.TrainingCount)
	chainFetches := atomic.LoadInt64(&m.ChainFetches)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if lookups := cacheHits + cacheMisses; lookups > 0 {
		cacheHitRate = float64(cacheHits) / float64(lookups) * 100
	}

	anomalyRate := float64(0)
	if analyses > 0 {
		anomalyRate = float64(anomalies) / float64(analyses) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"analyses_completed":     analyses,
		"anomalies_detected":     anomalies,
		"anomaly_rate_percent":   anomalyRate,
		"degraded_analyses":      degraded,
		"training_runs":          trainings,
		"chain_fetches":          chainFetches,
		"avg_response_time_ms":   float64(avgResponseTime) / 1000000,
		"start_time":             m.StartTime.Format(time.RFC3339),

		// Percentiles and distributions
		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),

		// Circuit breaker transitions
		"circuit_breaker_opens":  atomic.LoadInt64(&m.CircuitBreakerOpens),
		"circuit_breaker_closes": atomic.LoadInt64(&m.CircuitBreakerCloses),

		// Rate limiting
		"rate_limit_stats": m.GetRateLimitStats(),
	}
}

// Ensure Metrics implements cache.Metrics interface
var _ interface {
	IncrementCacheHit()
	IncrementCacheMiss()
} = (*Metrics)(nil)

// Reset zeroes every counter and sample window
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.AnalysisCount, 0)
	atomic.StoreInt64(&m.AnomalyCount, 0)
	atomic.StoreInt64(&m.DegradedCount, 0)
	atomic.StoreInt64(&m.TrainingCount, 0)
	atomic.StoreInt64(&m.ChainFetches, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)
	atomic.StoreInt64(&m.CircuitBreakerOpens, 0)
	atomic.StoreInt64(&m.CircuitBreakerCloses, 0)
	atomic.StoreInt64(&m.RateLimitIPBlocks, 0)
	atomic.StoreInt64(&m.RateLimitRedisErrors, 0)
	atomic.StoreInt64(&m.RateLimitFallbackCount, 0)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.ExternalAPIMutex.Lock()
	m.ExternalAPIRequests = make(map[string]int64)
	m.ExternalAPIErrorCount = make(map[string]int64)
	m.ExternalAPIMutex.Unlock()

	m.RateLimitMutex.Lock()
	m.RateLimitEndpointBlocks = make(map[string]int64)
	m.RateLimitMutex.Unlock()

	m.StartTime = time.Now()
}

// IncrementRateLimitIPBlock counts a request rejected by the IP budget.
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitRedisError counts a failed Redis limiter check.
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback counts a check served by local buckets.
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// IncrementRateLimitEndpoint counts a rejection on one endpoint's budget.
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitEndpointBlocks[endpoint]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	endpointBlocks := make(map[string]int64, len(m.RateLimitEndpointBlocks))
	for k, v := range m.RateLimitEndpointBlocks {
		endpointBlocks[k] = v
	}
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":       atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":    atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count":  atomic.LoadInt64(&m.RateLimitFallbackCount),
		"endpoint_blocks": endpointBlocks,
	}
}
