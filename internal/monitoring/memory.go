package monitoring

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryStats is one sampled snapshot of runtime memory state
type MemoryStats struct {
	Alloc         uint64    `json:"alloc_bytes"`
	TotalAlloc    uint64    `json:"total_alloc_bytes"`
	Sys           uint64    `json:"sys_bytes"`
	Mallocs       uint64    `json:"mallocs"`
	Frees         uint64    `json:"frees"`
	HeapAlloc     uint64    `json:"heap_alloc_bytes"`
	HeapSys       uint64    `json:"heap_sys_bytes"`
	HeapInuse     uint64    `json:"heap_inuse_bytes"`
	HeapObjects   uint64    `json:"heap_objects"`
	GCCPUFraction float64   `json:"gc_cpu_fraction"`
	NumGC         uint32    `json:"num_gc"`
	NumGoroutine  int       `json:"num_goroutine"`
	Timestamp     time.Time `json:"timestamp"`
}

// MemoryMonitor samples runtime memory usage on an interval. Training holds
// the full corpus and every tree in memory at once, so the monitor also
// forces a collection when the heap crosses the configured threshold.
type MemoryMonitor struct {
	stats       MemoryStats
	history     []MemoryStats
	maxHistory  int
	interval    time.Duration
	stopChannel chan struct{}
	gcThreshold uint64
	logger      *Logger
	mutex       sync.RWMutex
}

// NewMemoryMonitor samples runtime memory every interval and forces a GC
// when the heap crosses gcThreshold bytes.
func NewMemoryMonitor(interval time.Duration, gcThreshold uint64, logger *Logger) *MemoryMonitor {
	return &MemoryMonitor{
		history:     make([]MemoryStats, 0),
		maxHistory:  100,
		interval:    interval,
		stopChannel: make(chan struct{}),
		gcThreshold: gcThreshold,
		logger:      logger,
	}
}

// Start launches the sampling loop
func (mm *MemoryMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mm.sample()

			case <-mm.stopChannel:
				return
			}
		}
	}()
}

// Stop halts the sampling loop
func (mm *MemoryMonitor) Stop() {
	close(mm.stopChannel)
}

// sample takes one runtime snapshot and triggers a collection if the heap
// is past the threshold.
func (mm *MemoryMonitor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snapshot := MemoryStats{
		Alloc:         ms.Alloc,
		TotalAlloc:    ms.TotalAlloc,
		Sys:           ms.Sys,
		Mallocs:       ms.Mallocs,
		Frees:         ms.Frees,
		HeapAlloc:     ms.HeapAlloc,
		HeapSys:       ms.HeapSys,
		HeapInuse:     ms.HeapInuse,
		HeapObjects:   ms.HeapObjects,
		GCCPUFraction: ms.GCCPUFraction,
		NumGC:         ms.NumGC,
		NumGoroutine:  runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}

	mm.mutex.Lock()
	mm.stats = snapshot
	mm.history = append(mm.history, snapshot)
	if len(mm.history) > mm.maxHistory {
		mm.history = mm.history[1:]
	}
	mm.mutex.Unlock()

	if ms.HeapAlloc > mm.gcThreshold {
		start := time.Now()
		runtime.GC()

		mm.logger.SystemLogger("manual_gc", fmt.Sprintf(
			"heap:%dMB threshold:%dMB took:%dms",
			ms.HeapAlloc/(1024*1024),
			mm.gcThreshold/(1024*1024),
			time.Since(start).Milliseconds(),
		))
	}
}

// HeapUtilization reports heap in-use as a fraction of heap obtained from
// the OS, for alert rule evaluation.
func (mm *MemoryMonitor) HeapUtilization() float64 {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	if mm.stats.HeapSys == 0 {
		return 0
	}
	return float64(mm.stats.HeapInuse) / float64(mm.stats.HeapSys)
}

// GetStats snapshots the latest memory sample for the stats endpoint
func (mm *MemoryMonitor) GetStats() map[string]interface{} {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	heapUtilization := float64(0)
	if mm.stats.HeapSys > 0 {
		heapUtilization = float64(mm.stats.HeapInuse) / float64(mm.stats.HeapSys)
	}

	// Allocation rate over the retained history window
	mallocRate := float64(0)
	if len(mm.history) >= 2 {
		window := mm.history[len(mm.history)-1].Timestamp.Sub(mm.history[0].Timestamp).Seconds()
		if window > 0 {
			mallocRate = float64(mm.stats.Mallocs-mm.history[0].Mallocs) / window
		}
	}

	return map[string]interface{}{
		"alloc_mb":            mm.stats.Alloc / (1024 * 1024),
		"total_alloc_mb":      mm.stats.TotalAlloc / (1024 * 1024),
		"sys_mb":              mm.stats.Sys / (1024 * 1024),
		"heap_alloc_mb":       mm.stats.HeapAlloc / (1024 * 1024),
		"heap_sys_mb":         mm.stats.HeapSys / (1024 * 1024),
		"heap_objects":        mm.stats.HeapObjects,
		"heap_utilization":    heapUtilization,
		"malloc_rate_per_sec": mallocRate,
		"gc_cpu_fraction":     mm.stats.GCCPUFraction,
		"num_gc":              mm.stats.NumGC,
		"num_goroutine":       mm.stats.NumGoroutine,
		"gc_threshold_mb":     mm.gcThreshold / (1024 * 1024),
	}
}
