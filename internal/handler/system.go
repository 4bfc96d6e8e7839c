package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"aiaxstock/pkg/response"
)

// SessionCounter reports how many sessions are live.
type SessionCounter interface {
	ActiveCount(ctx context.Context) (int, error)
}

// SystemHandler reports process and store statistics to Owners.
type SystemHandler struct {
	store     StatsProvider
	sessions  SessionCounter
	storeType string
	cacheType string
	startTime time.Time
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(store StatsProvider, sessions SessionCounter, storeType, cacheType string) *SystemHandler {
	return &SystemHandler{
		store:     store,
		sessions:  sessions,
		storeType: storeType,
		cacheType: cacheType,
		startTime: time.Now(),
	}
}

// Stats handles GET /api/v1/system/stats
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	cacheStats := map[string]interface{}{"type": h.cacheType}
	if n, err := h.sessions.ActiveCount(ctx); err != nil {
		cacheStats["status"] = "error"
		cacheStats["error"] = err.Error()
	} else {
		cacheStats["status"] = "connected"
		cacheStats["active_sessions"] = n
	}
	stats["cache"] = cacheStats

	storeStats, err := h.store.GetStats(ctx)
	if err == nil {
		storeStats["status"] = "connected"
		stats["store"] = storeStats
	} else {
		stats["store"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
