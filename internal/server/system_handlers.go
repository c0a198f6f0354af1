package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/interstitch/sectorwars-intel/internal/database"
)

// SystemHandlers serves process and database health for operators.
type SystemHandlers struct {
	log     zerolog.Logger
	dataDir string
	dbs     []*database.DB
	started time.Time
}

// NewSystemHandlers creates the system monitoring handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, dbs ...*database.DB) *SystemHandlers {
	h := &SystemHandlers{
		log:     log.With().Str("component", "system_handlers").Logger(),
		dataDir: dataDir,
		started: time.Now(),
	}
	for _, db := range dbs {
		if db != nil {
			h.dbs = append(h.dbs, db)
		}
	}
	return h
}

// HandleSystemStatus reports process health: CPU, memory, goroutines,
// uptime.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		status["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		status["memory_used_percent"] = memStat.UsedPercent
	}

	writeJSON(w, http.StatusOK, status, h.log)
}

// HandleDatabaseStats reports per-database file size and health.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]map[string]interface{}, 0, len(h.dbs))
	for _, db := range h.dbs {
		entry := map[string]interface{}{
			"name":    db.Name(),
			"healthy": db.HealthCheck(r.Context()) == nil,
		}
		if info, err := os.Stat(filepath.Clean(db.Path())); err == nil {
			entry["size_bytes"] = info.Size()
		}
		stats = append(stats, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"databases": stats}, h.log)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
