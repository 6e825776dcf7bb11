package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/database"
)

// HealthMonitor probes the backend on a cron schedule and keeps the last
// result for GET /api/health. It only reports; sessions never consult it.
type HealthMonitor struct {
	prober  connection.Prober
	timeout time.Duration
	cron    *cron.Cron

	mu   sync.RWMutex
	last backend.Health
}

// NewHealthMonitor schedules a probe on a cron schedule such as "@every 30s".
func NewHealthMonitor(p connection.Prober, schedule string, timeout time.Duration) (*HealthMonitor, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	m := &HealthMonitor{prober: p, timeout: timeout, cron: cron.New()}
	if _, err := m.cron.AddFunc(schedule, func() { m.Check(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule health probe %q: %w", schedule, err)
	}
	return m, nil
}

// Start runs one probe immediately and then follows the schedule.
func (m *HealthMonitor) Start() {
	go m.Check(context.Background())
	m.cron.Start()
}

// Stop halts the schedule and waits for a running probe.
func (m *HealthMonitor) Stop() {
	<-m.cron.Stop().Done()
}

// Check probes now and records the result.
func (m *HealthMonitor) Check(ctx context.Context) backend.Health {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	h := m.prober.Probe(ctx)

	m.mu.Lock()
	wasOK := m.last.OK || m.last.CheckedAt.IsZero()
	m.last = h
	m.mu.Unlock()

	if wasOK && !h.OK {
		log.Printf("[api] %s", h)
	} else if !wasOK && h.OK {
		log.Printf("[api] backend recovered: %s", h)
	}
	return h
}

// Last returns the most recent probe result.
func (m *HealthMonitor) Last() backend.Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	var h backend.Health
	if Monitor != nil {
		h = Monitor.Last()
		if r.URL.Query().Get("refresh") == "true" {
			h = Monitor.Check(r.Context())
		}
	}

	status := "healthy"
	if !h.OK {
		status = "degraded"
	}

	tabs := 0
	if Tabs != nil {
		tabs = Tabs.Len()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"backend":        h,
		"backend_status": h.String(),
		"database":       dbStatus,
		"tabs":           tabs,
	})
}
