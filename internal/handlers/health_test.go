package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestHealthMonitor_CheckAndLast(t *testing.T) {
	p := &fakeProber{ok: true}
	m, err := NewHealthMonitor(p, "@every 1h", time.Second)
	if err != nil {
		t.Fatalf("NewHealthMonitor() error: %v", err)
	}
	if !m.Last().CheckedAt.IsZero() {
		t.Error("Last() before any probe should be unchecked")
	}
	if h := m.Check(context.Background()); !h.OK {
		t.Errorf("Check() = %+v", h)
	}
	if !m.Last().OK {
		t.Error("Last() did not record the probe")
	}
}

func TestHealthMonitor_StartProbesImmediately(t *testing.T) {
	p := &fakeProber{ok: true}
	m, err := NewHealthMonitor(p, "@every 1h", time.Second)
	if err != nil {
		t.Fatalf("NewHealthMonitor() error: %v", err)
	}
	m.Start()
	defer m.Stop()
	waitFor(t, "initial probe", func() bool { return p.probes() >= 1 })
}

func TestHealthMonitor_InvalidSchedule(t *testing.T) {
	if _, err := NewHealthMonitor(&fakeProber{}, "every now and then", time.Second); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)
	setupTabs(t, testBackend())
	p := &fakeProber{ok: false}
	m, _ := NewHealthMonitor(p, "@every 1h", time.Second)
	Monitor = m
	defer func() { Monitor = nil }()

	var resp struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Tabs     int    `json:"tabs"`
	}
	w := doRequest(t, "GET", "/api/health?refresh=true", "")
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "degraded" || resp.Database != "connected" {
		t.Errorf("unhealthy backend response = %+v", resp)
	}

	p.mu.Lock()
	p.ok = true
	p.mu.Unlock()
	w = doRequest(t, "GET", "/api/health?refresh=true", "")
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "healthy" || resp.Tabs != 0 {
		t.Errorf("healthy backend response = %+v", resp)
	}
}
