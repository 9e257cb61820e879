package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/btoaldas/actas-ia/internal/database"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// MQTTStatus reports broker connectivity for the health endpoint.
type MQTTStatus interface {
	IsConnected() bool
}

type HealthHandler struct {
	db            *database.DB
	mqtt          MQTTStatus
	watcherStatus func() string
	version       string
	startTime     time.Time
}

func NewHealthHandler(db *database.DB, mqtt MQTTStatus, watcherStatus func() string, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:            db,
		mqtt:          mqtt,
		watcherStatus: watcherStatus,
		version:       version,
		startTime:     startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Drop watcher check
	if h.watcherStatus != nil {
		checks["drop_watcher"] = h.watcherStatus()
	} else {
		checks["drop_watcher"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
