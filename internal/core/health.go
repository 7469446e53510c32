package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status        string   `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64    `json:"uptime_seconds"`
	MQTTConnected bool     `json:"mqtt_connected"`
	Playing       bool     `json:"playing"`
	Position      float64  `json:"position"`
	Ticks         uint64   `json:"ticks"`
	Degraded      []string `json:"degraded,omitempty"`
}

// HealthCheck returns the current health status of the service
func (s *Service) HealthCheck() HealthStatus {
	s.mu.RLock()
	running := s.isRunning
	started := s.started
	degraded := append([]string(nil), s.degraded...)
	engine := s.engine
	s.mu.RUnlock()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(started).Seconds()),
		MQTTConnected: s.emitter.Stats().Connected,
		Playing:       s.clock.IsPlaying(),
		Position:      s.clock.Position(),
		Degraded:      degraded,
	}
	if engine != nil {
		status.Ticks = engine.TickCount()
	}

	if !running {
		status.Status = "unhealthy"
	} else if !status.MQTTConnected || len(degraded) > 0 {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health (simple liveness check).
// Returns 200 if the service process is alive.
func (s *Service) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles /readiness (detailed readiness check).
// Returns 200 only if the service is ready to serve overlay data.
func (s *Service) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := s.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// MetricsHandler handles /metrics (plain text counters).
func (s *Service) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	health := s.HealthCheck()
	stats := s.emitter.Stats()

	fmt.Fprintf(w, "roisync_uptime_seconds{instance=%q} %d\n", s.cfg.InstanceID, health.UptimeSeconds)
	fmt.Fprintf(w, "roisync_ticks_total{instance=%q} %d\n", s.cfg.InstanceID, health.Ticks)
	fmt.Fprintf(w, "roisync_playback_position_seconds{instance=%q} %f\n", s.cfg.InstanceID, health.Position)
	fmt.Fprintf(w, "roisync_mqtt_errors_total{instance=%q} %d\n", s.cfg.InstanceID, stats.Errors)
	for topic, count := range stats.Published {
		fmt.Fprintf(w, "roisync_mqtt_published_total{instance=%q,topic=%q} %d\n", s.cfg.InstanceID, topic, count)
	}
}

// StartHealthServer starts the HTTP health check server on the given port.
// This runs in a separate goroutine and does not block.
func (s *Service) StartHealthServer(port string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/readiness", s.ReadinessHandler)
	mux.HandleFunc("/metrics", s.MetricsHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}
