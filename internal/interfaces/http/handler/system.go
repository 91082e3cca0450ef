package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/fundflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// healthCheckTimeout bounds each dependency probe
const healthCheckTimeout = 2 * time.Second

// HealthChecker probes one dependency
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

// Ping calls f
func (f HealthCheckFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	checks    map[string]HealthChecker
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthChecker),
	}
}

// AddCheck registers a dependency probed by the health endpoint
func (h *SystemHandler) AddCheck(name string, check HealthChecker) *SystemHandler {
	h.checks[name] = check
	return h
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name" example:"fundflow"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks"`
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Health godoc
// @ID           getSystemHealth
// @Summary      Check service health
// @Description  Probes every registered dependency; any failure answers 503
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
