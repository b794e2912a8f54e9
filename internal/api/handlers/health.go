package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger checks liveness of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves liveness and readiness information.
type HealthHandler struct {
	version    string
	db         Pinger
	redis      Pinger
	startedAt  time.Time
	logger     zerolog.Logger
	withSystem bool
}

// NewHealthHandler creates a HealthHandler. redis may be nil when Redis is
// not configured.
func NewHealthHandler(version string, db, redis Pinger, withSystem bool, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		version:    version,
		db:         db,
		redis:      redis,
		startedAt:  time.Now(),
		withSystem: withSystem,
		logger:     logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterRoutes registers the health routes.
func (h *HealthHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
}

// Health returns liveness plus dependency and system status.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database health check failed")
		checks["database"] = gin.H{"status": "down", "error": err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = gin.H{"status": "up"}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("redis health check failed")
			checks["redis"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			checks["redis"] = gin.H{"status": "up"}
		}
	}

	body := gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"checks":  checks,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.withSystem {
		body["system"] = systemInfo()
	}

	c.JSON(status, body)
}

// Ready reports whether the service can take traffic.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// systemInfo collects a best-effort snapshot of host resources. Collection
// failures leave the field out rather than failing the check.
func systemInfo() gin.H {
	info := gin.H{}

	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory"] = gin.H{
			"total":        vm.Total,
			"used":         vm.Used,
			"used_percent": vm.UsedPercent,
		}
	}
	if usage, err := disk.Usage("/"); err == nil {
		info["disk"] = gin.H{
			"total":        usage.Total,
			"used":         usage.Used,
			"used_percent": usage.UsedPercent,
		}
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}
	if uptime, err := host.Uptime(); err == nil {
		info["host_uptime_seconds"] = uptime
	}

	return info
}
