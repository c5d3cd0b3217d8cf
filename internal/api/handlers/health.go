package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/beobridge/halo-bridge-go/pkg/utils"
	"github.com/beobridge/halo-bridge-go/pkg/version"
)

// Health reports liveness plus the state of both upstream links.
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	haStatus := "healthy"
	if err := h.ha.CheckConnection(ctx); err != nil {
		haStatus = "unreachable"
	}

	haloStatus := "disconnected"
	if h.client.Connected() {
		haloStatus = "connected"
	}

	utils.SendSuccess(c, gin.H{
		"status":         "healthy",
		"version":        version.GetVersion(),
		"uptime":         time.Since(h.startTime).String(),
		"halo":           haloStatus,
		"home_assistant": haStatus,
	})
}

// Status adds host resource usage for diagnostics.
func (h *Handlers) Status(c *gin.Context) {
	status := gin.H{
		"build":          version.GetBuildInfo(),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"halo_connected": h.client.Connected(),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		status["cpu_percent"] = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
	}
	if usage, err := disk.Usage("/"); err == nil {
		status["disk_percent"] = usage.UsedPercent
	}

	utils.SendSuccess(c, status)
}
