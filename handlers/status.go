package handlers

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"chatrelay/config"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
)

// AppStatusHandler handles GET /admin/app-status, a diagnostic surface kept
// from the teacher's AppStatusHandler and re-scoped to this system's
// configuration.
func AppStatusHandler(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var gcStats debug.GCStats
	debug.ReadGCStats(&gcStats)

	lastGC := gcStats.LastGC
	if lastGC.IsZero() && memStats.LastGC != 0 {
		lastGC = time.Unix(0, int64(memStats.LastGC))
	}

	settings := config.GetSettings()
	proxyMode, err := Proxies.IsModeEnabled()
	if err != nil {
		Log.Warnf("handlers: could not read proxy mode for app-status: %v", err)
	}

	views, err := Credentials.List()
	if err != nil {
		Log.Warnf("handlers: could not count credentials for app-status: %v", err)
	}

	status := models.AppStatusInfo{
		StartTime:           AppStartTime,
		Uptime:              time.Since(AppStartTime).Round(time.Second).String(),
		GoVersion:           runtime.Version(),
		NumGoroutines:       runtime.NumGoroutine(),
		MemAllocatedMB:      float64(memStats.Alloc) / 1024 / 1024,
		MemTotalAllocatedMB: float64(memStats.TotalAlloc) / 1024 / 1024,
		MemSysMB:            float64(memStats.Sys) / 1024 / 1024,
		NumGC:               memStats.NumGC,
		LastGC:              lastGC,
		UpstreamBaseURL:     config.UpstreamBaseURL,
		UpstreamTimeoutMs:   settings.UpstreamTimeout.Milliseconds(),
		ClientTimeoutMs:     settings.ClientSocketTimeout.Milliseconds(),
		Port:                settings.Port,
		LogLevel:            settings.LogLevel,
		GinMode:             settings.GinMode,
		AdminAuthConfigured: settings.AdminPassword != "",
		OutboundProxyMode:   proxyMode,
		CredentialCount:     len(views),
	}
	c.JSON(http.StatusOK, status)
}
