package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/pos"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	accounts  *config.AccountConfig
	txLogger  pos.TransactionLogger
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Gateways    map[string]*GatewayHealth `json:"gateways"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// GatewayHealth represents a registered bank gateway
type GatewayHealth struct {
	Status     string `json:"status"`
	Registered bool   `json:"registered"`
	LastCheck  string `json:"last_check"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	Disk       *DiskHealth   `json:"disk"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	TotalAlloc   string  `json:"total_alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskHealth represents disk usage
type DiskHealth struct {
	Available    string  `json:"available"`
	Used         string  `json:"used"`
	Total        string  `json:"total"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	LastCheck   string `json:"last_check"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(accounts *config.AccountConfig, txLogger pos.TransactionLogger) *HealthHandler {
	return &HealthHandler{
		accounts:  accounts,
		txLogger:  txLogger,
		startTime: time.Now(),
	}
}

// CheckHealth performs comprehensive health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: getEnvironment(),
		Gateways:    h.checkGatewaysHealth(),
		System:      h.checkSystemHealth(),
		Services:    h.checkServicesHealth(),
	}

	health.Status = h.determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkGatewaysHealth checks registered bank gateways
func (h *HealthHandler) checkGatewaysHealth() map[string]*GatewayHealth {
	gateways := make(map[string]*GatewayHealth)

	for _, bank := range pos.DefaultRegistry.Banks() {
		gateways[bank] = &GatewayHealth{
			Status:     "healthy",
			Registered: true,
			LastCheck:  time.Now().UTC().Format(time.RFC3339),
		}
	}

	return gateways
}

// checkSystemHealth checks system resource health
func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			TotalAlloc:   formatBytes(memStats.TotalAlloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: calculateMemoryUsagePercent(memStats),
		},
		Disk:       h.getDiskUsage(),
		GoRoutines: runtime.NumGoroutine(),
	}
}

// checkServicesHealth checks individual service health
func (h *HealthHandler) checkServicesHealth() map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)
	now := time.Now().UTC().Format(time.RFC3339)

	services["account_config"] = &ServiceHealth{
		LastCheck: now,
	}
	if h.accounts != nil {
		if _, err := h.accounts.GetStats(); err != nil {
			services["account_config"].Status = "degraded"
			services["account_config"].Healthy = true
			services["account_config"].Error = err.Error()
		} else {
			services["account_config"].Status = "healthy"
			services["account_config"].Healthy = true
			services["account_config"].Description = "Merchant account configuration store"
		}
	} else {
		services["account_config"].Status = "unhealthy"
		services["account_config"].Healthy = false
		services["account_config"].Error = "Account config service not initialized"
	}

	services["transaction_logger"] = &ServiceHealth{
		LastCheck: now,
	}
	if h.txLogger != nil {
		services["transaction_logger"].Status = "healthy"
		services["transaction_logger"].Healthy = true
		services["transaction_logger"].Description = "Transaction logging to OpenSearch"
	} else {
		services["transaction_logger"].Status = "not_configured"
		services["transaction_logger"].Healthy = false
		services["transaction_logger"].Description = "OpenSearch logging not configured"
	}

	return services
}

// determineOverallStatus determines overall system status
func (h *HealthHandler) determineOverallStatus(health *HealthStatus) string {
	if len(health.Gateways) == 0 {
		return "unhealthy"
	}

	if service, exists := health.Services["account_config"]; exists && !service.Healthy {
		return "unhealthy"
	}

	if health.System != nil {
		if health.System.Memory.UsagePercent > 90 {
			return "degraded"
		}
		if health.System.Disk != nil && health.System.Disk.UsagePercent > 90 {
			return "degraded"
		}
	}

	return "healthy"
}

// Helper functions

func getEnvironment() string {
	if env := config.GetEnv("ENVIRONMENT", ""); env != "" {
		return env
	}
	if env := config.GetEnv("ENV", ""); env != "" {
		return env
	}
	return "development"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func calculateMemoryUsagePercent(memStats runtime.MemStats) float64 {
	return (float64(memStats.Alloc) / float64(memStats.Sys)) * 100
}

func (h *HealthHandler) getDiskUsage() *DiskHealth {
	var stat syscall.Statfs_t
	wd := "/"

	disk := &DiskHealth{
		Status: "unknown",
	}

	if err := syscall.Statfs(wd, &stat); err != nil {
		disk.Status = "error"
		return disk
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - (stat.Bfree * uint64(stat.Bsize))

	disk.Available = formatBytes(available)
	disk.Total = formatBytes(total)
	disk.Used = formatBytes(used)
	disk.UsagePercent = (float64(used) / float64(total)) * 100

	if disk.UsagePercent > 90 {
		disk.Status = "critical"
	} else if disk.UsagePercent > 80 {
		disk.Status = "warning"
	} else {
		disk.Status = "healthy"
	}

	return disk
}
