package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"ai-sentinel/internal/platform/observability"
)

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status       string                      `json:"status"`
	DetectorMode string                      `json:"detectorMode"`
	Endpoint     string                      `json:"endpoint,omitempty"`
	Uptime       string                      `json:"uptime"`
	Streams      int                         `json:"streams"`
	Memory       *MemoryStatus               `json:"memory,omitempty"`
	Metrics      []observability.MetricPoint `json:"metrics,omitempty"`
}

// MemoryStatus reports host memory usage.
type MemoryStatus struct {
	TotalMB     uint64  `json:"totalMb"`
	UsedMB      uint64  `json:"usedMb"`
	UsedPercent float64 `json:"usedPercent"`
}

// HealthService reports liveness and a few runtime facts.
type HealthService struct {
	mode     string
	endpoint string
	started  time.Time
	streams  func() int
}

// NewHealthService builds the health endpoint. streams may be nil.
func NewHealthService(mode, endpoint string, streams func() int) *HealthService {
	return &HealthService{mode: mode, endpoint: endpoint, started: time.Now(), streams: streams}
}

func (s *HealthService) Register(router *gin.RouterGroup) {
	router.GET("/health", s.handleHealth)
}

func (s *HealthService) handleHealth(c *gin.Context) {
	status := HealthStatus{
		Status:       "ok",
		DetectorMode: s.mode,
		Endpoint:     s.endpoint,
		Uptime:       time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.streams != nil {
		status.Streams = s.streams()
	}
	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
		status.Memory = &MemoryStatus{
			TotalMB:     vm.Total / 1024 / 1024,
			UsedMB:      vm.Used / 1024 / 1024,
			UsedPercent: vm.UsedPercent,
		}
	}
	if observability.Enabled() {
		status.Metrics = observability.Snapshot()
	}
	RespondSuccess(c, http.StatusOK, status, "")
}
