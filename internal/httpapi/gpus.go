package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type gpuView struct {
	Device int    `json:"device"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Busy   bool   `json:"busy"`
	Port   int    `json:"port"`
}

type gpusResponse struct {
	MultiGPUEnabled bool      `json:"multi_gpu_enabled"`
	GpuCount        int       `json:"gpu_count"`
	Gpus            []gpuView `json:"gpus"`
}

func (s *Server) handleGpus(c *gin.Context) {
	slots := s.Scheduler.Slots()
	views := make([]gpuView, len(slots))
	for i, slot := range slots {
		views[i] = gpuView{
			Device: slot.Device,
			Name:   slot.DisplayName,
			Weight: slot.Weight,
			Busy:   slot.Busy,
			Port:   slot.Port,
		}
	}

	c.JSON(http.StatusOK, gpusResponse{
		MultiGPUEnabled: s.Scheduler.MultiGPUEnabled(),
		GpuCount:        len(slots),
		Gpus:            views,
	})
}
