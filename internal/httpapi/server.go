// Package httpapi is the thin gin routing layer exposing the contracts
// of spec §6; every handler delegates to the GPU scheduler, task
// coordinator, progress bus, or catalog/history readers it is
// constructed with (spec §4.F).
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amd-agi/genforge/internal/catalog"
	"github.com/amd-agi/genforge/internal/configeditor"
	"github.com/amd-agi/genforge/internal/gpuscheduler"
	"github.com/amd-agi/genforge/internal/history"
	"github.com/amd-agi/genforge/internal/httpapi/middleware"
	"github.com/amd-agi/genforge/internal/progressbus"
	"github.com/amd-agi/genforge/internal/taskcoordinator"
)

// Server holds every dependency a handler needs. It has no behavior of
// its own beyond wiring: B/C/D/E/G do the actual work (spec §4.F).
type Server struct {
	Scheduler    *gpuscheduler.Scheduler
	Coordinator  *taskcoordinator.Coordinator
	Bus          *progressbus.Bus
	Catalog      *catalog.Reader
	History      *history.Reader
	ConfigEditor *configeditor.Editor
	ImagesDir    string

	upgrader websocket.Upgrader
}

// New constructs a Server. ConfigEditor may be nil if no schema/document
// pair was configured; the /config/editor endpoints then report a 500.
func New(scheduler *gpuscheduler.Scheduler, coordinator *taskcoordinator.Coordinator, bus *progressbus.Bus, catalogReader *catalog.Reader, historyReader *history.Reader, configEditor *configeditor.Editor, imagesDir string) *Server {
	return &Server{
		Scheduler:    scheduler,
		Coordinator:  coordinator,
		Bus:          bus,
		Catalog:      catalogReader,
		History:      historyReader,
		ConfigEditor: configEditor,
		ImagesDir:    imagesDir,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Router builds the gin engine and registers every route from spec §6.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.RequestLogging())
	engine.Use(middleware.HandleErrors())
	engine.Use(middleware.Cors())

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", s.handleWebSocket)

	engine.GET("/settings", s.handleSettings)
	engine.GET("/gpus", s.handleGpus)
	engine.POST("/generate", s.handleGenerate)
	engine.GET("/status/:taskId", s.handleStatus)
	engine.POST("/stop", s.handleStop)
	engine.GET("/history", s.handleHistory)
	engine.GET("/config/editor", s.handleGetConfigEditor)
	engine.POST("/config/editor", s.handlePostConfigEditor)
	engine.Static("/images", s.ImagesDir)

	return engine
}
