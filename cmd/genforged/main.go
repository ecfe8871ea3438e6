// Command genforged is the orchestration backend process (spec §4.H):
// it loads ProcessConfig, builds the GPU slot table, starts one worker
// per slot, then serves the HTTP/WebSocket surface until an OS signal
// asks it to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amd-agi/genforge/internal/catalog"
	"github.com/amd-agi/genforge/internal/config"
	"github.com/amd-agi/genforge/internal/configeditor"
	"github.com/amd-agi/genforge/internal/gpuscheduler"
	"github.com/amd-agi/genforge/internal/history"
	"github.com/amd-agi/genforge/internal/httpapi"
	"github.com/amd-agi/genforge/internal/logger/log"
	"github.com/amd-agi/genforge/internal/progressbus"
	"github.com/amd-agi/genforge/internal/sidecar"
	"github.com/amd-agi/genforge/internal/taskcoordinator"
	"github.com/amd-agi/genforge/internal/workersupervisor"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}

	scheduler := buildScheduler(cfg.Gpu)

	supervisor := workersupervisor.New(cfg.WorkerBinary)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := supervisor.Start(ctx, slotSpecs(cfg.Gpu)); err != nil {
		log.Fatalf("start worker supervisor: %v", err)
	}

	bus := progressbus.New()
	coordinator := taskcoordinator.New(scheduler, supervisor, bus)

	catalogReader := catalog.New(cfg.Catalog)

	var store *sidecar.Store
	if cfg.ImagesDir != "" {
		s, err := sidecar.Open(cfg.ImagesDir + "/metadata.db")
		if err != nil {
			log.Warnf("sidecar metadata store unavailable: %v", err)
		} else {
			store = s
			defer store.Close()
		}
	}
	historyReader := history.New(cfg.ImagesDir, store)

	configEditor, err := configeditor.New(cfg.ConfigEditor.DocumentPath, cfg.ConfigEditor.SchemaPath)
	if err != nil {
		log.Warnf("config editor unavailable: %v", err)
		configEditor = nil
	}

	server := httpapi.New(scheduler, coordinator, bus, catalogReader, historyReader, configEditor, cfg.ImagesDir)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HttpPort),
		Handler: server.Router(),
	}

	go func() {
		log.Infof("genforged listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down genforged...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http server forced to shutdown: %v", err)
	}
	supervisor.Shutdown()

	log.Info("genforged exited gracefully")
}

func buildScheduler(gpu config.GpuTableConfig) *gpuscheduler.Scheduler {
	slots := make([]gpuscheduler.Slot, len(gpu.Gpus))
	for i, g := range gpu.Gpus {
		slots[i] = gpuscheduler.Slot{Device: g.Device, DisplayName: g.Name, Weight: g.Weight}
	}
	return gpuscheduler.New(gpu.Enabled, gpu.DistributeEnabled(), slots)
}

func slotSpecs(gpu config.GpuTableConfig) []workersupervisor.SlotSpec {
	specs := make([]workersupervisor.SlotSpec, len(gpu.Gpus))
	for i, g := range gpu.Gpus {
		specs[i] = workersupervisor.SlotSpec{Device: g.Device}
	}
	return specs
}
