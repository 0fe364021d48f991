package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/ffmpeg"
	"github.com/amankumarsingh77/render-worker/internal/gateway"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs/repository"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs/usecase"
	"github.com/amankumarsingh77/render-worker/internal/server"
	"github.com/amankumarsingh77/render-worker/internal/worker"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/amankumarsingh77/render-worker/pkg/utils"
	"github.com/google/uuid"
)

func main() {
	log.Println("Starting render worker")
	configFile := os.Getenv("CONFIG_PATH")
	if configFile == "" {
		configFile = "config.yml"
	}
	cfgFile, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}
	if cfg.Worker.ID == "" {
		cfg.Worker.ID = newWorkerID(time.Now())
	}

	apiLogger := logger.NewApiLogger(cfg)
	apiLogger.InitLogger()
	appLogger := apiLogger.With("worker_id", cfg.Worker.ID)
	defer appLogger.Sync()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s, Queue: %s, Storage: %s",
		cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode, cfg.Queue.Driver, cfg.Storage.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := ffmpeg.NewRunner(cfg.Media.FFmpegBin)
	version, err := ffmpeg.Probe(ctx, cfg.Media.FFmpegBin, runner)
	if err != nil {
		appLogger.Fatalf("ffmpeg unavailable: %v", err)
	}
	appLogger.Infof("using %s", version)

	if cfg.Worker.ReconcileWorkspaces {
		removed, err := worker.ReconcileWorkspaces(cfg.Worker.WorkspaceRoot, cfg.Worker.MaxJobRuntime, time.Now())
		if err != nil {
			appLogger.Warnf("workspace reconciliation: %v", err)
		}
		for _, dir := range removed {
			appLogger.Infof("removed stale workspace %s", dir)
		}
	}

	jobsRepo, closer, err := repository.NewQueueRepository(cfg)
	if err != nil {
		appLogger.Fatalf("could not open queue: %v", err)
	}
	defer closer.Close()
	appLogger.Infof("%s queue connected", cfg.Queue.Driver)

	storageRepo, err := repository.NewStorageRepository(ctx, cfg)
	if err != nil {
		appLogger.Fatalf("could not create storage client: %v", err)
	}

	clock := utils.NewRealClock()
	fetcher := gateway.NewFetcher(&http.Client{}, cfg.Fetch.Timeout, cfg.Fetch.Retries, clock, appLogger)
	uploader := gateway.NewUploader(storageRepo, cfg.Storage.Bucket)
	lifecycle := usecase.NewRenderJobsUseCase(cfg, jobsRepo, clock, appLogger)
	processor := worker.NewVideoProcessor(cfg, runner, fetcher, lifecycle, clock, appLogger)
	handler := worker.NewJobHandler(cfg, lifecycle, processor, uploader, clock, appLogger)
	w := worker.NewWorker(cfg, appLogger, lifecycle, handler, clock)

	if cfg.Server.Enabled {
		s := server.NewServer(cfg, w, appLogger)
		if err := s.Start(); err != nil {
			appLogger.Fatalf("could not start server: %v", err)
		}
		defer func() {
			if err := s.Shutdown(); err != nil {
				appLogger.Warnf("server shutdown: %v", err)
			}
		}()
	}

	// The job in flight always runs to completion.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		appLogger.Infof("received %s, finishing current job", sig)
		w.Stop()
	}()

	if err := w.Run(ctx); err != nil {
		appLogger.Errorf("worker exited: %v", err)
	}
}

func newWorkerID(now time.Time) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("worker_%s_%d", short, now.UnixMilli())
}
