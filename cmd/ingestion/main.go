package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs/repository"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
)

const enqueueTimeout = 10 * time.Second

// Enqueues the payload document at the given path as a queued render job.
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <payload.json>", os.Args[0])
	}
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
	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	defer appLogger.Sync()

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		appLogger.Fatalf("read payload: %v", err)
	}
	payload, err := models.ParsePayload(raw)
	if err != nil {
		appLogger.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(payload.Edited.Scenes) == 0 {
		appLogger.Warnf("payload has no scenes, the job will fail")
	}

	jobsRepo, closer, err := repository.NewQueueRepository(cfg)
	if err != nil {
		appLogger.Fatalf("could not open queue: %v", err)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	job, err := jobsRepo.Enqueue(ctx, json.RawMessage(raw))
	if err != nil {
		appLogger.Fatalf("enqueue: %v", err)
	}
	appLogger.Infof("job %s queued (request %s, %d scenes)", job.ID, payload.ResolveRequestID(job.ID), len(payload.Edited.Scenes))
}
