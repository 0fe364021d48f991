package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/metrics"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/amankumarsingh77/render-worker/pkg/utils"
)

type jobHandler struct {
	lifecycle     renderjobs.UseCase
	processor     VideoProcessor
	uploader      Uploader
	clock         utils.Clock
	logger        logger.Logger
	workspaceRoot string
}

func NewJobHandler(
	cfg *config.Config,
	lifecycle renderjobs.UseCase,
	processor VideoProcessor,
	uploader Uploader,
	clock utils.Clock,
	log logger.Logger,
) JobHandler {
	return &jobHandler{
		lifecycle:     lifecycle,
		processor:     processor,
		uploader:      uploader,
		clock:         clock,
		logger:        log,
		workspaceRoot: cfg.Worker.WorkspaceRoot,
	}
}

// Handle runs one claimed job to a terminal state. Content problems end as a
// failed job and a nil return; only infrastructure problems that should slow
// the loop down are returned.
func (h *jobHandler) Handle(ctx context.Context, job *models.RenderJob) error {
	log := h.logger.With("job_id", job.ID)

	full, err := h.lifecycle.LoadPayload(ctx, job)
	if err != nil {
		if errors.Is(err, renderjobs.ErrMissingPayload) {
			log.Errorf("job has no payload, marking as failed")
			h.fail(ctx, log, job.ID, err.Error())
			return nil
		}
		return err
	}

	payload, err := models.ParsePayload(full.Payload)
	if err != nil {
		log.Errorf("payload is not valid JSON: %v", err)
		h.fail(ctx, log, job.ID, fmt.Sprintf("invalid payload: %v", err))
		return nil
	}
	requestID := payload.ResolveRequestID(job.ID)
	log = log.With("request_id", requestID)
	log.Infof("processing job")

	started := h.clock.Now()
	if err := h.lifecycle.MarkStarted(ctx, full); err != nil {
		return err
	}

	ws, err := NewWorkspace(h.workspaceRoot)
	if err != nil {
		h.fail(ctx, log, job.ID, err.Error())
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Warnf("failed to remove workspace %s: %v", ws.Dir, err)
		}
	}()

	result, err := h.render(ctx, job.ID, payload, requestID, ws, started)
	if err != nil {
		log.Errorf("render failed: %v", err)
		h.fail(ctx, log, job.ID, err.Error())
		return nil
	}

	if err := h.lifecycle.Finalize(ctx, job.ID, renderjobs.Success(*result)); err != nil {
		log.Errorf("failed to record completion: %v", err)
		h.fail(ctx, log, job.ID, err.Error())
		return nil
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(models.JobStatusCompleted)).Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(h.clock.Now().Sub(started).Seconds())
	log.Infof("completed job -> %s", result.PublicURL)
	return nil
}

func (h *jobHandler) render(
	ctx context.Context,
	jobID string,
	payload *models.RenderPayload,
	requestID string,
	ws *Workspace,
	started time.Time,
) (*models.RenderResult, error) {
	finalPath, err := h.processor.Render(ctx, jobID, payload, ws, started)
	if err != nil {
		return nil, err
	}
	uploadStart := h.clock.Now()
	result, err := h.uploader.Upload(ctx, finalPath, requestID)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(h.clock.Now().Sub(uploadStart).Seconds())
	return result, nil
}

// fail records a failure. A failed write is only logged: the job has already
// been lost and the loop must keep going.
func (h *jobHandler) fail(ctx context.Context, log logger.Logger, jobID, message string) {
	metrics.JobsProcessedTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
	if err := h.lifecycle.Finalize(ctx, jobID, renderjobs.Failure(message)); err != nil {
		log.Errorf("failed to write error to job: %v", err)
	}
}
