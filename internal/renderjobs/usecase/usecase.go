package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/amankumarsingh77/render-worker/pkg/utils"
	"github.com/pkg/errors"
)

type progressMark struct {
	value int
	at    time.Time
}

type renderJobsUC struct {
	cfg                 *config.Config
	repo                renderjobs.Repository
	logger              logger.Logger
	clock               utils.Clock
	workerID            string
	minProgressInterval time.Duration
	caps                *Capabilities

	mu       sync.Mutex
	progress map[string]progressMark
}

func NewRenderJobsUseCase(
	cfg *config.Config,
	repo renderjobs.Repository,
	clock utils.Clock,
	log logger.Logger,
) renderjobs.UseCase {
	return &renderJobsUC{
		cfg:                 cfg,
		repo:                repo,
		logger:              log,
		clock:               clock,
		workerID:            cfg.Worker.ID,
		minProgressInterval: cfg.Worker.MinProgressInterval,
		caps:                NewCapabilities(),
		progress:            make(map[string]progressMark),
	}
}

// ClaimNext returns nil, nil when the queue is empty.
func (u *renderJobsUC) ClaimNext(ctx context.Context) (*models.RenderJob, error) {
	job, err := u.repo.Claim(ctx, u.workerID)
	if err != nil {
		u.logger.Warnf("claim failed: %v", err)
		return nil, errors.Wrap(err, "renderJobsUC.ClaimNext")
	}
	if job == nil || job.ID == "" {
		return nil, nil
	}
	u.logger.Infof("claimed job %s", job.ID)
	return job, nil
}

// LoadPayload re-reads the row when the claim came back without a payload.
func (u *renderJobsUC) LoadPayload(ctx context.Context, job *models.RenderJob) (*models.RenderJob, error) {
	if job.HasPayload() {
		return job, nil
	}
	u.logger.Warnf("job %s claimed without payload, re-reading row", job.ID)
	fresh, err := u.repo.GetByID(ctx, job.ID)
	if err != nil {
		return nil, errors.Wrap(err, "renderJobsUC.LoadPayload")
	}
	if !fresh.HasPayload() {
		return nil, renderjobs.ErrMissingPayload
	}
	return fresh, nil
}

func (u *renderJobsUC) MarkStarted(ctx context.Context, job *models.RenderJob) error {
	patch := models.JobPatch{
		models.ColumnStatus:       models.JobStatus(u.cfg.Statuses.Processing),
		models.ColumnStartedAt:    u.clock.Now(),
		models.ColumnWorkerID:     u.workerID,
		models.ColumnProgress:     1,
		models.ColumnFinishedAt:   nil,
		models.ColumnCompletedAt:  nil,
		models.ColumnErrorMessage: nil,
		models.ColumnResult:       nil,
	}
	if err := u.safeUpdate(ctx, job.ID, patch); err != nil {
		return errors.Wrap(err, "renderJobsUC.MarkStarted")
	}
	u.mu.Lock()
	u.progress[job.ID] = progressMark{value: 1}
	u.mu.Unlock()
	return nil
}

// ReportProgress is best effort. Values are clamped to [0,100], never go
// backwards, and are written at most once per minimum interval.
func (u *renderJobsUC) ReportProgress(ctx context.Context, jobID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	now := u.clock.Now()

	u.mu.Lock()
	last, seen := u.progress[jobID]
	if seen && percent <= last.value {
		u.mu.Unlock()
		return
	}
	if seen && !last.at.IsZero() && now.Sub(last.at) < u.minProgressInterval {
		u.mu.Unlock()
		return
	}
	u.progress[jobID] = progressMark{value: percent, at: now}
	u.mu.Unlock()

	if err := u.safeUpdate(ctx, jobID, models.JobPatch{models.ColumnProgress: percent}); err != nil {
		u.logger.Warnf("progress write for job %s failed: %v", jobID, err)
	}
}

// Finalize writes the terminal state of a job.
func (u *renderJobsUC) Finalize(ctx context.Context, jobID string, outcome renderjobs.Outcome) error {
	defer func() {
		u.mu.Lock()
		delete(u.progress, jobID)
		u.mu.Unlock()
	}()

	now := u.clock.Now()
	var patch models.JobPatch
	if outcome.Succeeded() {
		patch = models.JobPatch{
			models.ColumnStatus:       models.JobStatus(u.cfg.Statuses.Completed),
			models.ColumnProgress:     100,
			models.ColumnFinishedAt:   now,
			models.ColumnCompletedAt:  now,
			models.ColumnResult:       *outcome.Result,
			models.ColumnErrorMessage: nil,
		}
	} else {
		patch = models.JobPatch{
			models.ColumnStatus:       models.JobStatus(u.cfg.Statuses.Failed),
			models.ColumnProgress:     0,
			models.ColumnFinishedAt:   now,
			models.ColumnErrorMessage: outcome.Message,
			models.ColumnCompletedAt:  nil,
			models.ColumnResult:       nil,
		}
	}
	if err := u.safeUpdate(ctx, jobID, patch); err != nil {
		return errors.Wrap(err, "renderJobsUC.Finalize")
	}
	return nil
}

// safeUpdate writes the patch and, when the table lacks an optional column,
// turns that column off for good and retries without it.
func (u *renderJobsUC) safeUpdate(ctx context.Context, jobID string, patch models.JobPatch) error {
	for {
		write := u.caps.shape(patch, u.clock.Now())
		err := u.repo.UpdateJob(ctx, jobID, write)
		if err == nil {
			return nil
		}
		column, ok := missingColumn(err, write)
		if !ok || !u.caps.disable(column) {
			return err
		}
		u.logger.Warnf("job table has no %s column, dropping it from all further writes: %v", column, err)
	}
}
