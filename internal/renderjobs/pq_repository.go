package renderjobs

import (
	"context"
	"encoding/json"

	"github.com/amankumarsingh77/render-worker/internal/models"
)

// Repository is the job queue. Claim must be atomic: two workers never get
// the same job.
type Repository interface {
	Claim(ctx context.Context, workerID string) (*models.RenderJob, error)
	GetByID(ctx context.Context, jobID string) (*models.RenderJob, error)
	UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) error
	Enqueue(ctx context.Context, payload json.RawMessage) (*models.RenderJob, error)
}
