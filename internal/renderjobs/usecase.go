package renderjobs

import (
	"context"
	"errors"

	"github.com/amankumarsingh77/render-worker/internal/models"
)

var ErrMissingPayload = errors.New("missing payload (claim returned incomplete row)")

// UseCase owns every state transition of a render job.
type UseCase interface {
	ClaimNext(ctx context.Context) (*models.RenderJob, error)
	LoadPayload(ctx context.Context, job *models.RenderJob) (*models.RenderJob, error)
	MarkStarted(ctx context.Context, job *models.RenderJob) error
	ReportProgress(ctx context.Context, jobID string, percent int)
	Finalize(ctx context.Context, jobID string, outcome Outcome) error
}

// Outcome is the terminal result of a job. Build one with Success or Failure.
type Outcome struct {
	Result  *models.RenderResult
	Message string
}

func Success(result models.RenderResult) Outcome {
	return Outcome{Result: &result}
}

func Failure(message string) Outcome {
	return Outcome{Message: message}
}

func (o Outcome) Succeeded() bool {
	return o.Result != nil
}
