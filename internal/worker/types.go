package worker

import (
	"context"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/models"
)

// Workspace file names.
const (
	ScenesDir    = "scenes"
	SubtitleFile = "subs.srt"
	ManifestFile = "concat.txt"
	JoinedFile   = "joined.mp4"
	FinalFile    = "final.mp4"
)

// Progress milestones of a render.
const (
	progressSceneBase  = 10
	progressSceneSpan  = 80
	progressSceneLimit = 95
)

// Loop states reported by State.
const (
	StateIdle     = "idle"
	StateBusy     = "busy"
	StateStopping = "stopping"
)

type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

type Uploader interface {
	Upload(ctx context.Context, localPath, requestID string) (*models.RenderResult, error)
}

type ProgressReporter interface {
	ReportProgress(ctx context.Context, jobID string, percent int)
}

// VideoProcessor turns a payload into a final artifact inside the workspace.
type VideoProcessor interface {
	Render(ctx context.Context, jobID string, payload *models.RenderPayload, ws *Workspace, started time.Time) (string, error)
}

type JobHandler interface {
	Handle(ctx context.Context, job *models.RenderJob) error
}
