package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/ffmpeg"
	"github.com/amankumarsingh77/render-worker/internal/gateway"
	"github.com/amankumarsingh77/render-worker/internal/metrics"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/amankumarsingh77/render-worker/pkg/utils"
)

type videoProcessor struct {
	runner     ffmpeg.Runner
	fetcher    Fetcher
	progress   ProgressReporter
	clock      utils.Clock
	logger     logger.Logger
	maxRuntime time.Duration
	fontDir    string
	fontName   string
}

func NewVideoProcessor(
	cfg *config.Config,
	runner ffmpeg.Runner,
	fetcher Fetcher,
	progress ProgressReporter,
	clock utils.Clock,
	log logger.Logger,
) VideoProcessor {
	return &videoProcessor{
		runner:     runner,
		fetcher:    fetcher,
		progress:   progress,
		clock:      clock,
		logger:     log,
		maxRuntime: cfg.Worker.MaxJobRuntime,
		fontDir:    cfg.Media.FontDir,
		fontName:   cfg.Media.FontName,
	}
}

// Render builds one segment per scene in payload order, then joins and
// captions them. The runtime budget is checked before every scene.
func (p *videoProcessor) Render(ctx context.Context, jobID string, payload *models.RenderPayload, ws *Workspace, started time.Time) (string, error) {
	scenes := payload.Edited.Scenes
	if len(scenes) == 0 {
		return "", ErrNoScenes
	}
	videos := payload.VideoURLs()
	audios := payload.AudioURLs()

	segments := make([]string, 0, len(scenes))
	for i, scene := range scenes {
		if p.clock.Now().Sub(started) > p.maxRuntime {
			return "", runtimeExceeded(p.maxRuntime)
		}
		stageStart := p.clock.Now()
		segment, err := p.renderScene(ctx, i, scene, videos, audios, ws)
		if err != nil {
			return "", err
		}
		metrics.StageDuration.WithLabelValues("segment").Observe(p.clock.Now().Sub(stageStart).Seconds())
		segments = append(segments, segment)
		p.progress.ReportProgress(ctx, jobID, SceneProgress(i, len(scenes)))
		p.logger.Infof("segment %d/%d ready: %s (%gs)", i+1, len(scenes), sceneID(i, scene), scene.DurationSec.OrDefault())
	}
	if len(segments) == 0 {
		return "", ErrNoSegments
	}
	return p.stitchAndCaption(ctx, segments, payload, ws)
}

func (p *videoProcessor) renderScene(
	ctx context.Context,
	index int,
	scene models.EditedScene,
	videos, audios map[string]string,
	ws *Workspace,
) (string, error) {
	rawID := sceneID(index, scene)
	name := SafeFileName(rawID)
	if name == "" {
		name = fmt.Sprintf("scene_%d", index+1)
	}
	duration := scene.DurationSec.OrDefault()

	videoURL := lookup(videos, rawID, name)
	if videoURL == "" {
		return "", missingVideo(rawID)
	}
	if !gateway.IsRemoteURL(videoURL) {
		return "", invalidVideo(rawID)
	}

	// The index prefix keeps scenes whose ids sanitize to the same name apart.
	base := fmt.Sprintf("%03d-%s", index+1, name)
	videoPath := ws.ScenePath(base + ".mp4")
	if err := p.fetcher.Download(ctx, videoURL, videoPath); err != nil {
		return "", fmt.Errorf("scene %s video: %w", rawID, err)
	}

	audioPath := ws.ScenePath(base + ".mp3")
	if err := p.prepareAudio(ctx, lookup(audios, rawID, name), audioPath, duration); err != nil {
		return "", fmt.Errorf("scene %s audio: %w", rawID, err)
	}

	segmentPath := ws.ScenePath(base + ".seg.mp4")
	cmd, err := ffmpeg.TranscodeSegment(videoPath, audioPath, segmentPath, duration)
	if err != nil {
		return "", err
	}
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return "", err
	}
	return segmentPath, nil
}

// prepareAudio decodes inline audio, downloads remote audio, or synthesizes
// silence for the scene duration when no usable audio is attached.
func (p *videoProcessor) prepareAudio(ctx context.Context, audioURL, dest string, duration float64) error {
	switch {
	case gateway.IsDataAudioURL(audioURL):
		return gateway.WriteDataURL(audioURL, dest)
	case gateway.IsRemoteURL(audioURL):
		return p.fetcher.Download(ctx, audioURL, dest)
	default:
		cmd, err := ffmpeg.SynthesizeSilence(dest, duration)
		if err != nil {
			return err
		}
		_, err = p.runner.Run(ctx, cmd)
		return err
	}
}

// SceneProgress maps finished scene index i of n onto the 10..95 band.
func SceneProgress(i, n int) int {
	if n <= 0 {
		return progressSceneBase
	}
	pct := int(math.Round(float64(i+1)/float64(n)*progressSceneSpan)) + progressSceneBase
	if pct > progressSceneLimit {
		return progressSceneLimit
	}
	return pct
}

func sceneID(index int, scene models.EditedScene) string {
	if scene.ID != "" {
		return scene.ID
	}
	return fmt.Sprintf("scene_%d", index+1)
}

func lookup(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
