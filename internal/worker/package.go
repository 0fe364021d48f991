package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/amankumarsingh77/render-worker/internal/ffmpeg"
	"github.com/amankumarsingh77/render-worker/internal/metrics"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/subtitles"
)

// stitchAndCaption joins the segments and burns captions onto the result.
// Captioning never fails the job: on any caption error the joined clip is
// returned as the final artifact.
func (p *videoProcessor) stitchAndCaption(ctx context.Context, segments []string, payload *models.RenderPayload, ws *Workspace) (string, error) {
	joinedPath := ws.Path(JoinedFile)
	if err := p.stitchSegments(ctx, segments, ws.Path(ManifestFile), joinedPath); err != nil {
		return "", err
	}

	finalPath := ws.Path(FinalFile)
	if err := p.burnCaptions(ctx, payload, joinedPath, ws.Path(SubtitleFile), finalPath); err != nil {
		p.logger.Warnf("exporting without captions: %v", err)
		metrics.CaptionFallbacksTotal.Inc()
		return joinedPath, nil
	}
	return finalPath, nil
}

func (p *videoProcessor) stitchSegments(ctx context.Context, segments []string, manifestPath, outputPath string) error {
	if err := os.WriteFile(manifestPath, []byte(ffmpeg.ConcatManifest(segments)), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	cmd, err := ffmpeg.Concat(manifestPath, outputPath)
	if err != nil {
		return err
	}
	start := p.clock.Now()
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("concat").Observe(p.clock.Now().Sub(start).Seconds())
	return nil
}

func (p *videoProcessor) burnCaptions(ctx context.Context, payload *models.RenderPayload, inputPath, srtPath, outputPath string) error {
	if err := os.WriteFile(srtPath, []byte(subtitles.BuildSRT(payload)), 0o644); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	info, err := os.Stat(p.fontDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrFontDirMissing, p.fontDir)
	}
	cmd, err := ffmpeg.BurnCaptions(inputPath, srtPath, p.fontDir, p.fontName, outputPath)
	if err != nil {
		return err
	}
	start := p.clock.Now()
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("captions").Observe(p.clock.Now().Sub(start).Seconds())
	return nil
}
