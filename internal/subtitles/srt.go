// Package subtitles renders the caption track of a render payload as SRT.
package subtitles

import (
	"fmt"
	"math"
	"strings"

	"github.com/amankumarsingh77/render-worker/internal/models"
)

// placeholder keeps the burn step valid when no scene has narration.
const placeholder = "1\n00:00:00,000 --> 00:00:05,000\n \n"

type cue struct {
	start, end int64
	text       string
}

// BuildSRT lays scenes end to end on the timeline and emits one cue per scene
// with narration. Scenes without narration still advance the clock.
func BuildSRT(p *models.RenderPayload) string {
	if p == nil {
		return placeholder
	}
	narration := make(map[string]string, len(p.Localized.Scenes))
	for _, s := range p.Localized.Scenes {
		if s.ID == "" {
			continue
		}
		narration[s.ID] = s.Text()
	}

	var cues []cue
	var clock int64
	for _, scene := range p.Edited.Scenes {
		durMs := int64(math.Round(scene.DurationSec.OrDefault() * 1000))
		start, end := clock, clock+durMs
		clock = end
		text := singleLine(narration[scene.ID])
		if text == "" {
			continue
		}
		cues = append(cues, cue{start: start, end: end, text: text})
	}
	if len(cues) == 0 {
		return placeholder
	}

	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, Timestamp(c.start), Timestamp(c.end), c.text)
	}
	return b.String()
}

// Timestamp formats milliseconds as HH:MM:SS,mmm.
func Timestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := (ms % 3_600_000) / 60_000
	s := (ms % 60_000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
