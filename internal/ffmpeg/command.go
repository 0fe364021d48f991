// Package ffmpeg builds and runs the fixed set of ffmpeg invocations the
// render pipeline needs. Arguments are always passed as a list; values that
// land inside filter syntax are escaped first.
package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Output policy. Every render uses the same frame, codec and quality settings.
const (
	FrameWidth   = 1080
	FrameHeight  = 1920
	FrameRate    = 30
	VideoCodec   = "libx264"
	VideoPreset  = "veryfast"
	SegmentCRF   = 20
	CaptionCRF   = 19
	PixelFormat  = "yuv420p"
	AudioCodec   = "aac"
	AudioBitrate = "192k"
	AudioRate    = 44100
	AudioLayout  = 2

	CaptionFontSize = 48
	CaptionMarginV  = 80
)

var (
	ErrEmptyPath       = errors.New("ffmpeg: empty path")
	ErrControlChars    = errors.New("ffmpeg: control characters in argument")
	ErrInvalidDuration = errors.New("ffmpeg: duration must be a positive finite number")
	ErrInvalidFontName = errors.New("ffmpeg: invalid font name")
)

var fontNameRe = regexp.MustCompile(`^[A-Za-z0-9 _.-]{1,64}$`)

// Command is one validated ffmpeg invocation.
type Command struct {
	Step   string
	Args   []string
	Output string
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// SynthesizeSilence produces a silent stereo mp3 of the given length.
func SynthesizeSilence(out string, durationSec float64) (Command, error) {
	if err := checkPaths(out); err != nil {
		return Command{}, err
	}
	dur, err := formatDuration(durationSec)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Step: "synthesize silence",
		Args: []string{
			"-y",
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", AudioRate),
			"-t", dur,
			"-q:a", "9",
			"-acodec", "libmp3lame",
			out,
		},
		Output: out,
	}, nil
}

// TranscodeSegment scales and crops the scene video to the output frame and
// muxes it with the scene audio, trimmed to the scene duration.
func TranscodeSegment(video, audio, out string, durationSec float64) (Command, error) {
	if err := checkPaths(video, audio, out); err != nil {
		return Command{}, err
	}
	dur, err := formatDuration(durationSec)
	if err != nil {
		return Command{}, err
	}
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d,format=%s",
		FrameWidth, FrameHeight, FrameWidth, FrameHeight, FrameRate, PixelFormat,
	)
	args := []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-t", dur,
		"-vf", vf,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
	}
	args = append(args, encodeArgs(SegmentCRF)...)
	return Command{Step: "transcode segment", Args: append(args, out), Output: out}, nil
}

// Concat joins the segments listed in manifest and re-encodes the result.
func Concat(manifest, out string) (Command, error) {
	if err := checkPaths(manifest, out); err != nil {
		return Command{}, err
	}
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", manifest}
	args = append(args, encodeArgs(SegmentCRF)...)
	return Command{Step: "concat", Args: append(args, out), Output: out}, nil
}

// BurnCaptions renders the SRT track onto the input with the fixed caption style.
func BurnCaptions(input, srt, fontDir, fontName, out string) (Command, error) {
	if err := checkPaths(input, srt, fontDir, out); err != nil {
		return Command{}, err
	}
	if !fontNameRe.MatchString(fontName) {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidFontName, fontName)
	}
	args := []string{"-y", "-i", input, "-vf", CaptionFilter(srt, fontDir, fontName)}
	args = append(args, encodeArgs(CaptionCRF)...)
	return Command{Step: "burn captions", Args: append(args, out), Output: out}, nil
}

// Version is the startup probe.
func Version() Command {
	return Command{Step: "version", Args: []string{"-version"}}
}

// CaptionFilter returns the subtitles filter expression for the given files.
func CaptionFilter(srt, fontDir, fontName string) string {
	style := fmt.Sprintf(
		"FontName=%s,FontSize=%d,PrimaryColour=&H00FFFFFF&,OutlineColour=&H00000000&,BorderStyle=3,Outline=2,Shadow=0,MarginV=%d",
		fontName, CaptionFontSize, CaptionMarginV,
	)
	return fmt.Sprintf("subtitles='%s':fontsdir='%s':force_style='%s'",
		EscapeFilterPath(srt), EscapeFilterPath(fontDir), style)
}

var filterPathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`:`, `\:`,
	`'`, `\'`,
	"\n", "",
	"\r", "",
)

// EscapeFilterPath makes a path safe inside a quoted filter option value.
func EscapeFilterPath(p string) string {
	return filterPathEscaper.Replace(p)
}

// ConcatManifest renders the concat demuxer list for the given segment paths.
func ConcatManifest(paths []string) string {
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = "file '" + strings.ReplaceAll(p, "'", `'\''`) + "'"
	}
	return strings.Join(lines, "\n") + "\n"
}

func encodeArgs(crf int) []string {
	return []string{
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", PixelFormat,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-ar", strconv.Itoa(AudioRate),
		"-ac", strconv.Itoa(AudioLayout),
	}
}

func checkPaths(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			return ErrEmptyPath
		}
		for _, r := range p {
			if r < 0x20 || r == 0x7f {
				return fmt.Errorf("%w: %q", ErrControlChars, p)
			}
		}
		if strings.HasPrefix(p, "-") {
			return fmt.Errorf("ffmpeg: path %q looks like an option", p)
		}
	}
	return nil
}

func formatDuration(sec float64) (string, error) {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return "", ErrInvalidDuration
	}
	return strconv.FormatFloat(sec, 'f', -1, 64), nil
}
