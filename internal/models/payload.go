package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultSceneDuration is used when a scene carries no usable duration.
const DefaultSceneDuration = 8.0

// RenderPayload is the producer-supplied document attached to a render job.
type RenderPayload struct {
	RequestID  string          `json:"requestId,omitempty"`
	Input      PayloadInput    `json:"input"`
	Edited     EditedScript    `json:"edited"`
	Localized  LocalizedScript `json:"localized"`
	Videos     []SceneVideo    `json:"videos"`
	Voiceovers VoiceoverSet    `json:"voiceovers"`
}

type PayloadInput struct {
	RequestID string `json:"requestId,omitempty"`
}

type EditedScript struct {
	Scenes []EditedScene `json:"scenes"`
}

type EditedScene struct {
	ID          string  `json:"id"`
	DurationSec Seconds `json:"durationSec"`
}

type LocalizedScript struct {
	Scenes []LocalizedScene `json:"scenes_ka"`
}

type LocalizedScene struct {
	ID          string `json:"id"`
	NarrationKa string `json:"narration_ka"`
	ActionKa    string `json:"action_ka"`
}

// Text returns the caption text for the scene, narration first.
func (s LocalizedScene) Text() string {
	if txt := strings.TrimSpace(s.NarrationKa); txt != "" {
		return txt
	}
	return strings.TrimSpace(s.ActionKa)
}

type SceneVideo struct {
	SceneID  string `json:"sceneId"`
	VideoURL string `json:"videoUrl"`
}

type VoiceoverSet struct {
	Voiceovers []SceneVoiceover `json:"voiceovers"`
}

type SceneVoiceover struct {
	SceneID  string `json:"sceneId"`
	AudioURL string `json:"audioUrl"`
}

// ParsePayload decodes a raw job payload.
func ParsePayload(raw json.RawMessage) (*RenderPayload, error) {
	var p RenderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ResolveRequestID picks the producer request id, falling back to the job id.
func (p *RenderPayload) ResolveRequestID(jobID string) string {
	if p.RequestID != "" {
		return p.RequestID
	}
	if p.Input.RequestID != "" {
		return p.Input.RequestID
	}
	return jobID
}

// VideoURLs maps scene id to source video URL.
func (p *RenderPayload) VideoURLs() map[string]string {
	out := make(map[string]string, len(p.Videos))
	for _, v := range p.Videos {
		if v.SceneID != "" && v.VideoURL != "" {
			out[v.SceneID] = v.VideoURL
		}
	}
	return out
}

// AudioURLs maps scene id to voiceover URL (remote or data URL).
func (p *RenderPayload) AudioURLs() map[string]string {
	out := make(map[string]string, len(p.Voiceovers.Voiceovers))
	for _, a := range p.Voiceovers.Voiceovers {
		if a.SceneID != "" && a.AudioURL != "" {
			out[a.SceneID] = a.AudioURL
		}
	}
	return out
}

// Seconds accepts a JSON number or numeric string. Anything else decodes to zero.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			*s = 0
			return nil
		}
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*s = 0
		return nil
	}
	*s = Seconds(v)
	return nil
}

// OrDefault returns the duration, or DefaultSceneDuration when it is not a positive finite number.
func (s Seconds) OrDefault() float64 {
	v := float64(s)
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultSceneDuration
	}
	return v
}
