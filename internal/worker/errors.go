package worker

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoScenes        = errors.New("payload.edited.scenes is empty")
	ErrNoSegments      = errors.New("no segments produced")
	ErrRuntimeExceeded = errors.New("job exceeded max runtime")
	ErrFontDirMissing  = errors.New("caption font directory not found")
)

func runtimeExceeded(limit time.Duration) error {
	return fmt.Errorf("%w (%dms)", ErrRuntimeExceeded, limit.Milliseconds())
}

func missingVideo(sceneID string) error {
	return fmt.Errorf("missing videoUrl for %s", sceneID)
}

func invalidVideo(sceneID string) error {
	return fmt.Errorf("invalid videoUrl for %s (must be http/https)", sceneID)
}
