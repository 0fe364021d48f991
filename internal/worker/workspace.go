package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const workspacePrefix = "render-"

// Workspace is the private scratch directory of one job.
type Workspace struct {
	Dir       string
	scenesDir string
}

// NewWorkspace creates a fresh directory under root (the system temp dir when empty).
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(root, workspacePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	// ffmpeg resolves relative concat entries against the manifest, so keep paths absolute.
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	scenes := filepath.Join(dir, ScenesDir)
	if err := os.MkdirAll(scenes, os.ModePerm); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create scenes directory: %w", err)
	}
	return &Workspace{Dir: dir, scenesDir: scenes}, nil
}

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

func (w *Workspace) ScenePath(name string) string {
	return filepath.Join(w.scenesDir, name)
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}

// ReconcileWorkspaces removes workspaces older than maxAge, left behind by a
// process that died mid-job. It returns the removed directories.
func ReconcileWorkspaces(root string, maxAge time.Duration, now time.Time) ([]string, error) {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			return removed, err
		}
		removed = append(removed, dir)
	}
	return removed, nil
}

// SafeFileName keeps ASCII letters, digits, dot and dash, capped at 120 bytes.
func SafeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
			if b.Len() == 120 {
				break
			}
		}
	}
	return b.String()
}
