package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/ffmpeg"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
)

var errDBDown = errors.New("connection refused")

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Worker: config.WorkerConfig{
			ID:                  "worker_test",
			PollInterval:        2 * time.Second,
			IdleHeartbeat:       30 * time.Second,
			MaxBackoff:          30 * time.Second,
			MaxJobRuntime:       25 * time.Minute,
			MinProgressInterval: 1500 * time.Millisecond,
			WorkspaceRoot:       t.TempDir(),
		},
		Media: config.MediaConfig{
			FFmpegBin: "ffmpeg",
			FontDir:   t.TempDir(),
			FontName:  "Noto Sans Georgian",
		},
	}
}

// steppingClock fires every sleep at once and moves time forward by its length.
type steppingClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *steppingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeLifecycle struct {
	mu         sync.Mutex
	claim      func(n int) (*models.RenderJob, error)
	claims     int
	loadErr    error
	rows       map[string]*models.RenderJob
	started    []string
	progress   []int
	outcomes   map[string]renderjobs.Outcome
	finalizeFn func(jobID string, o renderjobs.Outcome) error
}

func newFakeLifecycle(jobs ...*models.RenderJob) *fakeLifecycle {
	l := &fakeLifecycle{
		rows:     map[string]*models.RenderJob{},
		outcomes: map[string]renderjobs.Outcome{},
	}
	for _, j := range jobs {
		l.rows[j.ID] = j
	}
	return l
}

func (l *fakeLifecycle) ClaimNext(ctx context.Context) (*models.RenderJob, error) {
	l.mu.Lock()
	l.claims++
	n := l.claims
	fn := l.claim
	l.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(n)
}

func (l *fakeLifecycle) LoadPayload(ctx context.Context, job *models.RenderJob) (*models.RenderJob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	if row, ok := l.rows[job.ID]; ok {
		return row, nil
	}
	return job, nil
}

func (l *fakeLifecycle) MarkStarted(ctx context.Context, job *models.RenderJob) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, job.ID)
	return nil
}

func (l *fakeLifecycle) ReportProgress(ctx context.Context, jobID string, percent int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, percent)
}

func (l *fakeLifecycle) Finalize(ctx context.Context, jobID string, outcome renderjobs.Outcome) error {
	l.mu.Lock()
	fn := l.finalizeFn
	l.mu.Unlock()
	if fn != nil {
		if err := fn(jobID, outcome); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes[jobID] = outcome
	return nil
}

func (l *fakeLifecycle) outcome(jobID string) (renderjobs.Outcome, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.outcomes[jobID]
	return o, ok
}

// fakeRunner records every step and writes a placeholder output file.
type fakeRunner struct {
	mu       sync.Mutex
	steps    []string
	commands []ffmpeg.Command
	failStep string
	onRun    func(cmd ffmpeg.Command)
}

func (r *fakeRunner) Run(ctx context.Context, cmd ffmpeg.Command) (string, error) {
	r.mu.Lock()
	r.steps = append(r.steps, cmd.Step)
	r.commands = append(r.commands, cmd)
	hook := r.onRun
	r.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}
	if cmd.Step == r.failStep {
		return "", errors.New("ffmpeg " + cmd.Step + " failed: exit status 1")
	}
	if cmd.Output != "" {
		if err := os.WriteFile(cmd.Output, []byte(cmd.Step), 0o644); err != nil {
			return "", err
		}
	}
	return "", nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	urls    []string
	failURL string
}

func (f *fakeFetcher) Download(ctx context.Context, url, dest string) error {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if url == f.failURL {
		return errors.New("download " + url + ": status 404")
	}
	return os.WriteFile(dest, []byte("media"), 0o644)
}

type fakeUploader struct {
	mu       sync.Mutex
	uploaded []string
	err      error
}

func (u *fakeUploader) Upload(ctx context.Context, localPath, requestID string) (*models.RenderResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, err := os.Stat(localPath); err != nil {
		return nil, err
	}
	u.uploaded = append(u.uploaded, localPath)
	if u.err != nil {
		return nil, u.err
	}
	key := "renders/" + requestID + "/abc.mp4"
	return &models.RenderResult{
		PublicURL:  "https://cdn.example.com/renders/" + key,
		Bucket:     "renders",
		ObjectPath: key,
		RequestID:  requestID,
	}, nil
}

type handlerFunc func(ctx context.Context, job *models.RenderJob) error

func (f handlerFunc) Handle(ctx context.Context, job *models.RenderJob) error {
	return f(ctx, job)
}
