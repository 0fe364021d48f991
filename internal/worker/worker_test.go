package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestWorker(t *testing.T, lifecycle *fakeLifecycle, handler JobHandler, clock *steppingClock, log logger.Logger) *Worker {
	t.Helper()
	w := NewWorker(testConfig(t), log, lifecycle, handler, clock)
	w.cpuCheck = func(float64) (bool, float64, error) { return true, 0, nil }
	return w
}

func runWorker(t *testing.T, w *Worker, ctx context.Context) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNextBackoff(t *testing.T) {
	base, max := 2*time.Second, 30*time.Second
	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{2 * time.Second, 4 * time.Second},
		{4 * time.Second, 8 * time.Second},
		{16 * time.Second, 30 * time.Second},
		{30 * time.Second, 30 * time.Second},
		{0, 2 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextBackoff(tt.current, base, max), "from %s", tt.current)
	}
}

func TestRunBacksOffOnClaimErrors(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n > 5 {
			w.Stop()
			return nil, nil
		}
		return nil, errDBDown
	}
	w = newTestWorker(t, lifecycle, handlerFunc(func(context.Context, *models.RenderJob) error { return nil }), clock, logger.NewNop())

	runWorker(t, w, context.Background())

	sleeps := clock.Sleeps()
	require.GreaterOrEqual(t, len(sleeps), 5)
	assert.Equal(t, []time.Duration{
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, sleeps[:5])
}

func TestRunResetsBackoffAfterSuccessfulClaim(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		switch n {
		case 1, 2, 4:
			return nil, errDBDown
		case 3:
			return nil, nil
		default:
			w.Stop()
			return nil, nil
		}
	}
	w = newTestWorker(t, lifecycle, handlerFunc(func(context.Context, *models.RenderJob) error { return nil }), clock, logger.NewNop())

	runWorker(t, w, context.Background())

	assert.Equal(t, []time.Duration{
		4 * time.Second,
		8 * time.Second,
		2 * time.Second,
		4 * time.Second,
	}, clock.Sleeps()[:4])
}

func TestRunHandlesClaimedJobs(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n <= 2 {
			return &models.RenderJob{ID: fmt.Sprintf("job-%d", n)}, nil
		}
		w.Stop()
		return nil, nil
	}
	var handled []string
	handler := handlerFunc(func(ctx context.Context, job *models.RenderJob) error {
		assert.Equal(t, StateBusy, w.State())
		assert.Equal(t, job.ID, w.CurrentJob())
		handled = append(handled, job.ID)
		return nil
	})
	w = newTestWorker(t, lifecycle, handler, clock, logger.NewNop())

	runWorker(t, w, context.Background())

	assert.Equal(t, []string{"job-1", "job-2"}, handled)
	assert.Equal(t, "", w.CurrentJob())
	assert.Equal(t, StateStopping, w.State())
}

func TestRunBacksOffWhenHandlerFails(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n == 1 {
			return &models.RenderJob{ID: "job-1"}, nil
		}
		w.Stop()
		return nil, nil
	}
	handler := handlerFunc(func(context.Context, *models.RenderJob) error { return errDBDown })
	w = newTestWorker(t, lifecycle, handler, clock, logger.NewNop())

	runWorker(t, w, context.Background())

	assert.Equal(t, 4*time.Second, clock.Sleeps()[0])
}

func TestRunRecoversFromHandlerPanic(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n == 1 {
			return &models.RenderJob{ID: "job-1"}, nil
		}
		w.Stop()
		return nil, nil
	}
	handler := handlerFunc(func(context.Context, *models.RenderJob) error { panic("nil scene") })
	w = newTestWorker(t, lifecycle, handler, clock, logger.NewNop())

	runWorker(t, w, context.Background())

	outcome, ok := lifecycle.outcome("job-1")
	require.True(t, ok)
	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.Message, "nil scene")
	assert.Equal(t, 4*time.Second, clock.Sleeps()[0])
	assert.Equal(t, "", w.CurrentJob())
}

func TestStopWaitsForJobInFlight(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n == 1 {
			return &models.RenderJob{ID: "job-1"}, nil
		}
		return nil, nil
	}
	started := make(chan struct{})
	release := make(chan struct{})
	finished := false
	handler := handlerFunc(func(context.Context, *models.RenderJob) error {
		close(started)
		<-release
		finished = true
		return nil
	})
	w := newTestWorker(t, lifecycle, handler, clock, logger.NewNop())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	<-started
	assert.Equal(t, "job-1", w.CurrentJob())
	w.Stop()
	w.Stop()
	assert.Equal(t, StateStopping, w.State())

	select {
	case <-done:
		t.Fatal("Run returned before the job finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.True(t, finished)
	assert.Equal(t, 1, lifecycle.claims)
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	ctx, cancel := context.WithCancel(context.Background())
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n == 3 {
			cancel()
		}
		return nil, nil
	}
	w := newTestWorker(t, lifecycle, handlerFunc(func(context.Context, *models.RenderJob) error { return nil }), clock, logger.NewNop())

	runWorker(t, w, ctx)

	assert.Equal(t, 3, lifecycle.claims)
}

func TestRunLogsIdleHeartbeat(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		if n > 20 {
			w.Stop()
		}
		return nil, nil
	}
	w = newTestWorker(t, lifecycle, handlerFunc(func(context.Context, *models.RenderJob) error { return nil }), clock, logger.FromZap(zap.New(core)))

	runWorker(t, w, context.Background())

	// 20 idle polls of 2s cross the 30s heartbeat once.
	assert.Equal(t, 1, logs.FilterMessage("idle, waiting for jobs...").Len())
}

func TestRunWaitsWhileCPUBusy(t *testing.T) {
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		w.Stop()
		return nil, nil
	}
	w = newTestWorker(t, lifecycle, handlerFunc(func(context.Context, *models.RenderJob) error { return nil }), clock, logger.NewNop())
	checks := 0
	w.cpuCheck = func(float64) (bool, float64, error) {
		checks++
		return checks > 2, 97.5, nil
	}

	runWorker(t, w, context.Background())

	assert.Equal(t, 3, checks)
	assert.Equal(t, 1, lifecycle.claims)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Sleeps()[:2])
}

func TestRunClaimsWhenCPUCheckFails(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	clock := newSteppingClock()
	lifecycle := newFakeLifecycle()
	var w *Worker
	lifecycle.claim = func(n int) (*models.RenderJob, error) {
		w.Stop()
		return nil, nil
	}
	w = newTestWorker(t, lifecycle, handlerFunc(func(context.Context, *models.RenderJob) error { return nil }), clock, logger.FromZap(zap.New(core)))
	w.cpuCheck = func(float64) (bool, float64, error) {
		return true, 0, errors.New("cpu stats unavailable")
	}

	runWorker(t, w, context.Background())

	assert.Equal(t, 1, lifecycle.claims)
	assert.Equal(t, 1, logs.FilterMessageSnippet("CPU check failed").Len())
}
