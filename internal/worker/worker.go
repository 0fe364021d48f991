package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/metrics"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/amankumarsingh77/render-worker/pkg/utils"
)

// Worker claims and renders jobs one at a time until stopped.
type Worker struct {
	cfg       *config.Config
	logger    logger.Logger
	lifecycle renderjobs.UseCase
	handler   JobHandler
	clock     utils.Clock
	cpuCheck  func(maxUsage float64) (bool, float64, error)

	stopOnce sync.Once
	stopChan chan struct{}
	state    atomic.Value
	current  atomic.Value
}

func NewWorker(cfg *config.Config, log logger.Logger, lifecycle renderjobs.UseCase, handler JobHandler, clock utils.Clock) *Worker {
	w := &Worker{
		cfg:       cfg,
		logger:    log,
		lifecycle: lifecycle,
		handler:   handler,
		clock:     clock,
		cpuCheck:  utils.CheckCPUUsage,
		stopChan:  make(chan struct{}),
	}
	w.state.Store(StateIdle)
	w.current.Store("")
	return w
}

// Stop asks the loop to exit after the job in flight, if any, is finished.
// An idle sleep is cut short. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.state.Store(StateStopping)
		close(w.stopChan)
	})
}

func (w *Worker) State() string {
	return w.state.Load().(string)
}

// CurrentJob returns the id of the job in flight, or "".
func (w *Worker) CurrentJob() string {
	return w.current.Load().(string)
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

// Run is the claim loop. It returns nil once Stop is called or ctx is done.
// ctx is passed to every job, so cancelling it aborts the job in flight.
func (w *Worker) Run(ctx context.Context) error {
	base := w.cfg.Worker.PollInterval
	maxBackoff := w.cfg.Worker.MaxBackoff
	backoff := base
	lastHeartbeat := w.clock.Now()

	w.logger.Infof("render worker started (poll %s, max backoff %s)", base, maxBackoff)
	for !w.stopping() && ctx.Err() == nil {
		ok, usage, err := w.cpuCheck(w.cfg.Worker.MaxCPUUsage)
		if err != nil {
			w.logger.Warnf("CPU check failed, claiming anyway: %v", err)
		}
		if !ok {
			w.logger.Infof("CPU usage %.2f%% too high, waiting...", usage)
			w.sleep(ctx, base)
			continue
		}

		job, err := w.lifecycle.ClaimNext(ctx)
		if err != nil {
			metrics.ClaimErrorsTotal.Inc()
			backoff = NextBackoff(backoff, base, maxBackoff)
			w.logger.Warnf("worker loop error: %v (retrying in %s)", err, backoff)
			w.sleep(ctx, backoff)
			continue
		}
		backoff = base
		metrics.BackoffSeconds.Set(0)

		if job == nil {
			if now := w.clock.Now(); now.Sub(lastHeartbeat) >= w.cfg.Worker.IdleHeartbeat {
				lastHeartbeat = now
				w.logger.Infof("idle, waiting for jobs...")
			}
			w.sleep(ctx, base)
			continue
		}

		if err := w.process(ctx, job); err != nil {
			backoff = NextBackoff(backoff, base, maxBackoff)
			metrics.BackoffSeconds.Set(backoff.Seconds())
			w.logger.Warnf("worker loop error: %v (retrying in %s)", err, backoff)
			w.sleep(ctx, backoff)
		}
		lastHeartbeat = w.clock.Now()
	}
	w.logger.Infof("render worker stopped")
	return nil
}

// process runs the handler and turns a panic into a failed job and a loop error.
func (w *Worker) process(ctx context.Context, job *models.RenderJob) (err error) {
	w.logger.Infof("got job %s", job.ID)
	w.setBusy(job.ID)
	metrics.ActiveJobs.Inc()
	defer func() {
		metrics.ActiveJobs.Dec()
		w.setIdle()
		if r := recover(); r != nil {
			w.logger.Errorf("panic while handling job %s: %v\n%s", job.ID, r, debug.Stack())
			err = fmt.Errorf("panic while handling job %s: %v", job.ID, r)
			if ferr := w.lifecycle.Finalize(ctx, job.ID, renderjobs.Failure(err.Error())); ferr != nil {
				w.logger.Errorf("failed to write error to job %s: %v", job.ID, ferr)
			}
		}
	}()
	return w.handler.Handle(ctx, job)
}

func (w *Worker) setBusy(jobID string) {
	w.current.Store(jobID)
	if !w.stopping() {
		w.state.Store(StateBusy)
	}
}

func (w *Worker) setIdle() {
	w.current.Store("")
	if !w.stopping() {
		w.state.Store(StateIdle)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-w.stopChan:
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}

// NextBackoff doubles the delay, never below base nor above max.
func NextBackoff(current, base, max time.Duration) time.Duration {
	next := current * 2
	if next < base {
		next = base
	}
	if next > max {
		next = max
	}
	return next
}
