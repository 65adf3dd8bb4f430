package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"solarimager/internal/logger"
	"solarimager/internal/models"
)

var (
	// ErrBusy rejects a submission while another job is active.
	ErrBusy = errors.New("another operation is already running")
	// ErrCancelled may be returned by a Func that stopped on request.
	ErrCancelled = errors.New("job cancelled")
)

// Publisher receives every job status change.
type Publisher interface {
	Publish(job models.Job)
}

// UpdateFunc reports progress (0..1) and a status line for the active job.
type UpdateFunc func(progress float64, message string)

// Func is the body of a job. The returned value becomes the job result.
type Func func(ctx context.Context, update UpdateFunc) (interface{}, error)

// Spec describes a job submission.
type Spec struct {
	Kind   models.JobKind
	Params map[string]interface{}
	Run    Func
	// OnCancel, if set, is called alongside context cancellation so that
	// loops holding their own cancel flag stop between iterations.
	OnCancel func()
}

type active struct {
	job       models.Job
	cancel    context.CancelFunc
	onCancel  func()
	cancelled bool
}

// Runner executes at most one job at a time on a background goroutine.
type Runner struct {
	mu      sync.Mutex
	current *active

	store *Store
	pub   Publisher
	log   *logger.Logger
	now   func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewRunner creates a runner. store and pub may be nil.
func NewRunner(store *Store, pub Publisher) *Runner {
	ctx, stop := context.WithCancel(context.Background())
	return &Runner{
		store: store,
		pub:   pub,
		log:   logger.WithComponent("jobs"),
		now:   func() time.Time { return time.Now().UTC() },
		ctx:   ctx,
		stop:  stop,
	}
}

// Submit starts a job, or returns ErrBusy if one is already running.
func (r *Runner) Submit(spec Spec) (models.Job, error) {
	if spec.Run == nil {
		return models.Job{}, fmt.Errorf("job %s has no body", spec.Kind)
	}

	r.mu.Lock()
	if r.current != nil {
		busy := r.current.job
		r.mu.Unlock()
		return busy, ErrBusy
	}
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return models.Job{}, errors.New("job runner is shut down")
	}

	ctx, cancel := context.WithCancel(r.ctx)
	a := &active{
		job: models.Job{
			ID:        uuid.NewString(),
			Kind:      spec.Kind,
			Status:    models.JobRunning,
			Params:    spec.Params,
			StartedAt: r.now(),
		},
		cancel:   cancel,
		onCancel: spec.OnCancel,
	}
	r.current = a
	job := a.job
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info("job started", map[string]interface{}{"id": job.ID, "kind": string(job.Kind)})
	r.record(job)

	go r.run(ctx, a, spec.Run)
	return job, nil
}

func (r *Runner) run(ctx context.Context, a *active, fn Func) {
	defer r.wg.Done()
	defer a.cancel()

	update := func(progress float64, message string) {
		r.mu.Lock()
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
		a.job.Progress = progress
		a.job.Message = message
		job := a.job
		r.mu.Unlock()
		r.publish(job)
	}

	result, err := r.safeCall(ctx, fn, update)

	r.mu.Lock()
	finished := r.now()
	a.job.FinishedAt = &finished
	a.job.Result = result
	switch {
	case a.cancelled || errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		a.job.Status = models.JobCancelled
		a.job.Message = "Cancelled"
	case err != nil:
		a.job.Status = models.JobFailed
		a.job.Error = err.Error()
	default:
		a.job.Status = models.JobCompleted
		a.job.Progress = 1
	}
	job := a.job
	r.current = nil
	r.mu.Unlock()

	fields := map[string]interface{}{
		"id":       job.ID,
		"kind":     string(job.Kind),
		"status":   string(job.Status),
		"duration": finished.Sub(job.StartedAt).String(),
	}
	if err != nil && job.Status == models.JobFailed {
		r.log.Error("job failed", err, fields)
	} else {
		r.log.Info("job finished", fields)
	}
	r.record(job)
}

// safeCall turns a panic in a job body into a failed job.
func (r *Runner) safeCall(ctx context.Context, fn Func, update UpdateFunc) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx, update)
}

// Cancel requests cancellation of the active job. It reports whether a
// job was running.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	a := r.current
	if a == nil {
		r.mu.Unlock()
		return false
	}
	a.cancelled = true
	a.job.Message = "Cancelling..."
	job := a.job
	r.mu.Unlock()

	if a.onCancel != nil {
		a.onCancel()
	}
	a.cancel()
	r.log.Info("job cancellation requested", map[string]interface{}{"id": job.ID})
	r.publish(job)
	return true
}

// Current returns the active job, if any.
func (r *Runner) Current() (models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return models.Job{}, false
	}
	return r.current.job, true
}

// Get returns the active job or a stored one.
func (r *Runner) Get(id string) (models.Job, error) {
	if job, ok := r.Current(); ok && job.ID == id {
		return job, nil
	}
	if r.store == nil {
		return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.store.Get(id)
}

// List returns recent jobs from the store, newest first.
func (r *Runner) List(limit int) ([]models.Job, error) {
	if r.store == nil {
		if job, ok := r.Current(); ok {
			return []models.Job{job}, nil
		}
		return nil, nil
	}
	return r.store.List(limit)
}

// Wait blocks until no job is running.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels the active job and waits for it, bounded by ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.Cancel()
	r.stop()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) record(job models.Job) {
	if r.store != nil {
		if err := r.store.Save(job); err != nil {
			r.log.Warn("failed to persist job", map[string]interface{}{"id": job.ID, "reason": err.Error()})
		}
	}
	r.publish(job)
}

func (r *Runner) publish(job models.Job) {
	if r.pub != nil {
		r.pub.Publish(job)
	}
}
