// Package processor runs journey submissions in the background and lets
// clients follow their progress.
package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Event kinds recorded by a job.
const (
	KindProgress = "progress"
	KindError    = "error"
	KindFinished = "finished"
)

// Event is one entry in a job's history.
type Event struct {
	Kind string `json:"kind"`
	Data string `json:"data"`
}

// Job is a single background submission. Its history is append-only and ends
// with exactly one error or finished event.
type Job struct {
	ID uuid.UUID

	mu         sync.Mutex
	history    []Event
	changed    chan struct{}
	done       bool
	finishedAt time.Time
	now        func() time.Time
}

func newJob(now func() time.Time) *Job {
	return &Job{ID: uuid.New(), changed: make(chan struct{}), now: now}
}

// Progress records a progress message.
func (j *Job) Progress(msg string) { j.append(Event{Kind: KindProgress, Data: msg}, false) }

// Fail ends the job with an error message.
func (j *Job) Fail(msg string) { j.append(Event{Kind: KindError, Data: msg}, true) }

// Finish ends the job successfully; result is usually the created journey id.
func (j *Job) Finish(result string) { j.append(Event{Kind: KindFinished, Data: result}, true) }

// Done reports whether the job has ended.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// History returns a copy of the events recorded so far.
func (j *Job) History() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.history))
	copy(out, j.history)
	return out
}

func (j *Job) append(ev Event, final bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return
	}
	j.history = append(j.history, ev)
	if final {
		j.done = true
		j.finishedAt = j.now()
	}
	close(j.changed)
	j.changed = make(chan struct{})
}

// Stream calls fn for every recorded event and then for each new one, in
// order, returning nil once the final event has been delivered. It stops
// early with fn's error or ctx's.
func (j *Job) Stream(ctx context.Context, fn func(Event) error) error {
	next := 0
	for {
		j.mu.Lock()
		pending := j.history[next:]
		done := j.done
		wait := j.changed
		j.mu.Unlock()

		for _, ev := range pending {
			if err := fn(ev); err != nil {
				return err
			}
		}
		next += len(pending)
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Func is the work run for a job.
type Func func(ctx context.Context, job *Job)

// Options tune a Registry.
type Options struct {
	// MaxConcurrent caps jobs running at once. Zero means 4.
	MaxConcurrent int64
	// Retention is how long finished jobs stay streamable. Zero means 5m.
	Retention time.Duration
}

// Registry owns running and recently finished jobs.
type Registry struct {
	logger    *slog.Logger
	retention time.Duration
	sem       *semaphore.Weighted
	now       func() time.Time

	mu   sync.Mutex
	jobs map[uuid.UUID]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a Registry and starts its expiry loop. Call Close to
// stop it.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Retention <= 0 {
		opts.Retention = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		logger:    logger,
		retention: opts.Retention,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		now:       time.Now,
		jobs:      make(map[uuid.UUID]*Job),
		ctx:       ctx,
		cancel:    cancel,
	}

	r.wg.Add(1)
	go r.janitor()
	return r
}

// Start registers a job and runs fn for it in the background once a worker
// slot is free. A job that fn leaves unfinished is failed.
func (r *Registry) Start(fn Func) *Job {
	job := newJob(r.now)
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			job.Fail("Server shutting down")
			return
		}
		defer r.sem.Release(1)

		fn(r.ctx, job)
		if !job.Done() {
			r.logger.Error("processor returned without finishing", slog.String("job", job.ID.String()))
			job.Fail("Internal Server Error")
		}
	}()
	return job
}

// Get returns the job with id, if it is still retained.
func (r *Registry) Get(id uuid.UUID) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Len returns the number of retained jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Sweep drops jobs that finished more than the retention period ago.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, job := range r.jobs {
		job.mu.Lock()
		expired := job.done && !job.finishedAt.After(cutoff)
		job.mu.Unlock()
		if expired {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

func (r *Registry) janitor() {
	defer r.wg.Done()
	interval := r.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("expired processors", slog.Int("count", n))
			}
		}
	}
}

// Close cancels running jobs and waits for every goroutine to exit.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
