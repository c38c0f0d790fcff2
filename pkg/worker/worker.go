package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/opencom-org/series/internal/taskqueue"
	"github.com/opencom-org/series/pkg/api"
)

// Config controls retry and throughput behaviour of a Worker.
type Config struct {
	// MaxAttempts caps the total number of times a failing task is tried
	// before its error is surfaced from ProcessOne. Zero or one means a
	// single attempt with no retries.
	MaxAttempts int

	// Backoff is how long a retried task stays ineligible before a worker
	// may pick it up again. Only durable queues honor it; the in-memory
	// queue hands tasks out immediately.
	Backoff time.Duration

	// RatePerSecond caps how many tasks per second this worker pulls off
	// the queue, counted across all goroutines sharing the Worker.
	// Zero means unlimited.
	RatePerSecond float64

	// RateBurst is the burst size of the rate limiter. Only used when
	// RatePerSecond is set; defaults to 1.
	RateBurst int
}

// Worker pulls trigger tasks from a Queue and feeds them to an Engine.
type Worker struct {
	engine  api.Engine
	queue   taskqueue.Queue
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Worker with default config: no task retries, no rate cap.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker with the given retry and rate settings.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	w := &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return w
}

// EnqueueVisitorEvent enqueues a task reporting that the visitor fired the
// named event. It does NOT touch any series itself; that is done by
// ProcessOne.
func (w *Worker) EnqueueVisitorEvent(ctx context.Context, workspaceID, visitorID, eventName string) error {
	t := taskqueue.Task{
		ID:          uuid.NewString(),
		Type:        taskqueue.TaskTypeVisitorEvent,
		WorkspaceID: workspaceID,
		VisitorID:   visitorID,
		EventName:   eventName,
		EnqueuedAt:  time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueVisitorEventAt enqueues a visitor event task that becomes eligible
// for processing no earlier than the given time 'at'.
func (w *Worker) EnqueueVisitorEventAt(ctx context.Context, workspaceID, visitorID, eventName string, at time.Time) error {
	t := taskqueue.Task{
		ID:          uuid.NewString(),
		Type:        taskqueue.TaskTypeVisitorEvent,
		WorkspaceID: workspaceID,
		VisitorID:   visitorID,
		EventName:   eventName,
		EnqueuedAt:  time.Now(),
		NotBefore:   at,
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueAttributeChange enqueues a task reporting that one of the visitor's
// attributes changed. Attribute changes only feed enrollment; they never
// resume event waits.
func (w *Worker) EnqueueAttributeChange(ctx context.Context, workspaceID, visitorID string) error {
	t := taskqueue.Task{
		ID:          uuid.NewString(),
		Type:        taskqueue.TaskTypeAttributeChange,
		WorkspaceID: workspaceID,
		VisitorID:   visitorID,
		EnqueuedAt:  time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueAttributeChangeAt enqueues an attribute change task that becomes
// eligible for processing no earlier than 'at'.
func (w *Worker) EnqueueAttributeChangeAt(ctx context.Context, workspaceID, visitorID string, at time.Time) error {
	t := taskqueue.Task{
		ID:          uuid.NewString(),
		Type:        taskqueue.TaskTypeAttributeChange,
		WorkspaceID: workspaceID,
		VisitorID:   visitorID,
		EnqueuedAt:  time.Now(),
		NotBefore:   at,
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err == nil: no task processed (only happens if ctx cancelled before a task was obtained)
//   - processed == true: a task was processed; err indicates whether the handlers succeeded.
//
// When the config allows retries, a failed task is re-enqueued with backoff
// instead of surfacing its error; the error is only returned once the
// attempt budget is spent.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		// Context cancellation or other dequeue error: nothing processed.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, err
	}
	if task == nil {
		return false, nil
	}

	var handlerErr error

	switch task.Type {
	case taskqueue.TaskTypeVisitorEvent:
		// Waiting rows resume before enrollment is considered.
		_, resumeErr := w.engine.ResumeWaitingForEvent(ctx, task.WorkspaceID, task.VisitorID, task.EventName)
		_, enrollErr := w.engine.EvaluateEnrollmentForVisitor(ctx, task.WorkspaceID, task.VisitorID, api.TriggerContext{
			Source:    api.TriggerSourceEvent,
			EventName: task.EventName,
		})
		handlerErr = errors.Join(resumeErr, enrollErr)

	case taskqueue.TaskTypeAttributeChange:
		_, enrollErr := w.engine.EvaluateEnrollmentForVisitor(ctx, task.WorkspaceID, task.VisitorID, api.TriggerContext{
			Source: api.TriggerSourceAttribute,
		})
		handlerErr = enrollErr

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}

	if handlerErr == nil {
		return true, nil
	}
	return true, w.retryTask(ctx, *task, handlerErr)
}

// retryTask re-enqueues a failed task with backoff, or surfaces the handler
// error once the attempt budget is spent.
func (w *Worker) retryTask(ctx context.Context, t taskqueue.Task, cause error) error {
	attempt := t.Attempts + 1
	if attempt >= w.cfg.MaxAttempts {
		return cause
	}
	t.Attempts = attempt
	t.NotBefore = time.Now().Add(w.cfg.Backoff)
	if enqErr := w.queue.Enqueue(ctx, t); enqErr != nil {
		return errors.Join(cause, enqErr)
	}
	return nil
}
