package series

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/opencom-org/series/internal/taskqueue"
	"github.com/opencom-org/series/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, a Worker
// and a Sweeper to provide a simple "local runner" for development and
// debugging.
//
// Typical usage:
//
//	runner := series.NewLocalRunner()
//	sr := series.NewBuilder("welcome", ws).
//	    TriggeredByEvent("signed_up").
//	    WaitDays(2).
//	    MustApply(ctx, runner.Engine)
//	_ = runner.Engine.ActivateSeries(ctx, sr.ID)
//
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.TrackEventAsync(ctx, ws, visitorID, "signed_up")
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory series engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes trigger tasks from Queue using Engine.
	Worker *worker.Worker

	// Sweeper resumes due duration waits in the background.
	Sweeper *worker.Sweeper

	// Visitors, EventLog, Chat and Email are the runner's in-memory
	// collaborators: seed attributes on Visitors, inspect deliveries on
	// Chat and Email. They are nil when NewLocalRunnerWithOptions wired
	// custom collaborators instead.
	Visitors *MemoryVisitorStore
	EventLog *MemoryEventLog
	Chat     *MemoryChatChannel
	Email    *MemoryEmailChannel

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, a Worker with default config, and in-memory
// collaborators for visitor attributes, event counts and deliveries.
// Attribute writes on Visitors enqueue attribute-change triggers, so
// attribute-triggered series react to SetAttribute once workers run.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	visitors := NewMemoryVisitorStore()
	events := NewMemoryEventLog()
	chat := NewMemoryChatChannel()
	email := NewMemoryEmailChannel(visitors)

	r := NewLocalRunnerWithOptions(EngineOptions{
		Visitors: visitors,
		Events:   events,
		Chat:     chat,
		Email:    email,
	})
	r.Visitors = visitors
	r.EventLog = events
	r.Chat = chat
	r.Email = email
	visitors.OnChange = func(workspaceID, visitorID string) {
		// Best effort; the in-memory queue only fails on shutdown.
		_ = r.TrackAttributeChangeAsync(context.Background(), workspaceID, visitorID)
	}
	return r
}

// NewLocalRunnerWithOptions is NewLocalRunner with the engine wired to the
// given collaborators.
func NewLocalRunnerWithOptions(opts EngineOptions) *LocalRunner {
	eng := NewInMemoryEngineWithOptions(opts)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)
	sw := worker.NewSweeper(eng, worker.SweeperConfig{Interval: time.Second})

	return &LocalRunner{
		Engine:  eng,
		Queue:   q,
		Worker:  w,
		Sweeper: sw,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx), plus the background sweeper, until the context is
// cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("series: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := r.Sweeper.Start(ctx); err != nil {
		cancel()
		return err
	}

	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For local runner we treat cancellation as a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// For other errors, log and keep going so a single bad task
					// doesn't kill the worker loop.
					log.Printf("series: local runner worker error: %v", err)
					continue
				}
				if !processed {
					// This only happens if ctx was cancelled before a task was obtained.
					// Loop will exit on next Dequeue when err == context.Canceled.
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels the worker goroutines and the sweeper started by
// StartWorkers and waits for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.Sweeper.Stop()
}

// TrackEventAsync enqueues a visitor event to be processed by the workers:
// waiting progress resumes first, then enrollment is evaluated. When the
// runner owns its event log the event is recorded there too, so
// event-count rule conditions see it.
func (r *LocalRunner) TrackEventAsync(ctx context.Context, workspaceID, visitorID, eventName string) error {
	if r.EventLog != nil {
		r.EventLog.Record(workspaceID, visitorID, eventName, time.Now())
	}
	return r.Worker.EnqueueVisitorEvent(ctx, workspaceID, visitorID, eventName)
}

// TrackAttributeChangeAsync enqueues an attribute change to be processed by
// the workers. Only enrollment is evaluated for attribute changes.
func (r *LocalRunner) TrackAttributeChangeAsync(ctx context.Context, workspaceID, visitorID string) error {
	return r.Worker.EnqueueAttributeChange(ctx, workspaceID, visitorID)
}
