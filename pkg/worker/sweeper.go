package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

// DefaultSweepInterval is how often a started Sweeper runs when the config
// does not say otherwise.
const DefaultSweepInterval = time.Minute

// SweeperConfig controls how a Sweeper scans for due waiting progress.
type SweeperConfig struct {
	// Interval between sweep passes. Zero or negative falls back to
	// DefaultSweepInterval.
	Interval time.Duration

	// SeriesLimit bounds how many series one pass touches. Zero means the
	// engine default.
	SeriesLimit int

	// RowsPerSeries bounds how many waiting rows per series one pass
	// touches. Zero means the engine default.
	RowsPerSeries int

	// Logger receives sweep pass errors. Nil means slog.Default().
	Logger *slog.Logger
}

// Sweeper periodically runs the engine's backstop sweep so duration waits
// and retry backoffs resume even when no trigger traffic arrives for the
// affected visitors.
type Sweeper struct {
	engine api.Engine
	cfg    SweeperConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweeper creates a Sweeper over the given engine.
func NewSweeper(engine api.Engine, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		engine: engine,
		cfg:    cfg,
	}
}

// RunOnce performs a single sweep pass and returns its counts.
func (s *Sweeper) RunOnce(ctx context.Context) (api.SweepResult, error) {
	return s.engine.ProcessWaitingProgress(ctx, s.cfg.SeriesLimit, s.cfg.RowsPerSeries)
}

// Start launches a background goroutine that calls RunOnce every interval
// until the context is cancelled via Stop.
//
// If Start is called again without Stop, it returns an error.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("series: Sweeper already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Log and keep going so a single bad pass
					// doesn't kill the sweep loop.
					s.cfg.Logger.ErrorContext(ctx, "sweep_failed",
						slog.Any("error", err),
					)
				}
			}
		}
	}()

	return nil
}

// Stop cancels the sweep goroutine started by Start and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
