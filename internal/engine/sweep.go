package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencom-org/series/pkg/api"
)

// Default bounds of one backstop sweep pass.
const (
	defaultSweepSeriesLimit   = 50
	defaultSweepRowsPerSeries = 100
)

func (e *engineImpl) ProcessWaitingProgress(ctx context.Context, seriesLimit, waitingLimitPerSeries int) (api.SweepResult, error) {
	var res api.SweepResult
	if seriesLimit <= 0 {
		seriesLimit = defaultSweepSeriesLimit
	}
	if waitingLimitPerSeries <= 0 {
		waitingLimitPerSeries = defaultSweepRowsPerSeries
	}
	now := e.now()

	seriesIDs, err := e.progress.ListSeriesWithDueWaiting(ctx, now, seriesLimit)
	if err != nil {
		return res, err
	}

	for _, seriesID := range seriesIDs {
		// Deactivated series keep sweeping: deactivation only stops new
		// enrollments, rows already in flight finish their run.
		sr, err := e.graph.GetSeries(ctx, seriesID)
		if err != nil && !errors.Is(err, api.ErrSeriesNotFound) {
			return res, err
		}

		rows, err := e.progress.ListDueWaiting(ctx, seriesID, now, waitingLimitPerSeries)
		if err != nil {
			return res, err
		}
		for _, p := range rows {
			var outcome driveOutcome
			if sr == nil {
				outcome, err = e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("series %s: %w", seriesID, api.ErrSeriesNotFound))
			} else {
				outcome, err = e.resumeSuspended(ctx, sr, p, "deadline elapsed")
			}
			if err != nil {
				return res, err
			}
			if outcome != driveConflict {
				res.Processed++
			}
		}
	}
	return res, nil
}
