package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencom-org/series/internal/persistence"
	"github.com/opencom-org/series/pkg/api"
)

func (e *engineImpl) ResumeWaitingForEvent(ctx context.Context, workspaceID, visitorID, eventName string) (api.ResumeResult, error) {
	var res api.ResumeResult
	if eventName == "" {
		return res, nil
	}

	rows, err := e.progress.ListWaitingForEvent(ctx, workspaceID, visitorID, eventName)
	if err != nil {
		return res, err
	}
	res.Matched = len(rows)

	for _, p := range rows {
		sr, err := e.graph.GetSeries(ctx, p.SeriesID)

		var outcome driveOutcome
		switch {
		case errors.Is(err, api.ErrSeriesNotFound):
			outcome, err = e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("series %s: %w", p.SeriesID, api.ErrSeriesNotFound))
		case err == nil:
			outcome, err = e.resumeSuspended(ctx, sr, p, "event "+eventName)
		}
		if err != nil {
			return res, err
		}
		if outcome == driveFinished || outcome == driveParked {
			res.Resumed++
		}
	}
	return res, nil
}

// resumeSuspended claims a suspended row and drives it. Rows parked on a
// wait block advance past it before driving; rows re-armed on an action
// block re-execute the block in place. The claiming update is the
// serialization point: a concurrent resumer loses the revision race and
// reports driveConflict.
func (e *engineImpl) resumeSuspended(ctx context.Context, sr *api.Series, p *api.Progress, detail string) (driveOutcome, error) {
	blk, err := e.graph.GetBlock(ctx, p.SeriesID, p.CurrentBlockID)
	if err != nil {
		if errors.Is(err, api.ErrBlockNotFound) {
			return e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("block %s: %w", p.CurrentBlockID, api.ErrBlockNotFound))
		}
		return 0, err
	}

	if blk.Type == api.BlockWait {
		snap, err := e.visitors.Snapshot(ctx, p.WorkspaceID, p.VisitorID)
		if err != nil {
			return 0, fmt.Errorf("visitor snapshot: %w", err)
		}
		if err := e.advance(ctx, p, blk, outcomeWaited, snap); err != nil {
			if errors.Is(err, persistence.ErrProgressConflict) {
				return driveConflict, nil
			}
			return 0, err
		}
	} else {
		p.WaitUntil = nil
		p.WaitEventName = ""
		if err := e.progress.UpdateProgress(ctx, p); err != nil {
			if errors.Is(err, persistence.ErrProgressConflict) {
				return driveConflict, nil
			}
			return 0, err
		}
	}

	e.recordAudit(ctx, p, api.AuditProgressResumed, blk.ID, detail)
	return e.drive(ctx, sr, p, api.TriggerContext{})
}
