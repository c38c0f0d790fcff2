package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencom-org/series/internal/persistence"
	"github.com/opencom-org/series/pkg/api"
	"github.com/opencom-org/series/pkg/rules"
)

// driveOutcome summarizes how one synchronous traversal ended.
type driveOutcome int

const (
	// driveFinished means the progress reached a terminal status.
	driveFinished driveOutcome = iota
	// driveParked means the progress suspended on a wait block.
	driveParked
	// driveRetryArmed means a recoverable failure re-armed the current
	// block behind a backoff deadline.
	driveRetryArmed
	// driveConflict means a concurrent writer updated the row first and
	// this traversal abandoned it.
	driveConflict
)

// drive advances the progress until it parks on a wait, reaches a terminal
// status, or loses its revision race to a concurrent writer. trig carries
// the originating trigger during enrollment and is zero-valued on resumes.
//
// Store failures abort the drive and surface to the caller. Execution
// failures are captured on the row according to the retry policy and never
// escape.
func (e *engineImpl) drive(ctx context.Context, sr *api.Series, p *api.Progress, trig api.TriggerContext) (driveOutcome, error) {
	for hops := 0; ; hops++ {
		if hops >= e.maxHops {
			return e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("traversal visited %d blocks without suspending", hops))
		}

		snap, err := e.visitors.Snapshot(ctx, p.WorkspaceID, p.VisitorID)
		if err != nil {
			return 0, fmt.Errorf("visitor snapshot: %w", err)
		}
		in := rules.Input{
			Snapshot: snap,
			Trigger:  trig,
			Events:   e.eventCountFunc(ctx, p.WorkspaceID, p.VisitorID),
		}

		// Exit wins over goal when both match at the same checkpoint.
		if sr.ExitRules != nil && rules.Evaluate(sr.ExitRules, in) {
			return e.finish(ctx, p, api.ProgressExited, nil)
		}
		if sr.GoalRules != nil && rules.Evaluate(sr.GoalRules, in) {
			return e.finish(ctx, p, api.ProgressGoalReached, nil)
		}

		if p.CurrentBlockID == "" {
			return e.finish(ctx, p, api.ProgressCompleted, nil)
		}

		blk, err := e.graph.GetBlock(ctx, p.SeriesID, p.CurrentBlockID)
		if err != nil {
			if errors.Is(err, api.ErrBlockNotFound) {
				return e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("block %s: %w", p.CurrentBlockID, api.ErrBlockNotFound))
			}
			return 0, err
		}

		switch blk.Type {
		case api.BlockWait:
			armed, err := e.armWait(p, blk)
			if err != nil {
				return e.finish(ctx, p, api.ProgressFailed, err)
			}
			if !armed {
				// Degenerate waits (zero duration, empty event name)
				// are satisfied immediately.
				if err := e.advance(ctx, p, blk, outcomeWaited, snap); err != nil {
					if errors.Is(err, persistence.ErrProgressConflict) {
						return driveConflict, nil
					}
					return 0, err
				}
				continue
			}
			if err := e.progress.UpdateProgress(ctx, p); err != nil {
				if errors.Is(err, persistence.ErrProgressConflict) {
					return driveConflict, nil
				}
				return 0, err
			}
			e.recordAudit(ctx, p, api.AuditWaitScheduled, blk.ID, waitDetail(p))
			e.observer.OnWaitScheduled(ctx, p, blk)
			return driveParked, nil

		case api.BlockChat, api.BlockEmail:
			msg := blk.Config.Message
			if msg == nil {
				return e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("%s block %s has no message config", blk.Type, blk.ID))
			}
			start := time.Now()
			var sendErr error
			if blk.Type == api.BlockChat {
				sendErr = e.chat.SendMessage(ctx, p.WorkspaceID, p.VisitorID, *msg)
			} else {
				sendErr = e.email.SendEmail(ctx, p.WorkspaceID, p.VisitorID, *msg)
			}
			e.observer.OnBlockExecuted(ctx, p, blk, sendErr, time.Since(start))
			if sendErr != nil {
				return e.superviseFailure(ctx, p, blk, sendErr)
			}
			e.recordAudit(ctx, p, api.AuditBlockExecuted, blk.ID, "")
			if err := e.advance(ctx, p, blk, outcomeSent, snap); err != nil {
				if errors.Is(err, persistence.ErrProgressConflict) {
					return driveConflict, nil
				}
				return 0, err
			}

		default:
			return e.finish(ctx, p, api.ProgressFailed, fmt.Errorf("block %s has unknown type %q", blk.ID, blk.Type))
		}
	}
}

// armWait writes the suspension fields for a wait block onto p. It reports
// false for degenerate configurations that suspend nothing, and errors only
// for definitions too malformed to interpret.
func (e *engineImpl) armWait(p *api.Progress, blk *api.Block) (bool, error) {
	cfg := blk.Config.Wait
	if cfg == nil {
		return false, fmt.Errorf("wait block %s has no wait config", blk.ID)
	}
	switch cfg.WaitType {
	case api.WaitDuration:
		d := cfg.Interval()
		if d <= 0 {
			return false, nil
		}
		until := e.now().Add(d)
		p.WaitUntil = &until
		p.WaitEventName = ""
		return true, nil
	case api.WaitUntilEvent:
		if cfg.WaitUntilEvent == "" {
			return false, nil
		}
		p.WaitUntil = nil
		p.WaitEventName = cfg.WaitUntilEvent
		return true, nil
	default:
		return false, fmt.Errorf("wait block %s has unknown wait type %q", blk.ID, cfg.WaitType)
	}
}

// superviseFailure applies the retry policy to a failed action block.
// Recoverable failures within budget re-arm the block behind a backoff
// deadline; everything else fails the progress terminally. AttemptCount
// only ever grows, so the budget spans the whole life of the row.
func (e *engineImpl) superviseFailure(ctx context.Context, p *api.Progress, blk *api.Block, cause error) (driveOutcome, error) {
	p.AttemptCount++
	p.LastExecutionError = cause.Error()
	e.recordAudit(ctx, p, api.AuditBlockFailed, blk.ID, cause.Error())

	if !api.IsRecoverableError(cause) || p.AttemptCount >= e.retry.MaxAttempts {
		return e.finish(ctx, p, api.ProgressFailed, cause)
	}

	until := e.now().Add(e.retry.BackoffFor(p.AttemptCount))
	p.WaitUntil = &until
	p.WaitEventName = ""
	if err := e.progress.UpdateProgress(ctx, p); err != nil {
		if errors.Is(err, persistence.ErrProgressConflict) {
			return driveConflict, nil
		}
		return 0, err
	}
	e.recordAudit(ctx, p, api.AuditRetryScheduled, blk.ID, fmt.Sprintf("attempt %d, next at %s", p.AttemptCount, until.Format(time.RFC3339)))
	e.observer.OnRetryScheduled(ctx, p, blk, until)
	return driveRetryArmed, nil
}

// finish moves the progress to a terminal status and records it. cause is
// non-nil only for failures.
func (e *engineImpl) finish(ctx context.Context, p *api.Progress, status api.ProgressStatus, cause error) (driveOutcome, error) {
	now := e.now()
	p.Status = status
	p.CurrentBlockID = ""
	p.WaitUntil = nil
	p.WaitEventName = ""

	var auditType api.AuditEventType
	var detail string
	switch status {
	case api.ProgressCompleted:
		p.CompletedAt = &now
		auditType = api.AuditProgressCompleted
	case api.ProgressExited:
		p.ExitedAt = &now
		auditType = api.AuditProgressExited
	case api.ProgressGoalReached:
		p.GoalReachedAt = &now
		auditType = api.AuditProgressGoalReached
	case api.ProgressFailed:
		p.FailedAt = &now
		auditType = api.AuditProgressFailed
		if cause != nil {
			p.LastExecutionError = cause.Error()
			detail = cause.Error()
		}
	}

	if err := e.progress.UpdateProgress(ctx, p); err != nil {
		if errors.Is(err, persistence.ErrProgressConflict) {
			return driveConflict, nil
		}
		return 0, err
	}
	e.recordAudit(ctx, p, auditType, "", detail)
	e.observer.OnProgressFinished(ctx, p)
	return driveFinished, nil
}

// advance moves the traversal pointer past from, persisting the move.
// Callers treat persistence.ErrProgressConflict as losing the row to a
// concurrent writer.
func (e *engineImpl) advance(ctx context.Context, p *api.Progress, from *api.Block, outcome string, snap api.VisitorSnapshot) error {
	next, err := e.nextBlockID(ctx, p.SeriesID, from.ID, outcome, snap)
	if err != nil {
		return err
	}
	p.CurrentBlockID = next
	p.WaitUntil = nil
	p.WaitEventName = ""
	return e.progress.UpdateProgress(ctx, p)
}

// nextBlockID resolves the edge to follow after a block: branch edges in
// insertion order first, then the default edge. A condition that errors or
// evaluates false is skipped, so a malformed branch falls through to the
// default instead of matching. An empty result means the traversal fell
// off the graph.
func (e *engineImpl) nextBlockID(ctx context.Context, seriesID, fromBlockID, outcome string, snap api.VisitorSnapshot) (string, error) {
	conns, err := e.graph.ListConnectionsFrom(ctx, seriesID, fromBlockID)
	if err != nil {
		return "", err
	}

	var fallback string
	var env map[string]any
	for _, c := range conns {
		if c.Condition == api.ConditionDefault {
			fallback = c.ToBlockID
			continue
		}
		if env == nil {
			env = branchEnv(outcome, snap)
		}
		ok, err := e.branches.Evaluate(c.Condition, env)
		if err != nil || !ok {
			continue
		}
		return c.ToBlockID, nil
	}
	return fallback, nil
}

func (e *engineImpl) eventCountFunc(ctx context.Context, workspaceID, visitorID string) rules.EventCountFunc {
	return func(eventName string, withinDays int) (int, error) {
		return e.events.CountEvents(ctx, workspaceID, visitorID, eventName, withinDays)
	}
}

// recordAudit appends a history event. Audit writes are best-effort and
// never gate execution.
func (e *engineImpl) recordAudit(ctx context.Context, p *api.Progress, typ api.AuditEventType, blockID, detail string) {
	_ = e.audit.AppendEvent(ctx, api.AuditEvent{
		ProgressID: p.ID,
		At:         e.now(),
		Type:       typ,
		SeriesID:   p.SeriesID,
		VisitorID:  p.VisitorID,
		BlockID:    blockID,
		Detail:     detail,
	})
}

func waitDetail(p *api.Progress) string {
	if p.WaitEventName != "" {
		return "event " + p.WaitEventName
	}
	if p.WaitUntil != nil {
		return "until " + p.WaitUntil.UTC().Format(time.RFC3339)
	}
	return ""
}
