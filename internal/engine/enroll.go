package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opencom-org/series/internal/persistence"
	"github.com/opencom-org/series/pkg/api"
	"github.com/opencom-org/series/pkg/rules"
)

func (e *engineImpl) EvaluateEnrollmentForVisitor(ctx context.Context, workspaceID, visitorID string, trig api.TriggerContext) (api.EnrollmentResult, error) {
	var res api.EnrollmentResult
	if workspaceID == "" || visitorID == "" {
		return res, api.NewValidationError("enrollment needs a workspace and a visitor")
	}

	active, err := e.graph.ListSeries(ctx, persistence.SeriesFilter{
		WorkspaceID: workspaceID,
		Status:      api.SeriesActive,
	})
	if err != nil {
		return res, err
	}
	if len(active) == 0 {
		return res, nil
	}

	snap, err := e.visitors.Snapshot(ctx, workspaceID, visitorID)
	if err != nil {
		return res, fmt.Errorf("visitor snapshot: %w", err)
	}
	in := rules.Input{
		Snapshot: snap,
		Trigger:  trig,
		Events:   e.eventCountFunc(ctx, workspaceID, visitorID),
	}

	for _, sr := range active {
		if !triggerMatches(sr.EntryTriggers, trig) {
			continue
		}
		res.Evaluated++

		// A visitor already waiting in the series is never re-enrolled.
		// The check is advisory; CreateProgress enforces it atomically.
		existing, err := e.progress.GetForVisitorSeries(ctx, visitorID, sr.ID)
		switch {
		case err == nil && existing.Status == api.ProgressWaiting:
			continue
		case err != nil && !errors.Is(err, api.ErrProgressNotFound):
			return res, err
		}

		// A nil tree admits everyone the trigger matched.
		if !rules.Evaluate(sr.EntryRules, in) {
			continue
		}

		p := &api.Progress{
			ID:             uuid.NewString(),
			WorkspaceID:    workspaceID,
			VisitorID:      visitorID,
			SeriesID:       sr.ID,
			Status:         api.ProgressWaiting,
			CurrentBlockID: sr.StartBlockID,
			EnteredAt:      e.now(),
		}
		if err := e.progress.CreateProgress(ctx, p); err != nil {
			if errors.Is(err, persistence.ErrProgressExists) {
				continue
			}
			return res, err
		}
		res.Entered++
		e.recordAudit(ctx, p, api.AuditProgressEnrolled, "", enrollDetail(trig))
		e.observer.OnEnrolled(ctx, p)

		// Drive synchronously: the first checkpoint may exit the visitor
		// before any block runs.
		if _, err := e.drive(ctx, sr, p, trig); err != nil {
			return res, err
		}
	}
	return res, nil
}

// triggerMatches reports whether any entry trigger accepts the incoming
// trigger context. A series without triggers matches nothing.
func triggerMatches(triggers []api.EntryTrigger, trig api.TriggerContext) bool {
	for _, t := range triggers {
		if t.Source != trig.Source {
			continue
		}
		if t.Source == api.TriggerSourceEvent && t.EventName != trig.EventName {
			continue
		}
		return true
	}
	return false
}

func enrollDetail(trig api.TriggerContext) string {
	if trig.Source == api.TriggerSourceEvent {
		return "event " + trig.EventName
	}
	return string(trig.Source)
}
