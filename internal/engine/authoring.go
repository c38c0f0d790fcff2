package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/opencom-org/series/internal/persistence"
	"github.com/opencom-org/series/pkg/api"
	"github.com/opencom-org/series/pkg/rules"
)

func (e *engineImpl) CreateSeries(ctx context.Context, s api.Series) (*api.Series, error) {
	if s.Name == "" {
		return nil, api.NewValidationError("series name is required")
	}
	if s.WorkspaceID == "" {
		return nil, api.NewValidationError("series workspace id is required")
	}
	if len(s.EntryTriggers) == 0 {
		return nil, api.NewValidationError("series %q needs at least one entry trigger", s.Name)
	}
	for i, t := range s.EntryTriggers {
		switch t.Source {
		case api.TriggerSourceEvent:
			if t.EventName == "" {
				return nil, api.NewValidationError("entry trigger %d: event triggers need an event name", i)
			}
		case api.TriggerSourceAttribute:
		default:
			return nil, api.NewValidationError("entry trigger %d: unknown source %q", i, t.Source)
		}
	}
	if err := validateRuleTree("entry rules", s.EntryRules); err != nil {
		return nil, err
	}
	if err := validateRuleTree("exit rules", s.ExitRules); err != nil {
		return nil, err
	}
	if err := validateRuleTree("goal rules", s.GoalRules); err != nil {
		return nil, err
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = api.SeriesDraft
	s.StartBlockID = ""
	if s.CreatedAt.IsZero() {
		s.CreatedAt = e.now()
	}

	if err := e.graph.SaveSeries(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (e *engineImpl) GetSeries(ctx context.Context, id string) (*api.Series, error) {
	return e.graph.GetSeries(ctx, id)
}

func (e *engineImpl) ListSeries(ctx context.Context, opts api.SeriesListOptions) ([]*api.Series, error) {
	return e.graph.ListSeries(ctx, persistence.SeriesFilter{
		WorkspaceID: opts.WorkspaceID,
		Status:      opts.Status,
	})
}

func (e *engineImpl) AddBlock(ctx context.Context, seriesID string, b api.Block) (*api.Block, error) {
	sr, err := e.graph.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if err := validateBlock(&b); err != nil {
		return nil, err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.SeriesID = seriesID

	if err := e.graph.SaveBlock(ctx, &b); err != nil {
		return nil, err
	}
	if sr.StartBlockID == "" {
		if err := e.graph.SetStartBlock(ctx, seriesID, b.ID); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

func (e *engineImpl) AddConnection(ctx context.Context, seriesID string, c api.Connection) error {
	if _, err := e.graph.GetSeries(ctx, seriesID); err != nil {
		return err
	}
	c.SeriesID = seriesID
	if c.Condition == "" {
		c.Condition = api.ConditionDefault
	}
	if c.FromBlockID == "" || c.ToBlockID == "" {
		return api.NewValidationError("connection needs both a from and a to block")
	}
	if c.FromBlockID == c.ToBlockID {
		return api.NewValidationError("connection from block %s to itself would loop forever", c.FromBlockID)
	}
	if _, err := e.graph.GetBlock(ctx, seriesID, c.FromBlockID); err != nil {
		return api.NewValidationError("connection from unknown block %s", c.FromBlockID)
	}
	if _, err := e.graph.GetBlock(ctx, seriesID, c.ToBlockID); err != nil {
		return api.NewValidationError("connection to unknown block %s", c.ToBlockID)
	}

	existing, err := e.graph.ListConnections(ctx, seriesID)
	if err != nil {
		return err
	}
	if c.Condition == api.ConditionDefault {
		for _, ec := range existing {
			if ec.FromBlockID == c.FromBlockID && ec.Condition == api.ConditionDefault {
				return api.NewValidationError("block %s already has a default connection", c.FromBlockID)
			}
		}
	}
	if closesCycle(existing, c) {
		return api.NewValidationError("connection from %s to %s would create a cycle", c.FromBlockID, c.ToBlockID)
	}

	return e.graph.SaveConnection(ctx, &c)
}

func (e *engineImpl) ActivateSeries(ctx context.Context, id string) error {
	if _, err := e.graph.GetSeries(ctx, id); err != nil {
		return err
	}
	return e.graph.UpdateSeriesStatus(ctx, id, api.SeriesActive)
}

func (e *engineImpl) DeactivateSeries(ctx context.Context, id string) error {
	if _, err := e.graph.GetSeries(ctx, id); err != nil {
		return err
	}
	return e.graph.UpdateSeriesStatus(ctx, id, api.SeriesDraft)
}

func validateRuleTree(label string, node *api.RuleNode) error {
	if node == nil {
		return nil
	}
	if err := rules.Validate(node); err != nil {
		return api.NewValidationError("%s: %v", label, err)
	}
	return nil
}

func validateBlock(b *api.Block) error {
	switch b.Type {
	case api.BlockWait:
		cfg := b.Config.Wait
		if cfg == nil {
			return api.NewValidationError("wait block needs a wait config")
		}
		switch cfg.WaitType {
		case api.WaitDuration:
			if cfg.Duration <= 0 {
				return api.NewValidationError("duration wait needs a positive duration")
			}
			if cfg.Interval() <= 0 {
				return api.NewValidationError("duration wait has unknown unit %q", cfg.Unit)
			}
		case api.WaitUntilEvent:
			if cfg.WaitUntilEvent == "" {
				return api.NewValidationError("event wait needs an event name")
			}
		default:
			return api.NewValidationError("unknown wait type %q", cfg.WaitType)
		}
	case api.BlockChat:
		if b.Config.Message == nil || b.Config.Message.Body == "" {
			return api.NewValidationError("chat block needs a message body")
		}
	case api.BlockEmail:
		msg := b.Config.Message
		if msg == nil || msg.Body == "" {
			return api.NewValidationError("email block needs a message body")
		}
		if msg.Subject == "" {
			return api.NewValidationError("email block needs a subject")
		}
	default:
		return api.NewValidationError("unknown block type %q", b.Type)
	}
	return nil
}

// closesCycle reports whether adding c to the existing edges would make
// c.FromBlockID reachable from c.ToBlockID.
func closesCycle(existing []*api.Connection, c api.Connection) bool {
	adj := make(map[string][]string, len(existing))
	for _, ec := range existing {
		adj[ec.FromBlockID] = append(adj[ec.FromBlockID], ec.ToBlockID)
	}

	stack := []string{c.ToBlockID}
	seen := make(map[string]bool)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == c.FromBlockID {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, adj[n]...)
	}
	return false
}
