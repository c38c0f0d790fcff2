package series

import (
	"context"
	"fmt"

	"github.com/opencom-org/series/pkg/api"
)

// Builder provides a fluent API for defining series:
//
//	sr, err := series.NewBuilder("Welcome", workspaceID).
//	    TriggeredByEvent("signed_up").
//	    Chat("Welcome aboard!").
//	    WaitDays(2).
//	    Email("Getting started", "Three things to try this week ...").
//	    Apply(ctx, engine)
//
// Blocks are chained in order with default connections. Branch conditions
// and non-linear graphs go through Engine.AddConnection directly.
type Builder struct {
	def    api.Series
	blocks []api.Block
}

// NewBuilder creates a new series builder with the given name and workspace.
func NewBuilder(name, workspaceID string) *Builder {
	return &Builder{
		def: api.Series{
			Name:        name,
			WorkspaceID: workspaceID,
		},
	}
}

// Name returns the series name.
func (b *Builder) Name() string {
	return b.def.Name
}

// TriggeredByEvent adds an entry trigger matching the named visitor event.
func (b *Builder) TriggeredByEvent(eventName string) *Builder {
	if eventName == "" {
		panic("series: trigger event name must not be empty")
	}
	b.def.EntryTriggers = append(b.def.EntryTriggers, api.EntryTrigger{
		Source:    api.TriggerSourceEvent,
		EventName: eventName,
	})
	return b
}

// TriggeredByAttributeChange adds an entry trigger matching any visitor
// attribute change.
func (b *Builder) TriggeredByAttributeChange() *Builder {
	b.def.EntryTriggers = append(b.def.EntryTriggers, api.EntryTrigger{
		Source: api.TriggerSourceAttribute,
	})
	return b
}

// EntryRules gates enrollment on the given rule tree.
func (b *Builder) EntryRules(rules *RuleNode) *Builder {
	b.def.EntryRules = rules
	return b
}

// ExitRules removes enrolled visitors once the tree matches at a checkpoint.
func (b *Builder) ExitRules(rules *RuleNode) *Builder {
	b.def.ExitRules = rules
	return b
}

// GoalRules finishes enrolled visitors as converted once the tree matches
// at a checkpoint. Exit rules win when both match.
func (b *Builder) GoalRules(rules *RuleNode) *Builder {
	b.def.GoalRules = rules
	return b
}

// Chat appends a chat message block.
func (b *Builder) Chat(body string) *Builder {
	if body == "" {
		panic("series: chat body must not be empty")
	}
	b.blocks = append(b.blocks, ChatBlock(body))
	return b
}

// Email appends an email block.
func (b *Builder) Email(subject, body string) *Builder {
	if subject == "" || body == "" {
		panic(fmt.Sprintf("series: email needs subject and body, got subject=%q", subject))
	}
	b.blocks = append(b.blocks, EmailBlock(subject, body))
	return b
}

// Wait appends a duration wait block.
func (b *Builder) Wait(amount int, unit WaitUnit) *Builder {
	b.blocks = append(b.blocks, WaitBlock(amount, unit))
	return b
}

// WaitHours appends a wait block measured in hours.
func (b *Builder) WaitHours(n int) *Builder {
	return b.Wait(n, api.UnitHours)
}

// WaitDays appends a wait block measured in days.
func (b *Builder) WaitDays(n int) *Builder {
	return b.Wait(n, api.UnitDays)
}

// WaitForEvent appends a block that waits until the named event fires for
// the visitor.
func (b *Builder) WaitForEvent(eventName string) *Builder {
	if eventName == "" {
		panic("series: awaited event name must not be empty")
	}
	b.blocks = append(b.blocks, EventWaitBlock(eventName))
	return b
}

// Apply creates the series, its blocks, and the default connections chaining
// them in order. The series is left in draft status; activate it with
// Engine.ActivateSeries once it looks right.
func (b *Builder) Apply(ctx context.Context, eng Engine) (*Series, error) {
	sr, err := eng.CreateSeries(ctx, b.def)
	if err != nil {
		return nil, err
	}

	var prev *api.Block
	for _, blk := range b.blocks {
		created, err := eng.AddBlock(ctx, sr.ID, blk)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			err := eng.AddConnection(ctx, sr.ID, api.Connection{
				FromBlockID: prev.ID,
				ToBlockID:   created.ID,
			})
			if err != nil {
				return nil, err
			}
		}
		prev = created
	}

	// Re-fetch so the returned definition carries the start block.
	return eng.GetSeries(ctx, sr.ID)
}

// MustApply is like Apply but panics on error.
// Useful for initialization in main().
func (b *Builder) MustApply(ctx context.Context, eng Engine) *Series {
	sr, err := b.Apply(ctx, eng)
	if err != nil {
		panic(err)
	}
	return sr
}
