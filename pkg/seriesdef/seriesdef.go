// Package seriesdef reads series definition documents. A document is a
// YAML or JSON file carrying one complete series: the header with its
// triggers and rules, the block graph, and the connections between blocks.
//
// Documents are validated against an embedded JSON schema before any
// semantic decoding, so a malformed file fails with field-level detail
// instead of a zero-valued struct. Apply registers a parsed document
// through the regular authoring API.
package seriesdef

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opencom-org/series/pkg/api"
)

// Document is one complete series definition.
type Document struct {
	Series SeriesDef `json:"series" yaml:"series"`

	// Blocks are stored in document order. The first block becomes the
	// start block of the series.
	Blocks []BlockDef `json:"blocks" yaml:"blocks"`

	Connections []ConnectionDef `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// SeriesDef is the series header of a document: everything about the
// series except its block graph.
type SeriesDef struct {
	Name        string `json:"name" yaml:"name"`
	WorkspaceID string `json:"workspace_id" yaml:"workspace_id"`

	// Status selects whether Apply leaves the series in draft or
	// activates it. Empty means draft.
	Status api.SeriesStatus `json:"status,omitempty" yaml:"status,omitempty"`

	EntryTriggers []api.EntryTrigger `json:"entry_triggers" yaml:"entry_triggers"`

	EntryRules *api.RuleNode `json:"entry_rules,omitempty" yaml:"entry_rules,omitempty"`
	ExitRules  *api.RuleNode `json:"exit_rules,omitempty" yaml:"exit_rules,omitempty"`
	GoalRules  *api.RuleNode `json:"goal_rules,omitempty" yaml:"goal_rules,omitempty"`
}

// BlockDef declares one block. ID is the document-local handle that
// connections refer to; it is stored verbatim, so it must be unique
// within the document.
type BlockDef struct {
	ID       string          `json:"id" yaml:"id"`
	Type     api.BlockType   `json:"type" yaml:"type"`
	Config   api.BlockConfig `json:"config" yaml:"config"`
	Position api.Position    `json:"position,omitempty" yaml:"position,omitempty"`
}

// ConnectionDef declares a directed edge between two declared blocks.
// An empty Condition means the default edge.
type ConnectionDef struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Parse decodes a definition document from YAML or JSON bytes. The raw
// document is checked against the embedded schema first; shape and
// reference problems are reported as api.ValidationError.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, api.NewValidationError("definition document is empty")
	}

	// Decode generically and re-encode as JSON so the schema sees the
	// document as written, not the struct after unknown fields were
	// dropped.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode definition for validation: %w", err)
	}
	if err := validateAgainstSchema(jsonData); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if err := doc.checkGraph(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseFile reads and parses a definition document from disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// checkGraph verifies document-internal references: unique block ids and
// connections that only name declared blocks. Everything deeper, wait
// configs, rule trees, cycles, duplicate default edges, is left to the
// engine during Apply.
func (d *Document) checkGraph() error {
	seen := make(map[string]bool, len(d.Blocks))
	for _, b := range d.Blocks {
		if seen[b.ID] {
			return api.NewValidationError("duplicate block id %q", b.ID)
		}
		seen[b.ID] = true
	}
	for _, c := range d.Connections {
		if !seen[c.From] {
			return api.NewValidationError("connection from unknown block %q", c.From)
		}
		if !seen[c.To] {
			return api.NewValidationError("connection to unknown block %q", c.To)
		}
	}
	return nil
}

// Apply registers the document through the authoring API: the series is
// created, blocks are added in document order, connections are wired,
// and the series is activated when the document says status active.
// The fully registered series is returned.
func (d *Document) Apply(ctx context.Context, eng api.Engine) (*api.Series, error) {
	created, err := eng.CreateSeries(ctx, api.Series{
		Name:          d.Series.Name,
		WorkspaceID:   d.Series.WorkspaceID,
		EntryTriggers: d.Series.EntryTriggers,
		EntryRules:    d.Series.EntryRules,
		ExitRules:     d.Series.ExitRules,
		GoalRules:     d.Series.GoalRules,
	})
	if err != nil {
		return nil, err
	}

	for _, b := range d.Blocks {
		blk := api.Block{
			ID:       b.ID,
			Type:     b.Type,
			Config:   b.Config,
			Position: b.Position,
		}
		if _, err := eng.AddBlock(ctx, created.ID, blk); err != nil {
			return nil, fmt.Errorf("add block %q: %w", b.ID, err)
		}
	}

	for _, c := range d.Connections {
		conn := api.Connection{
			FromBlockID: c.From,
			ToBlockID:   c.To,
			Condition:   c.Condition,
		}
		if err := eng.AddConnection(ctx, created.ID, conn); err != nil {
			return nil, fmt.Errorf("connect %q to %q: %w", c.From, c.To, err)
		}
	}

	if d.Series.Status == api.SeriesActive {
		if err := eng.ActivateSeries(ctx, created.ID); err != nil {
			return nil, fmt.Errorf("activate series %s: %w", created.ID, err)
		}
	}
	return eng.GetSeries(ctx, created.ID)
}
