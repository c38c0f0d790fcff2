package api

import "context"

// VisitorSnapshot is a read-only view of one visitor's attributes at
// evaluation time. System and custom attributes are separate namespaces;
// rule conditions select one via PropertySource.
type VisitorSnapshot struct {
	Attributes       map[string]any `json:"attributes"`
	CustomAttributes map[string]any `json:"custom_attributes"`
}

// Email returns the visitor's email address from the standard attributes,
// or "" when none is set.
func (s VisitorSnapshot) Email() string {
	if v, ok := s.Attributes["email"]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// VisitorStore provides visitor attribute snapshots. The engine only reads
// from it; attribute writes belong to the embedding application.
//
// Implementations should return an empty snapshot, not an error, for
// unknown visitors: rule conditions on missing attributes fail closed.
type VisitorStore interface {
	Snapshot(ctx context.Context, workspaceID, visitorID string) (VisitorSnapshot, error)
}

// EventCounter resolves event-sourced rule conditions: how many times a
// visitor performed a named event within a trailing window.
// withinDays <= 0 means "ever".
type EventCounter interface {
	CountEvents(ctx context.Context, workspaceID, visitorID, eventName string, withinDays int) (int, error)
}

// ChatChannel injects chat messages on behalf of chat blocks.
// Sends are at-least-once across retries; deduplication, if needed,
// belongs to the channel.
type ChatChannel interface {
	SendMessage(ctx context.Context, workspaceID, visitorID string, msg MessageConfig) error
}

// EmailChannel dispatches transactional email on behalf of email blocks.
// Implementations are expected to verify their own preconditions and wrap
// failures that may resolve later (a missing email address, a throttled
// provider) with NewRecoverableError.
type EmailChannel interface {
	SendEmail(ctx context.Context, workspaceID, visitorID string, msg MessageConfig) error
}
