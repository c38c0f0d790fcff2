package api

import "time"

// SeriesStatus is the authoring lifecycle state of a Series.
type SeriesStatus string

const (
	// SeriesDraft series are invisible to enrollment.
	SeriesDraft SeriesStatus = "draft"
	// SeriesActive series are considered every time a trigger fires.
	SeriesActive SeriesStatus = "active"
)

// TriggerSource identifies what kind of external signal a trigger listens to.
type TriggerSource string

const (
	// TriggerSourceEvent matches a named visitor event (page view, custom
	// event, ...). EntryTrigger.EventName selects which one.
	TriggerSourceEvent TriggerSource = "event"
	// TriggerSourceAttribute matches any visitor attribute change.
	TriggerSourceAttribute TriggerSource = "attribute"
)

// EntryTrigger describes one way a visitor can be admitted into a series.
// A series is considered for enrollment when at least one of its entry
// triggers matches the incoming TriggerContext.
type EntryTrigger struct {
	Source TriggerSource `json:"source" yaml:"source"`

	// EventName is required when Source is TriggerSourceEvent and ignored
	// otherwise. Matching is exact and case-sensitive.
	EventName string `json:"event_name,omitempty" yaml:"event_name,omitempty"`
}

// TriggerContext carries the external signal that caused an enrollment
// evaluation: the kind of source and, for event sources, the event name.
type TriggerContext struct {
	Source    TriggerSource `json:"source" yaml:"source"`
	EventName string        `json:"event_name,omitempty" yaml:"event_name,omitempty"`
}

// Series is a named automation definition: entry triggers, optional
// entry/exit/goal rule trees, and a directed graph of blocks.
//
// A nil EntryRules tree means "always match" once a trigger fires. Exit and
// goal rules are only evaluated when present; a nil tree means the
// corresponding terminal transition never happens.
type Series struct {
	ID            string         `json:"id" yaml:"id"`
	WorkspaceID   string         `json:"workspace_id" yaml:"workspace_id"`
	Name          string         `json:"name" yaml:"name"`
	Status        SeriesStatus   `json:"status" yaml:"status"`
	EntryTriggers []EntryTrigger `json:"entry_triggers" yaml:"entry_triggers"`

	EntryRules *RuleNode `json:"entry_rules,omitempty" yaml:"entry_rules,omitempty"`
	ExitRules  *RuleNode `json:"exit_rules,omitempty" yaml:"exit_rules,omitempty"`
	GoalRules  *RuleNode `json:"goal_rules,omitempty" yaml:"goal_rules,omitempty"`

	// StartBlockID is the entry point of the block graph. The first block
	// added to a series becomes its start block.
	StartBlockID string `json:"start_block_id,omitempty" yaml:"start_block_id,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// BlockType identifies what a block does when executed.
type BlockType string

const (
	// BlockWait suspends the traversal, either for a duration or until a
	// named event arrives.
	BlockWait BlockType = "wait"
	// BlockChat injects a chat message through the chat channel.
	BlockChat BlockType = "chat"
	// BlockEmail dispatches a transactional email through the email channel.
	BlockEmail BlockType = "email"
)

// WaitKind selects which suspension mechanism a wait block uses.
type WaitKind string

const (
	// WaitDuration suspends until a computed deadline elapses; the backstop
	// sweep resumes it.
	WaitDuration WaitKind = "duration"
	// WaitUntilEvent suspends until an exactly matching named event fires;
	// the sweep never touches it.
	WaitUntilEvent WaitKind = "until_event"
)

// WaitUnit is the time unit of a duration wait.
type WaitUnit string

const (
	UnitSeconds WaitUnit = "seconds"
	UnitMinutes WaitUnit = "minutes"
	UnitHours   WaitUnit = "hours"
	UnitDays    WaitUnit = "days"
)

// WaitConfig configures a wait block. Exactly one suspension mechanism is
// used: Duration+Unit when WaitType is WaitDuration, WaitUntilEvent when
// WaitType is WaitUntilEvent.
type WaitConfig struct {
	WaitType WaitKind `json:"wait_type" yaml:"wait_type"`

	Duration int      `json:"duration,omitempty" yaml:"duration,omitempty"`
	Unit     WaitUnit `json:"unit,omitempty" yaml:"unit,omitempty"`

	WaitUntilEvent string `json:"wait_until_event,omitempty" yaml:"wait_until_event,omitempty"`
}

// Interval converts the duration configuration into a time.Duration.
// It returns zero for non-duration waits and unrecognized units.
func (c WaitConfig) Interval() time.Duration {
	if c.WaitType != WaitDuration || c.Duration <= 0 {
		return 0
	}
	d := time.Duration(c.Duration)
	switch c.Unit {
	case UnitSeconds:
		return d * time.Second
	case UnitMinutes:
		return d * time.Minute
	case UnitHours:
		return d * time.Hour
	case UnitDays:
		return d * 24 * time.Hour
	default:
		return 0
	}
}

// MessageConfig is the template payload of a chat or email block.
type MessageConfig struct {
	// Subject is required for email blocks and ignored for chat blocks.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Body    string `json:"body" yaml:"body"`
}

// Position is authoring-canvas metadata with no runtime meaning.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// BlockConfig carries the type-specific configuration of a block. Exactly
// one field is set according to Block.Type.
type BlockConfig struct {
	Wait    *WaitConfig    `json:"wait,omitempty" yaml:"wait,omitempty"`
	Message *MessageConfig `json:"message,omitempty" yaml:"message,omitempty"`
}

// Block is one step in a series graph. A block belongs to exactly one
// series and is executed at most once per traversal visit.
type Block struct {
	ID       string      `json:"id" yaml:"id"`
	SeriesID string      `json:"series_id" yaml:"series_id"`
	Type     BlockType   `json:"type" yaml:"type"`
	Config   BlockConfig `json:"config" yaml:"config"`
	Position Position    `json:"position" yaml:"position"`
}

// ConditionDefault is the baseline edge condition: the edge taken after a
// block executes when no branch condition matches.
const ConditionDefault = "default"

// Connection is a directed edge between two blocks of the same series.
//
// Condition is ConditionDefault for the baseline edge. Any other value is
// treated as a branch expression evaluated against the executed block's
// outcome; a block has at most one default edge.
type Connection struct {
	SeriesID    string `json:"series_id" yaml:"series_id"`
	FromBlockID string `json:"from_block_id" yaml:"from_block_id"`
	ToBlockID   string `json:"to_block_id" yaml:"to_block_id"`
	Condition   string `json:"condition" yaml:"condition"`
}

// SeriesListOptions controls how series are listed.
// Zero values mean "no filter" for that field.
type SeriesListOptions struct {
	// WorkspaceID, if non-empty, limits results to series of the workspace.
	WorkspaceID string

	// Status, if non-empty, limits results to series with the given status.
	Status SeriesStatus
}
