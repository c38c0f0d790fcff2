package api

// RuleKind tags a rule tree node as a leaf condition or a nested group.
type RuleKind string

const (
	RuleKindCondition RuleKind = "condition"
	RuleKindGroup     RuleKind = "group"
)

// GroupOperator combines the results of a group's child nodes.
type GroupOperator string

const (
	// GroupAnd matches when every child matches. An empty group matches.
	GroupAnd GroupOperator = "and"
	// GroupOr matches when at least one child matches. An empty group
	// does not match.
	GroupOr GroupOperator = "or"
)

// PropertySource identifies where a condition's property value comes from.
type PropertySource string

const (
	// PropertySystem reads a standard visitor attribute (plan, country, ...).
	PropertySystem PropertySource = "system"
	// PropertyCustom reads a workspace-defined custom attribute.
	PropertyCustom PropertySource = "custom"
	// PropertyEvent resolves a named event count through the event counter
	// collaborator; EventFilter supplies the count semantics.
	PropertyEvent PropertySource = "event"
)

// RuleOperator compares a property value against a condition value.
type RuleOperator string

const (
	OpEquals      RuleOperator = "equals"
	OpNotEquals   RuleOperator = "not_equals"
	OpContains    RuleOperator = "contains"
	OpNotContains RuleOperator = "not_contains"
	OpStartsWith  RuleOperator = "starts_with"
	OpEndsWith    RuleOperator = "ends_with"
	OpGreaterThan RuleOperator = "greater_than"
	OpLessThan    RuleOperator = "less_than"
	OpIsSet       RuleOperator = "is_set"
	OpIsUnset     RuleOperator = "is_unset"
)

// CountOperator compares an observed event count against EventFilter.Count.
type CountOperator string

const (
	CountAtLeast CountOperator = "at_least"
	CountAtMost  CountOperator = "at_most"
	CountExactly CountOperator = "exactly"
)

// EventFilter is the count predicate of an event-sourced condition:
// "the visitor performed <key> <countOperator> <count> times within
// <withinDays> days". WithinDays zero means "ever".
type EventFilter struct {
	CountOperator CountOperator `json:"count_operator" yaml:"count_operator"`
	Count         int           `json:"count" yaml:"count"`
	WithinDays    int           `json:"within_days,omitempty" yaml:"within_days,omitempty"`
}

// RuleProperty names the value a condition inspects.
type RuleProperty struct {
	Source PropertySource `json:"source" yaml:"source"`
	Key    string         `json:"key" yaml:"key"`

	// EventFilter is required when Source is PropertyEvent and ignored
	// otherwise.
	EventFilter *EventFilter `json:"event_filter,omitempty" yaml:"event_filter,omitempty"`
}

// RuleCondition is a leaf predicate: property, operator, comparison value.
// Value is unused by is_set/is_unset and by event-sourced conditions.
type RuleCondition struct {
	Property RuleProperty `json:"property" yaml:"property"`
	Operator RuleOperator `json:"operator" yaml:"operator"`
	Value    any          `json:"value,omitempty" yaml:"value,omitempty"`
}

// RuleGroup combines child nodes with a boolean operator. Groups nest to
// arbitrary depth.
type RuleGroup struct {
	Operator   GroupOperator `json:"operator" yaml:"operator"`
	Conditions []RuleNode    `json:"conditions" yaml:"conditions"`
}

// RuleNode is one node of an audience rule tree: either a leaf condition
// or a group of nested nodes, selected by Kind.
//
// A nil *RuleNode is an unconditional match. Callers that treat an absent
// tree as "no rule" (exit/goal transitions) must check for nil before
// evaluating.
type RuleNode struct {
	Kind      RuleKind       `json:"kind" yaml:"kind"`
	Condition *RuleCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Group     *RuleGroup     `json:"group,omitempty" yaml:"group,omitempty"`
}

// Cond builds a leaf condition node on an attribute property.
func Cond(source PropertySource, key string, op RuleOperator, value any) *RuleNode {
	return &RuleNode{
		Kind: RuleKindCondition,
		Condition: &RuleCondition{
			Property: RuleProperty{Source: source, Key: key},
			Operator: op,
			Value:    value,
		},
	}
}

// EventCond builds a leaf condition node on an event count.
func EventCond(eventName string, countOp CountOperator, count, withinDays int) *RuleNode {
	return &RuleNode{
		Kind: RuleKindCondition,
		Condition: &RuleCondition{
			Property: RuleProperty{
				Source: PropertyEvent,
				Key:    eventName,
				EventFilter: &EventFilter{
					CountOperator: countOp,
					Count:         count,
					WithinDays:    withinDays,
				},
			},
		},
	}
}

// AllOf groups nodes with GroupAnd.
func AllOf(nodes ...*RuleNode) *RuleNode {
	return group(GroupAnd, nodes)
}

// AnyOf groups nodes with GroupOr.
func AnyOf(nodes ...*RuleNode) *RuleNode {
	return group(GroupOr, nodes)
}

func group(op GroupOperator, nodes []*RuleNode) *RuleNode {
	children := make([]RuleNode, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			children = append(children, *n)
		}
	}
	return &RuleNode{
		Kind:  RuleKindGroup,
		Group: &RuleGroup{Operator: op, Conditions: children},
	}
}
