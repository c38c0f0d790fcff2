// Package rules evaluates audience rule trees against visitor state.
//
// Evaluation is pure and fails closed: unknown node kinds, unknown
// operators, malformed nodes, missing event filters, and event-counter
// errors all evaluate to false rather than panicking or returning an
// error, so a corrupt rule definition can never become an unintended
// "match everyone".
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opencom-org/series/pkg/api"
)

// EventCountFunc resolves the count of a named event for the visitor under
// evaluation. withinDays <= 0 means "ever".
type EventCountFunc func(eventName string, withinDays int) (int, error)

// Input is everything a rule tree can be evaluated against: the visitor's
// attribute snapshot, the trigger that caused the evaluation, and an event
// count resolver for event-sourced conditions.
//
// Trigger is zero-valued at non-enrollment checkpoints (event resumes and
// sweep resumes have no originating trigger).
type Input struct {
	Snapshot api.VisitorSnapshot
	Trigger  api.TriggerContext
	Events   EventCountFunc
}

// Evaluate reports whether the rule tree matches the input.
//
// A nil node is an unconditional match. Callers that treat an absent tree
// as "no rule at all" (exit/goal transitions) must check for nil before
// calling.
func Evaluate(node *api.RuleNode, in Input) bool {
	if node == nil {
		return true
	}

	switch node.Kind {
	case api.RuleKindCondition:
		if node.Condition == nil {
			return false
		}
		return evalCondition(*node.Condition, in)

	case api.RuleKindGroup:
		if node.Group == nil {
			return false
		}
		return evalGroup(*node.Group, in)

	default:
		return false
	}
}

func evalGroup(g api.RuleGroup, in Input) bool {
	switch g.Operator {
	case api.GroupAnd:
		for i := range g.Conditions {
			if !Evaluate(&g.Conditions[i], in) {
				return false
			}
		}
		return true

	case api.GroupOr:
		for i := range g.Conditions {
			if Evaluate(&g.Conditions[i], in) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

func evalCondition(c api.RuleCondition, in Input) bool {
	if c.Property.Source == api.PropertyEvent {
		return evalEventCondition(c, in)
	}

	value, present := lookup(c.Property, in.Snapshot)

	switch c.Operator {
	case api.OpIsSet:
		return present
	case api.OpIsUnset:
		return !present
	}

	// Every comparison operator requires the attribute to be present.
	// A missing attribute never matches, including not_equals: absence is
	// only observable through is_unset.
	if !present {
		return false
	}

	switch c.Operator {
	case api.OpEquals:
		return looseEqual(value, c.Value)
	case api.OpNotEquals:
		return !looseEqual(value, c.Value)
	case api.OpContains:
		return strings.Contains(str(value), str(c.Value))
	case api.OpNotContains:
		return !strings.Contains(str(value), str(c.Value))
	case api.OpStartsWith:
		return strings.HasPrefix(str(value), str(c.Value))
	case api.OpEndsWith:
		return strings.HasSuffix(str(value), str(c.Value))
	case api.OpGreaterThan:
		a, aok := toFloat(value)
		b, bok := toFloat(c.Value)
		return aok && bok && a > b
	case api.OpLessThan:
		a, aok := toFloat(value)
		b, bok := toFloat(c.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

func evalEventCondition(c api.RuleCondition, in Input) bool {
	filter := c.Property.EventFilter
	if filter == nil || in.Events == nil {
		return false
	}

	count, err := in.Events(c.Property.Key, filter.WithinDays)
	if err != nil {
		return false
	}

	switch filter.CountOperator {
	case api.CountAtLeast:
		return count >= filter.Count
	case api.CountAtMost:
		return count <= filter.Count
	case api.CountExactly:
		return count == filter.Count
	default:
		return false
	}
}

// lookup resolves a property against the snapshot. A nil stored value is
// treated as absent.
func lookup(p api.RuleProperty, snap api.VisitorSnapshot) (any, bool) {
	var m map[string]any
	switch p.Source {
	case api.PropertySystem:
		m = snap.Attributes
	case api.PropertyCustom:
		m = snap.CustomAttributes
	default:
		return nil, false
	}
	v, ok := m[p.Key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// looseEqual compares numerically when both sides coerce to numbers, and
// by string form otherwise, so attribute values decoded from JSON or YAML
// compare sensibly against authored literals.
func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return str(a) == str(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
