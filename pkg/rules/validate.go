package rules

import (
	"fmt"

	"github.com/opencom-org/series/pkg/api"
)

var knownOperators = map[api.RuleOperator]bool{
	api.OpEquals:      true,
	api.OpNotEquals:   true,
	api.OpContains:    true,
	api.OpNotContains: true,
	api.OpStartsWith:  true,
	api.OpEndsWith:    true,
	api.OpGreaterThan: true,
	api.OpLessThan:    true,
	api.OpIsSet:       true,
	api.OpIsUnset:     true,
}

var knownCountOperators = map[api.CountOperator]bool{
	api.CountAtLeast: true,
	api.CountAtMost:  true,
	api.CountExactly: true,
}

// Validate checks a rule tree structurally so authoring callers can reject
// malformed definitions up front. Runtime evaluation still fails closed on
// anything that slips through, for example trees loaded from older storage.
//
// A nil tree is valid: it stands for "no rule".
func Validate(node *api.RuleNode) error {
	if node == nil {
		return nil
	}
	return validateNode(node, "rules")
}

func validateNode(node *api.RuleNode, path string) error {
	switch node.Kind {
	case api.RuleKindCondition:
		if node.Condition == nil {
			return fmt.Errorf("%s: condition node without condition", path)
		}
		return validateCondition(node.Condition, path)

	case api.RuleKindGroup:
		if node.Group == nil {
			return fmt.Errorf("%s: group node without group", path)
		}
		if node.Group.Operator != api.GroupAnd && node.Group.Operator != api.GroupOr {
			return fmt.Errorf("%s: unknown group operator %q", path, node.Group.Operator)
		}
		for i := range node.Group.Conditions {
			child := &node.Group.Conditions[i]
			if err := validateNode(child, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%s: unknown node kind %q", path, node.Kind)
	}
}

func validateCondition(c *api.RuleCondition, path string) error {
	if c.Property.Key == "" {
		return fmt.Errorf("%s: condition without property key", path)
	}

	switch c.Property.Source {
	case api.PropertySystem, api.PropertyCustom:
		if !knownOperators[c.Operator] {
			return fmt.Errorf("%s: unknown operator %q", path, c.Operator)
		}
		return nil

	case api.PropertyEvent:
		filter := c.Property.EventFilter
		if filter == nil {
			return fmt.Errorf("%s: event condition without event filter", path)
		}
		if !knownCountOperators[filter.CountOperator] {
			return fmt.Errorf("%s: unknown count operator %q", path, filter.CountOperator)
		}
		if filter.Count < 0 {
			return fmt.Errorf("%s: negative event count", path)
		}
		if filter.WithinDays < 0 {
			return fmt.Errorf("%s: negative event window", path)
		}
		return nil

	default:
		return fmt.Errorf("%s: unknown property source %q", path, c.Property.Source)
	}
}
