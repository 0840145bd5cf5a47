package domain

import "strings"

// MatchOperator enumerates routing rule condition operators.
type MatchOperator string

const (
	MatchEquals   MatchOperator = "equals"
	MatchContains MatchOperator = "contains"
	MatchIn       MatchOperator = "in"
)

// Routing rule condition fields.
const (
	RuleFieldCategory   = "category"
	RuleFieldPriority   = "priority"
	RuleFieldDepartment = "department"
)

// RuleCondition is one predicate over a ticket attribute. Values is only
// consulted by the "in" operator.
type RuleCondition struct {
	Field    string        `json:"field"`
	Operator MatchOperator `json:"operator"`
	Value    string        `json:"value,omitempty"`
	Values   []string      `json:"values,omitempty"`
}

// Matches evaluates the condition against ticket attributes. Unknown fields
// and operators never match.
func (c RuleCondition) Matches(attrs TicketAttributes) bool {
	var subject string
	switch c.Field {
	case RuleFieldCategory:
		subject = attrs.Category
	case RuleFieldPriority:
		subject = attrs.Priority
	case RuleFieldDepartment:
		subject = attrs.Department
	default:
		return false
	}

	switch c.Operator {
	case MatchEquals:
		return subject == c.Value
	case MatchContains:
		return strings.Contains(subject, c.Value)
	case MatchIn:
		for _, v := range c.Values {
			if subject == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RoutingRule adjusts an integration's routing score when every one of its
// conditions matches the ticket.
type RoutingRule struct {
	Conditions         []RuleCondition `json:"conditions"`
	PriorityAdjustment int             `json:"priority_adjustment"`
}

// Matches requires all conditions to hold; a rule with no conditions
// matches every ticket.
func (r RoutingRule) Matches(attrs TicketAttributes) bool {
	for _, cond := range r.Conditions {
		if !cond.Matches(attrs) {
			return false
		}
	}
	return true
}

// SupportsTicket applies the integration's capability filters: a non-empty
// category/priority list or department mapping excludes tickets whose
// attribute is absent from it.
func (i *Integration) SupportsTicket(attrs TicketAttributes) bool {
	if len(i.SupportsCategories) > 0 && !containsString(i.SupportsCategories, attrs.Category) {
		return false
	}
	if len(i.SupportsPriorities) > 0 && !containsString(i.SupportsPriorities, attrs.Priority) {
		return false
	}
	if len(i.DepartmentMapping) > 0 {
		if _, ok := i.DepartmentMapping[attrs.Department]; !ok {
			return false
		}
	}
	return true
}

// RouteScore sums the default priority with the adjustments of every
// matching rule. Lower scores route first.
func (i *Integration) RouteScore(attrs TicketAttributes) int {
	score := i.DefaultPriority
	for _, rule := range i.RoutingRules {
		if rule.Matches(attrs) {
			score += rule.PriorityAdjustment
		}
	}
	return score
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
