package triggers

import (
	"fmt"
	"regexp"
	"strings"
)

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpRegex       = "regex"
)

// Condition filters events by comparing one payload field against a value.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Validate rejects conditions that can never evaluate.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	switch c.Operator {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith:
	case OpRegex:
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("invalid regex %q: %w", c.Value, err)
		}
	default:
		return fmt.Errorf("unknown condition operator %q", c.Operator)
	}
	return nil
}

// Evaluate applies the condition to an actual field value. Unknown operators
// and invalid regexes evaluate to false, never panic.
func (c Condition) Evaluate(actual string) bool {
	switch c.Operator {
	case OpEquals:
		return actual == c.Value
	case OpNotEquals:
		return actual != c.Value
	case OpContains:
		return strings.Contains(actual, c.Value)
	case OpNotContains:
		return !strings.Contains(actual, c.Value)
	case OpStartsWith:
		return strings.HasPrefix(actual, c.Value)
	case OpEndsWith:
		return strings.HasSuffix(actual, c.Value)
	case OpRegex:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	default:
		return false
	}
}

// EvaluateAll reports whether every condition holds against the event data
// (logical AND). A referenced field missing from the data fails the match.
func EvaluateAll(conditions []Condition, data map[string]any) bool {
	for _, c := range conditions {
		raw, ok := data[c.Field]
		if !ok {
			return false
		}
		if !c.Evaluate(stringify(raw)) {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
