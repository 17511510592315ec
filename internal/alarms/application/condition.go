package application

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	alarms "vesselwatch/internal/alarms/domain"
)

// Comparison is a parsed condition: subject, operator, numeric literal.
// Parsing once into a tagged form avoids the operator-precedence
// ambiguity of substring scanning (">=" mis-split as ">").
type Comparison struct {
	Subject string
	Op      alarms.Operator
	Literal float64
}

// conditionOperators in precedence order: two-character operators first
// so prefixes never collide.
var conditionOperators = []alarms.Operator{
	alarms.OperatorGreaterOrEqual,
	alarms.OperatorLessOrEqual,
	alarms.OperatorEqual,
	alarms.OperatorNotEqual,
	alarms.OperatorGreater,
	alarms.OperatorLess,
}

// ParseCondition parses a free-form condition string such as
// "{Value} >= 80" or "coolant_temp > 95". The subject is either the
// {Value} placeholder (empty subject, meaning the sampled value) or a
// metric name.
func ParseCondition(condition string) (Comparison, error) {
	text := strings.TrimSpace(condition)
	if text == "" {
		return Comparison{}, errors.New("condition: empty")
	}

	for _, op := range conditionOperators {
		idx := strings.Index(text, string(op))
		if idx < 0 {
			continue
		}
		// A bare ">" or "<" found at the position of a two-character
		// operator is skipped by precedence order above.
		lhs := strings.TrimSpace(text[:idx])
		rhs := strings.TrimSpace(text[idx+len(op):])
		if rhs == "" {
			return Comparison{}, fmt.Errorf("condition: missing literal in %q", condition)
		}
		literal, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return Comparison{}, fmt.Errorf("condition: invalid literal %q: %w", rhs, err)
		}
		return Comparison{Subject: normalizeSubject(lhs), Op: op, Literal: literal}, nil
	}
	return Comparison{}, fmt.Errorf("condition: no comparison operator in %q", condition)
}

// Evaluate applies the comparison to the sampled value, resolving a
// metric subject from metrics when present. Unknown subjects evaluate
// false.
func (c Comparison) Evaluate(value float64, metrics map[string]float64) bool {
	subject := value
	if c.Subject != "" {
		metric, ok := metrics[c.Subject]
		if !ok {
			return false
		}
		subject = metric
	}
	return c.Op.Compare(subject, c.Literal)
}

func normalizeSubject(lhs string) string {
	subject := strings.ToLower(strings.TrimSpace(lhs))
	switch subject {
	case "", "{value}", "value":
		return ""
	default:
		return strings.Trim(subject, "{}")
	}
}
