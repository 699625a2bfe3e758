package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Operator string

const (
	OperatorEquals    Operator = "=="
	OperatorNotEquals Operator = "!="
	OperatorTruthy    Operator = "truthy"
	OperatorFalsy     Operator = "falsy"
)

// Rule is a parsed guard rule such as "== true", "!= REJECTED", "truthy" or "falsy".
type Rule struct {
	Operator Operator
	Expected any
	raw      string
}

// ParseRule parses the textual rule form used by templates.
func ParseRule(raw string) (Rule, error) {
	rule := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(rule, string(OperatorEquals)):
		return Rule{Operator: OperatorEquals, Expected: parseExpected(rule[2:]), raw: rule}, nil
	case strings.HasPrefix(rule, string(OperatorNotEquals)):
		return Rule{Operator: OperatorNotEquals, Expected: parseExpected(rule[2:]), raw: rule}, nil
	case rule == string(OperatorTruthy):
		return Rule{Operator: OperatorTruthy, raw: rule}, nil
	case rule == string(OperatorFalsy):
		return Rule{Operator: OperatorFalsy, raw: rule}, nil
	default:
		return Rule{}, fmt.Errorf("unsupported rule %q", raw)
	}
}

// MustParseRule is ParseRule for static rules; it panics on error.
func MustParseRule(raw string) Rule {
	rule, err := ParseRule(raw)
	if err != nil {
		panic(err)
	}

	return rule
}

func parseExpected(raw string) any {
	value := strings.TrimSpace(raw)

	switch value {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	if number, err := strconv.ParseFloat(value, 64); err == nil {
		return number
	}

	return strings.Trim(value, `"'`)
}

// Evaluate applies the rule to a resolved value. Missing values are nil.
func (r Rule) Evaluate(actual any) bool {
	switch r.Operator {
	case OperatorEquals:
		return equalValues(actual, r.Expected)
	case OperatorNotEquals:
		return !equalValues(actual, r.Expected)
	case OperatorTruthy:
		return Truthy(actual)
	case OperatorFalsy:
		return !Truthy(actual)
	default:
		return false
	}
}

func (r Rule) String() string {
	return r.raw
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.raw)
}

// Truthy reports whether a payload value counts as set: non-zero numbers,
// non-empty strings and collections, and true.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case map[string]any:
		return true
	case []any:
		return true
	default:
		if number, ok := toFloat(v); ok {
			return number != 0
		}

		return true
	}
}

func equalValues(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if expectedNumber, ok := expected.(float64); ok {
		actualNumber, ok := toFloat(actual)

		return ok && actualNumber == expectedNumber
	}

	switch e := expected.(type) {
	case bool:
		a, ok := actual.(bool)

		return ok && a == e
	case string:
		a, ok := actual.(string)

		return ok && a == e
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

// ResolvePath walks a dotted path through nested maps. It returns nil when
// any segment is missing or not a map.
func ResolvePath(data map[string]any, path string) any {
	if path == "" {
		return nil
	}

	var current any = data

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = node[segment]
		if !ok {
			return nil
		}
	}

	return current
}
