package process

import (
	"fmt"

	"github.com/MaTriXy/babysitter-sub005/internal/task"
)

// DefaultScoreThreshold is the gate rule applied when a definition declares
// none: overallScore >= 80.
const DefaultScoreThreshold = 80.0

// Predicate decides whether a completed run passes its acceptance gate. It
// receives the full phase-result mapping, gate included, so a process may
// gate on any named phase output rather than a single scalar.
type Predicate func(results map[string]task.Result) (bool, error)

// Rule is one declarative gate comparison. Phase defaults to the gate phase.
type Rule struct {
	Phase string  `json:"phase,omitempty" yaml:"phase,omitempty"`
	Field string  `json:"field" yaml:"field"`
	Op    string  `json:"op" yaml:"op"`
	Value float64 `json:"value" yaml:"value"`
}

var knownOps = map[string]func(a, b float64) bool{
	">=": func(a, b float64) bool { return a >= b },
	">":  func(a, b float64) bool { return a > b },
	"<=": func(a, b float64) bool { return a <= b },
	"<":  func(a, b float64) bool { return a < b },
	"==": func(a, b float64) bool { return a == b },
}

func (r Rule) validate() error {
	if r.Field == "" {
		return fmt.Errorf("rule field is required")
	}
	if _, ok := knownOps[r.Op]; !ok {
		return fmt.Errorf("rule op %q is not one of >=, >, <=, <, ==", r.Op)
	}
	return nil
}

// ScoreThreshold returns the default predicate: the gate phase's overallScore
// must be at least min.
func ScoreThreshold(gatePhase string, min float64) Predicate {
	return compileRules(gatePhase, []Rule{{Field: "overallScore", Op: ">=", Value: min}})
}

// compilePredicate turns declared rules into a conjunction. No rules means
// the default score threshold.
func compilePredicate(gatePhase string, rules []Rule) (Predicate, error) {
	for _, rule := range rules {
		if err := rule.validate(); err != nil {
			return nil, err
		}
	}
	if len(rules) == 0 {
		return ScoreThreshold(gatePhase, DefaultScoreThreshold), nil
	}
	return compileRules(gatePhase, rules), nil
}

func compileRules(gatePhase string, rules []Rule) Predicate {
	return func(results map[string]task.Result) (bool, error) {
		for _, rule := range rules {
			phase := rule.Phase
			if phase == "" {
				phase = gatePhase
			}
			result, ok := results[phase]
			if !ok {
				return false, fmt.Errorf("gate rule references phase %s with no result", phase)
			}
			value, ok := numericField(result.Data, rule.Field)
			if !ok {
				return false, fmt.Errorf("gate rule field %s.%s is not numeric", phase, rule.Field)
			}
			if !knownOps[rule.Op](value, rule.Value) {
				return false, nil
			}
		}
		return true, nil
	}
}

func numericField(data map[string]any, field string) (float64, bool) {
	raw, ok := data[field]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ValidationResult is the interpreted output of the gate phase.
type ValidationResult struct {
	OverallScore float64  `json:"overallScore"`
	PassedChecks []string `json:"passedChecks"`
}

// ParseValidation extracts the required gate fields from the gate task's
// accepted output. The gate's schema should already have enforced these, so
// errors here indicate a definition whose gate schema is too loose.
func ParseValidation(data map[string]any) (ValidationResult, error) {
	score, ok := numericField(data, "overallScore")
	if !ok {
		return ValidationResult{}, fmt.Errorf("gate output is missing a numeric overallScore")
	}
	if score < 0 || score > 100 {
		return ValidationResult{}, fmt.Errorf("gate overallScore %v is outside [0,100]", score)
	}
	rawChecks, ok := data["passedChecks"]
	if !ok {
		return ValidationResult{}, fmt.Errorf("gate output is missing passedChecks")
	}
	result := ValidationResult{OverallScore: score}
	switch checks := rawChecks.(type) {
	case []any:
		for _, check := range checks {
			result.PassedChecks = append(result.PassedChecks, fmt.Sprintf("%v", check))
		}
	case []string:
		result.PassedChecks = append(result.PassedChecks, checks...)
	default:
		return ValidationResult{}, fmt.Errorf("gate passedChecks is not a list")
	}
	return result, nil
}
