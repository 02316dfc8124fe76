// Package workflow holds the domain types for automation blueprints, their
// execution lifecycle, and discovered proposals.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"opsbrain/pkg/errors"
)

// Step actions form a closed set; the engine rejects anything else.
const (
	ActionWait            = "wait"
	ActionGenerateContent = "generate_content"
	ActionNotify          = "notify"
	ActionPublish         = "publish"
	ActionFetchState      = "fetch_state"
	ActionUpdateState     = "update_state"
)

// DefaultMaxRetries is applied when a blueprint config does not set one.
const DefaultMaxRetries = 3

// Blueprint is the declarative step list plus config defining an automation
// sequence. Blueprints are immutable once handed to an execution.
type Blueprint struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
	Config      Config `json:"config"`
}

// Step is one action in a blueprint. A nil Condition means the step always runs.
type Step struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
	Condition  *Condition             `json:"condition,omitempty"`
}

// Config carries execution policy for every step in the blueprint
type Config struct {
	MaxRetries    int           `json:"max_retries"`
	StepTimeout   time.Duration `json:"step_timeout"`
	NotifyOnError bool          `json:"notify_on_error"`
	Schedule      string        `json:"schedule,omitempty"`
}

// Condition gates a step on the accumulated results of prior steps.
// Field uses dotted paths rooted at a step key, e.g. "step_0.status".
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// Validate checks the blueprint is executable
func (b *Blueprint) Validate() error {
	if b.Name == "" {
		return errors.NewValidationError("blueprint name is required")
	}
	if len(b.Steps) == 0 {
		return errors.NewValidationError("blueprint must contain at least one step")
	}
	for i, step := range b.Steps {
		switch step.Action {
		case ActionWait, ActionGenerateContent, ActionNotify, ActionPublish, ActionFetchState, ActionUpdateState:
		default:
			return errors.NewValidationError(fmt.Sprintf("step %d has unknown action %q", i, step.Action))
		}
		if step.Condition != nil {
			if err := step.Condition.validate(); err != nil {
				return errors.Wrapf(err, "step %d condition", i)
			}
		}
	}
	return nil
}

// EffectiveMaxRetries returns the configured retry budget, defaulted
func (c Config) EffectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Condition) validate() error {
	if c.Field == "" {
		return errors.NewValidationError("condition field is required")
	}
	switch c.Operator {
	case "equals", "not_equals", "contains", "exists", "greater_than", "less_than":
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown condition operator %q", c.Operator))
	}
}

// Evaluate resolves the condition against accumulated step results, keyed
// "step_0", "step_1", ... Missing fields make every operator except
// "exists" evaluate to false.
func (c *Condition) Evaluate(results map[string]interface{}) bool {
	value, found := lookupPath(results, c.Field)

	switch c.Operator {
	case "exists":
		return found
	case "equals":
		return found && fmt.Sprintf("%v", value) == fmt.Sprintf("%v", c.Value)
	case "not_equals":
		return found && fmt.Sprintf("%v", value) != fmt.Sprintf("%v", c.Value)
	case "contains":
		if !found {
			return false
		}
		return strings.Contains(fmt.Sprintf("%v", value), fmt.Sprintf("%v", c.Value))
	case "greater_than":
		a, b, ok := numericPair(value, c.Value)
		return found && ok && a > b
	case "less_than":
		a, b, ok := numericPair(value, c.Value)
		return found && ok && a < b
	default:
		return false
	}
}

func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func numericPair(a, b interface{}) (float64, float64, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	return fa, fb, okA && okB
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
