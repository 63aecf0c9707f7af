// Package guardrail defines the persisted shape of guardrail rules:
// a trigger condition, a check config, and a remedial action, each a
// closed tagged union keyed by a "type" string in JSONB storage.
package guardrail

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// DefaultDateThresholdDays is applied when an old_date_records check
// does not set date_threshold_days.
const DefaultDateThresholdDays = 365

// TriggerType enumerates the trigger condition variants.
type TriggerType string

const (
	TriggerAlways       TriggerType = "always"
	TriggerSpecificTool TriggerType = "specific_tool"
	TriggerToolRegex    TriggerType = "tool_regex"
)

// CheckType enumerates the check config variants.
type CheckType string

const (
	CheckMissingValuesAny    CheckType = "missing_values_any"
	CheckMissingValuesColumn CheckType = "missing_values_column"
	CheckOldDateRecords      CheckType = "old_date_records"
	CheckLLMJudge            CheckType = "llm_judge"
)

// ActionType enumerates the remedial action variants.
type ActionType string

const (
	ActionFilterRecords  ActionType = "filter_records"
	ActionInterruptAgent ActionType = "interrupt_agent"
)

// ConfigError reports a malformed or unknown guardrail configuration
// fragment. Unknown "type" values are rejected at decode time rather
// than silently no-op-ing.
type ConfigError struct {
	Field string // "trigger" | "check" | "action"
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("guardrail config %s: %s", e.Field, e.Msg)
}

// Definition is one authored guardrail rule. Read-only to the engine;
// only the two counters are mutated, and only via atomic increments at
// the storage boundary.
type Definition struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	IsActive    bool

	Trigger *TriggerCondition
	Check   *CheckConfig
	Action  *ActionConfig

	// Lifetime stats. Monotonically non-decreasing;
	// AppliedCount <= ExecutionCount always holds.
	ExecutionCount int64
	AppliedCount   int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TriggerCondition decides whether a guardrail is relevant to an event.
type TriggerCondition struct {
	Type     TriggerType
	ToolName string // specific_tool
	Pattern  string // tool_regex

	compileOnce sync.Once
	re          *regexp.Regexp
	reErr       error
}

// Matches reports whether the trigger applies to the given tool name.
// specific_tool is an exact, case-sensitive comparison; tool_regex is a
// partial match. The regex is compiled once per definition and cached;
// an invalid pattern surfaces as a configuration error on first use.
func (t *TriggerCondition) Matches(toolName string) (bool, error) {
	switch t.Type {
	case TriggerAlways:
		return true, nil
	case TriggerSpecificTool:
		return toolName == t.ToolName, nil
	case TriggerToolRegex:
		t.compileOnce.Do(func() {
			t.re, t.reErr = regexp.Compile(t.Pattern)
		})
		if t.reErr != nil {
			return false, &ConfigError{Field: "trigger", Msg: "invalid tool_regex pattern: " + t.reErr.Error()}
		}
		return t.re.MatchString(toolName), nil
	default:
		return false, &ConfigError{Field: "trigger", Msg: "unknown trigger type " + string(t.Type)}
	}
}

type triggerJSON struct {
	Type     TriggerType `json:"type"`
	ToolName string      `json:"tool_name,omitempty"`
	Pattern  string      `json:"pattern,omitempty"`
}

// UnmarshalJSON decodes the tagged trigger shape and rejects unknown
// type values.
func (t *TriggerCondition) UnmarshalJSON(data []byte) error {
	var raw triggerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ConfigError{Field: "trigger", Msg: err.Error()}
	}
	switch raw.Type {
	case TriggerAlways:
	case TriggerSpecificTool:
		if raw.ToolName == "" {
			return &ConfigError{Field: "trigger", Msg: "specific_tool requires tool_name"}
		}
	case TriggerToolRegex:
		if raw.Pattern == "" {
			return &ConfigError{Field: "trigger", Msg: "tool_regex requires pattern"}
		}
	default:
		return &ConfigError{Field: "trigger", Msg: fmt.Sprintf("unknown trigger type %q", raw.Type)}
	}
	t.Type = raw.Type
	t.ToolName = raw.ToolName
	t.Pattern = raw.Pattern
	return nil
}

// MarshalJSON emits the same tagged shape the storage layer persists,
// so definitions round-trip losslessly.
func (t *TriggerCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(triggerJSON{Type: t.Type, ToolName: t.ToolName, Pattern: t.Pattern})
}

// CheckConfig decides whether the event's data violates the guardrail
// once triggered.
type CheckConfig struct {
	Type CheckType

	// missing_values_any: optional restriction to a set of significant
	// fields. Empty means "every field in each record".
	SignificantFields []string

	// missing_values_column / old_date_records
	TargetColumn string

	// old_date_records
	DateThresholdDays int

	// llm_judge: natural-language criterion handed to the judge.
	Criterion string
}

type checkJSON struct {
	Type              CheckType `json:"type"`
	SignificantFields []string  `json:"significant_fields,omitempty"`
	TargetColumn      string    `json:"target_column,omitempty"`
	DateThresholdDays int       `json:"date_threshold_days,omitempty"`
	Criterion         string    `json:"criterion,omitempty"`
}

func (c *CheckConfig) UnmarshalJSON(data []byte) error {
	var raw checkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ConfigError{Field: "check", Msg: err.Error()}
	}
	switch raw.Type {
	case CheckMissingValuesAny:
	case CheckMissingValuesColumn:
		if raw.TargetColumn == "" {
			return &ConfigError{Field: "check", Msg: "missing_values_column requires target_column"}
		}
	case CheckOldDateRecords:
		if raw.TargetColumn == "" {
			return &ConfigError{Field: "check", Msg: "old_date_records requires target_column"}
		}
		if raw.DateThresholdDays < 0 {
			return &ConfigError{Field: "check", Msg: "date_threshold_days must be non-negative"}
		}
		if raw.DateThresholdDays == 0 {
			raw.DateThresholdDays = DefaultDateThresholdDays
		}
	case CheckLLMJudge:
		if raw.Criterion == "" {
			return &ConfigError{Field: "check", Msg: "llm_judge requires criterion"}
		}
	default:
		return &ConfigError{Field: "check", Msg: fmt.Sprintf("unknown check type %q", raw.Type)}
	}
	c.Type = raw.Type
	c.SignificantFields = raw.SignificantFields
	c.TargetColumn = raw.TargetColumn
	c.DateThresholdDays = raw.DateThresholdDays
	c.Criterion = raw.Criterion
	return nil
}

func (c *CheckConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(checkJSON{
		Type:              c.Type,
		SignificantFields: c.SignificantFields,
		TargetColumn:      c.TargetColumn,
		DateThresholdDays: c.DateThresholdDays,
		Criterion:         c.Criterion,
	})
}

// ActionConfig is the remedial action applied when a triggered check
// finds a violation.
type ActionConfig struct {
	Type ActionType
}

type actionJSON struct {
	Type ActionType `json:"type"`
}

func (a *ActionConfig) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ConfigError{Field: "action", Msg: err.Error()}
	}
	switch raw.Type {
	case ActionFilterRecords, ActionInterruptAgent:
	default:
		return &ConfigError{Field: "action", Msg: fmt.Sprintf("unknown action type %q", raw.Type)}
	}
	a.Type = raw.Type
	return nil
}

func (a *ActionConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON{Type: a.Type})
}

// DecodeParts validates and decodes the three JSONB config columns of
// one guardrail row. Schema validation runs first so malformed rows
// fail with a pointer to the bad field instead of a generic unmarshal
// error.
func DecodeParts(trigger, check, action []byte) (*TriggerCondition, *CheckConfig, *ActionConfig, error) {
	if err := validateSchema("trigger", trigger); err != nil {
		return nil, nil, nil, err
	}
	if err := validateSchema("check", check); err != nil {
		return nil, nil, nil, err
	}
	if err := validateSchema("action", action); err != nil {
		return nil, nil, nil, err
	}

	var t TriggerCondition
	if err := json.Unmarshal(trigger, &t); err != nil {
		return nil, nil, nil, err
	}
	var c CheckConfig
	if err := json.Unmarshal(check, &c); err != nil {
		return nil, nil, nil, err
	}
	var a ActionConfig
	if err := json.Unmarshal(action, &a); err != nil {
		return nil, nil, nil, err
	}
	return &t, &c, &a, nil
}
