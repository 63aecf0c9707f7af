package guardrail

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTriggerMatches(t *testing.T) {
	tests := []struct {
		name     string
		trigger  *TriggerCondition
		toolName string
		want     bool
	}{
		{"always matches anything", &TriggerCondition{Type: TriggerAlways}, "whatever", true},
		{"always matches empty", &TriggerCondition{Type: TriggerAlways}, "", true},
		{"specific tool exact", &TriggerCondition{Type: TriggerSpecificTool, ToolName: "db_query"}, "db_query", true},
		{"specific tool mismatch", &TriggerCondition{Type: TriggerSpecificTool, ToolName: "db_query"}, "email_send", false},
		{"specific tool case sensitive", &TriggerCondition{Type: TriggerSpecificTool, ToolName: "db_query"}, "DB_Query", false},
		{"regex prefix match", &TriggerCondition{Type: TriggerToolRegex, Pattern: "^db_.*"}, "db_query", true},
		{"regex prefix mismatch", &TriggerCondition{Type: TriggerToolRegex, Pattern: "^db_.*"}, "email_send", false},
		{"regex partial match", &TriggerCondition{Type: TriggerToolRegex, Pattern: "query"}, "db_query_v2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.trigger.Matches(tt.toolName)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.toolName, got, tt.want)
			}
		})
	}
}

func TestTriggerMatches_InvalidRegex(t *testing.T) {
	tr := &TriggerCondition{Type: TriggerToolRegex, Pattern: "(unclosed"}

	// Invalid pattern is a configuration error, not a panic, and the
	// compile result is cached across calls.
	for i := 0; i < 2; i++ {
		_, err := tr.Matches("db_query")
		if err == nil {
			t.Fatal("expected error for invalid pattern")
		}
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error is %T, want *ConfigError", err)
		}
	}
}

func TestDecodeParts_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		trigger string
		check   string
		action  string
	}{
		{
			"specific tool + missing column + filter",
			`{"type":"specific_tool","tool_name":"db_query"}`,
			`{"type":"missing_values_column","target_column":"user_id"}`,
			`{"type":"filter_records"}`,
		},
		{
			"always + missing any + interrupt",
			`{"type":"always"}`,
			`{"type":"missing_values_any","significant_fields":["user_id","email"]}`,
			`{"type":"interrupt_agent"}`,
		},
		{
			"regex + old dates + filter",
			`{"type":"tool_regex","pattern":"^db_.*"}`,
			`{"type":"old_date_records","target_column":"created_at","date_threshold_days":30}`,
			`{"type":"filter_records"}`,
		},
		{
			"always + llm judge + interrupt",
			`{"type":"always"}`,
			`{"type":"llm_judge","criterion":"the records contain no health data"}`,
			`{"type":"interrupt_agent"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig, check, action, err := DecodeParts([]byte(tt.trigger), []byte(tt.check), []byte(tt.action))
			if err != nil {
				t.Fatalf("DecodeParts: %v", err)
			}

			// Marshal back and decode again: the tagged shapes must
			// round-trip losslessly through storage.
			trigOut, _ := json.Marshal(trig)
			checkOut, _ := json.Marshal(check)
			actionOut, _ := json.Marshal(action)

			trig2, check2, action2, err := DecodeParts(trigOut, checkOut, actionOut)
			if err != nil {
				t.Fatalf("DecodeParts after round-trip: %v", err)
			}
			if trig2.Type != trig.Type || trig2.ToolName != trig.ToolName || trig2.Pattern != trig.Pattern {
				t.Errorf("trigger did not round-trip: %+v vs %+v", trig2, trig)
			}
			if check2.Type != check.Type || check2.TargetColumn != check.TargetColumn ||
				check2.DateThresholdDays != check.DateThresholdDays || check2.Criterion != check.Criterion {
				t.Errorf("check did not round-trip: %+v vs %+v", check2, check)
			}
			if action2.Type != action.Type {
				t.Errorf("action did not round-trip: %+v vs %+v", action2, action)
			}
		})
	}
}

func TestDecodeParts_DateThresholdDefault(t *testing.T) {
	_, check, _, err := DecodeParts(
		[]byte(`{"type":"always"}`),
		[]byte(`{"type":"old_date_records","target_column":"created_at"}`),
		[]byte(`{"type":"filter_records"}`),
	)
	if err != nil {
		t.Fatalf("DecodeParts: %v", err)
	}
	if check.DateThresholdDays != DefaultDateThresholdDays {
		t.Errorf("default threshold = %d, want %d", check.DateThresholdDays, DefaultDateThresholdDays)
	}
}

func TestDecodeParts_Rejects(t *testing.T) {
	valid := map[string]string{
		"trigger": `{"type":"always"}`,
		"check":   `{"type":"missing_values_any"}`,
		"action":  `{"type":"filter_records"}`,
	}

	tests := []struct {
		name  string
		field string
		raw   string
	}{
		{"unknown trigger type", "trigger", `{"type":"on_tuesdays"}`},
		{"unknown check type", "check", `{"type":"vibes"}`},
		{"unknown action type", "action", `{"type":"delete_everything"}`},
		{"trigger extra field", "trigger", `{"type":"always","bogus":1}`},
		{"specific_tool without name", "trigger", `{"type":"specific_tool"}`},
		{"tool_regex without pattern", "trigger", `{"type":"tool_regex"}`},
		{"missing_values_column without column", "check", `{"type":"missing_values_column"}`},
		{"old_date_records without column", "check", `{"type":"old_date_records"}`},
		{"negative threshold", "check", `{"type":"old_date_records","target_column":"d","date_threshold_days":-1}`},
		{"llm_judge without criterion", "check", `{"type":"llm_judge"}`},
		{"trigger not json", "trigger", `{{`},
		{"type wrong kind", "check", `{"type":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := map[string]string{
				"trigger": valid["trigger"],
				"check":   valid["check"],
				"action":  valid["action"],
			}
			parts[tt.field] = tt.raw

			_, _, _, err := DecodeParts([]byte(parts["trigger"]), []byte(parts["check"]), []byte(parts["action"]))
			if err == nil {
				t.Fatalf("DecodeParts accepted bad %s %s", tt.field, tt.raw)
			}
		})
	}
}
