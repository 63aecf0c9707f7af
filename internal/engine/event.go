package engine

import (
	"github.com/ledgerline-ai/bulwark/internal/fieldpath"
)

// DefaultRecordsPath is where an event's primary record collection
// lives unless the caller says otherwise.
const DefaultRecordsPath = "records"

// Event is the payload under test: a JSON-decoded tree plus metadata.
// The engine treats it as immutable input — filtering actions produce
// a new Event and never touch the caller's tree.
type Event struct {
	// ToolName is the invoked tool, empty for trace-level events.
	ToolName string

	// Payload is the JSON-like tree (map[string]any / []any / scalars).
	Payload any

	// RecordsPath addresses the primary record collection inside
	// Payload. Empty means DefaultRecordsPath.
	RecordsPath string
}

func (e *Event) recordsPath() string {
	if e.RecordsPath == "" {
		return DefaultRecordsPath
	}
	return e.RecordsPath
}

// Records returns the event's record collection. ok=false when the
// event defines no records collection at all (per-record checks treat
// that as zero violations, not an error).
func (e *Event) Records() (records []any, ok bool) {
	v, err := fieldpath.Resolve(e.Payload, e.recordsPath())
	if err != nil {
		return nil, false
	}
	arr, isArr := v.([]any)
	if !isArr {
		return nil, false
	}
	return arr, true
}

// clone deep-copies the event so actions can rewrite the record
// collection without mutating the original payload.
func (e *Event) clone() *Event {
	return &Event{
		ToolName:    e.ToolName,
		Payload:     copyValue(e.Payload),
		RecordsPath: e.RecordsPath,
	}
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		// Scalars from encoding/json (string, float64, bool, nil) are
		// immutable, so sharing them is safe.
		return val
	}
}
