// Package audit records every action execution with secret parameter
// values redacted before anything touches storage.
package audit

import (
	"context"
	"strings"
	"time"
)

// Redacted replaces secret parameter values in stored entries. The raw
// value is never written to any backend.
const Redacted = "<redacted>"

// Entry is one recorded execution.
type Entry struct {
	RunID     string         `json:"run_id"`
	Host      string         `json:"host"`
	ActionID  string         `json:"action_id"`
	Params    map[string]any `json:"params"`
	Check     bool           `json:"check,omitempty"`
	Success   bool           `json:"success"`
	ErrKind   string         `json:"err_kind,omitempty"`
	ErrMsg    string         `json:"err_msg,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// Recorder persists entries. Implementations must be safe for
// concurrent use; a Record failure never affects the recorded action's
// outcome, the caller only reports it.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
	Close() error
}

// RedactParams returns a copy of params with every secret-named
// parameter value replaced. Params themselves are never mutated.
func RedactParams(params map[string]any, secretNames map[string]struct{}) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, secret := secretNames[k]; secret {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

// ScrubValues returns a copy of params with every occurrence of a raw
// secret value replaced, wherever it appears. A secret passed verbatim
// inside an unrelated parameter still never reaches storage. Nested
// objects and lists are scrubbed recursively.
func ScrubValues(params map[string]any, values []string) map[string]any {
	if len(values) == 0 || len(params) == 0 {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = scrub(v, values)
	}
	return out
}

func scrub(v any, values []string) any {
	switch t := v.(type) {
	case string:
		for _, raw := range values {
			if raw != "" && strings.Contains(t, raw) {
				t = strings.ReplaceAll(t, raw, Redacted)
			}
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = scrub(e, values)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = scrub(e, values)
		}
		return out
	default:
		return v
	}
}

// Discard is a no-op recorder for callers that disable auditing.
type Discard struct{}

func (Discard) Record(context.Context, *Entry) error        { return nil }
func (Discard) List(context.Context, int) ([]*Entry, error) { return nil, nil }
func (Discard) Close() error                                { return nil }
